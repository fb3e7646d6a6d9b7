package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/store"
)

type call struct {
	sql  string
	args []any
}

type mockQuerier struct {
	execFn     func(sql string, args []any) (pgconn.CommandTag, error)
	queryRowFn func(sql string, args []any) pgx.Row
	calls      []call
}

func (m *mockQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.calls = append(m.calls, call{sql: sql, args: args})
	if m.execFn != nil {
		return m.execFn(sql, args)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.calls = append(m.calls, call{sql: sql, args: args})
	return nil, errors.New("query unavailable")
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.calls = append(m.calls, call{sql: sql, args: args})
	if m.queryRowFn != nil {
		return m.queryRowFn(sql, args)
	}
	return errRow{err: pgx.ErrNoRows}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type runRow struct {
	id       int64
	metrics  string
	errMsg   *string
	started  time.Time
	finished *time.Time
}

func (r runRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.id
	*(dest[1].(*string)) = "weekly"
	*(dest[2].(*string)) = "succeeded"
	*(dest[3].(*string)) = "api"
	*(dest[4].(*[]byte)) = []byte(r.metrics)
	*(dest[5].(**string)) = r.errMsg
	*(dest[6].(*time.Time)) = r.started
	*(dest[7].(**time.Time)) = r.finished
	return nil
}

var _ = Describe("RunStore", func() {
	var (
		ctx  context.Context
		q    *mockQuerier
		runs store.RunStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		q = &mockQuerier{}
		runs = store.NewStores(q).Runs()
	})

	It("inserts a new run with its metrics as jsonb", func() {
		run := model.NewRun(42, model.ModeDaily, model.RunTriggerSchedule)
		Expect(runs.Create(ctx, run)).To(Succeed())

		Expect(q.calls).To(HaveLen(1))
		Expect(q.calls[0].sql).To(HavePrefix("INSERT INTO pipeline_runs (id,mode,status,trigger,metrics,started_at)"))
		Expect(q.calls[0].sql).To(ContainSubstring("$5::jsonb"))
		Expect(q.calls[0].args[:4]).To(Equal([]any{int64(42), "daily", "running", "schedule"}))
		Expect(q.calls[0].args[4]).To(ContainSubstring(`"items_collected":0`))
	})

	Describe("Finish", func() {
		It("updates status, metrics and error", func() {
			q.execFn = func(string, []any) (pgconn.CommandTag, error) {
				return pgconn.NewCommandTag("UPDATE 1"), nil
			}
			run := model.NewRun(7, model.ModeDaily, model.RunTriggerCLI)
			run.Metrics.ItemsAnalyzed = 3
			run.Finish(model.RunStatusFailed, errors.New("synthesis exploded"))

			Expect(runs.Finish(ctx, run)).To(Succeed())
			Expect(q.calls[0].sql).To(HavePrefix("UPDATE pipeline_runs SET status = $1, metrics = $2::jsonb, error = $3, finished_at = $4 WHERE id = $5"))
			Expect(q.calls[0].args[0]).To(Equal("failed"))
			Expect(q.calls[0].args[1]).To(ContainSubstring(`"items_analyzed":3`))
			Expect(*(q.calls[0].args[2].(*string))).To(Equal("synthesis exploded"))
			Expect(q.calls[0].args[4]).To(Equal(int64(7)))
		})

		It("reports a missing run", func() {
			q.execFn = func(string, []any) (pgconn.CommandTag, error) {
				return pgconn.NewCommandTag("UPDATE 0"), nil
			}
			err := runs.Finish(ctx, model.NewRun(8, model.ModeDaily, model.RunTriggerCLI))
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("Get", func() {
		It("maps no rows to ErrNotFound", func() {
			_, err := runs.Get(ctx, 99)
			Expect(err).To(MatchError(store.ErrNotFound))
			Expect(q.calls[0].sql).To(ContainSubstring("FROM pipeline_runs WHERE id = $1"))
		})

		It("decodes a stored run", func() {
			started := time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC)
			finished := started.Add(5 * time.Minute)
			q.queryRowFn = func(string, []any) pgx.Row {
				return runRow{
					id:       11,
					metrics:  `{"items_collected": 40, "items_by_source": {"reddit": 40}, "synthesis_degraded": true}`,
					started:  started,
					finished: &finished,
				}
			}

			run, err := runs.Get(ctx, 11)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Mode).To(Equal(model.ModeWeekly))
			Expect(run.Status).To(Equal(model.RunStatusSucceeded))
			Expect(run.Trigger).To(Equal(model.RunTriggerAPI))
			Expect(run.Metrics.ItemsCollected).To(Equal(40))
			Expect(run.Metrics.ItemsBySource).To(HaveKeyWithValue("reddit", 40))
			Expect(run.Metrics.SynthesisDegraded).To(BeTrue())
			Expect(run.FinishedAt).To(Equal(&finished))
			Expect(run.Error).To(BeNil())
		})
	})

	It("filters and caps listings", func() {
		_, err := runs.List(ctx, store.ListRunsParams{Mode: model.ModeDaily, Status: model.RunStatusEmpty, Limit: 5000})
		Expect(err).To(MatchError(ContainSubstring("listing runs")))

		Expect(q.calls[0].sql).To(ContainSubstring("WHERE mode = $1 AND status = $2"))
		Expect(q.calls[0].sql).To(ContainSubstring("ORDER BY started_at DESC, id DESC LIMIT 200"))
	})
})
