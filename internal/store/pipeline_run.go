package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"basegraph.app/radar/core/db"
	"basegraph.app/radar/internal/model"
)

const (
	runsTable       = "pipeline_runs"
	defaultRunLimit = 20
	maxRunLimit     = 200
)

var (
	psql       = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	runColumns = []string{"id", "mode", "status", "trigger", "metrics", "error", "started_at", "finished_at"}
)

type pipelineRunStore struct {
	q db.Querier
}

func newPipelineRunStore(q db.Querier) RunStore {
	return &pipelineRunStore{q: q}
}

func (s *pipelineRunStore) Create(ctx context.Context, run *model.Run) error {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encoding run metrics: %w", err)
	}

	query, args, err := psql.Insert(runsTable).
		Columns("id", "mode", "status", "trigger", "metrics", "started_at").
		Values(run.ID, string(run.Mode), string(run.Status), string(run.Trigger), sq.Expr("?::jsonb", string(metrics)), run.StartedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}

	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("creating run %d: %w", run.ID, err)
	}
	return nil
}

// Finish stores the final status, metrics and error of a run.
func (s *pipelineRunStore) Finish(ctx context.Context, run *model.Run) error {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encoding run metrics: %w", err)
	}

	finishedAt := time.Now().UTC()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	query, args, err := psql.Update(runsTable).
		Set("status", string(run.Status)).
		Set("metrics", sq.Expr("?::jsonb", string(metrics))).
		Set("error", run.Error).
		Set("finished_at", finishedAt).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pipelineRunStore) Get(ctx context.Context, id int64) (*model.Run, error) {
	query, args, err := psql.Select(runColumns...).
		From(runsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	run, err := scanRun(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting run %d: %w", id, err)
	}
	return run, nil
}

func (s *pipelineRunStore) List(ctx context.Context, params ListRunsParams) ([]model.Run, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultRunLimit
	}
	limit = min(limit, maxRunLimit)

	sel := psql.Select(runColumns...).
		From(runsTable).
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(limit))
	if params.Mode != "" {
		sel = sel.Where(sq.Eq{"mode": string(params.Mode)})
	}
	if params.Status != "" {
		sel = sel.Where(sq.Eq{"status": string(params.Status)})
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*model.Run, error) {
	var (
		run                   model.Run
		mode, status, trigger string
		metrics               []byte
	)
	if err := row.Scan(&run.ID, &mode, &status, &trigger, &metrics, &run.Error, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	run.Mode = model.Mode(mode)
	run.Status = model.RunStatus(status)
	run.Trigger = model.RunTrigger(trigger)
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
			return nil, fmt.Errorf("decoding metrics of run %d: %w", run.ID, err)
		}
	}
	return &run, nil
}
