package queue_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/queue"
)

type fakeRedis struct {
	groupErr  error
	pending   []redis.XMessage
	readErr   error
	acked     []string
	added     []*redis.XAddArgs
	addErr    error
	nextID    int
	closed    bool
	readCalls int
}

func (f *fakeRedis) XGroupCreateMkStream(ctx context.Context, _, _, _ string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.groupErr != nil {
		cmd.SetErr(f.groupErr)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (f *fakeRedis) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.readCalls++
	cmd := redis.NewXStreamSliceCmd(ctx)
	if f.readErr != nil {
		cmd.SetErr(f.readErr)
		return cmd
	}
	cmd.SetVal([]redis.XStream{{Stream: a.Streams[0], Messages: f.pending}})
	return cmd
}

func (f *fakeRedis) XAck(ctx context.Context, _, _ string, ids ...string) *redis.IntCmd {
	f.acked = append(f.acked, ids...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	cmd := redis.NewStringCmd(ctx)
	if f.addErr != nil {
		cmd.SetErr(f.addErr)
		return cmd
	}
	f.nextID++
	cmd.SetVal(fmt.Sprintf("1700000000000-%d", f.nextID))
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

var cfg = queue.ConsumerConfig{
	Stream:    "radar_runs",
	Group:     "radar_workers",
	Consumer:  "w1",
	DLQStream: "radar_runs_dlq",
	BatchSize: 1,
}

var _ = Describe("ParseMessage", func() {
	It("parses a run request", func() {
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: map[string]any{
			"task_type": "run_cycle",
			"mode":      "weekly",
			"trigger":   "schedule",
			"run_id":    "99",
			"attempt":   "2",
			"trace_id":  "abc",
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Mode).To(Equal(model.ModeWeekly))
		Expect(msg.Trigger).To(Equal(model.RunTriggerSchedule))
		Expect(*msg.RunID).To(Equal(int64(99)))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.TraceID).To(Equal("abc"))
	})

	It("defaults task type, attempt and trigger", func() {
		msg, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: map[string]any{"mode": "daily"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.TaskType).To(Equal(queue.TaskTypeRunCycle))
		Expect(msg.Attempt).To(Equal(1))
		Expect(msg.Trigger).To(Equal(model.RunTriggerAPI))
		Expect(msg.RunID).To(BeNil())
	})

	DescribeTable("rejects malformed messages",
		func(values map[string]any, want string) {
			_, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
			Expect(err).To(MatchError(ContainSubstring(want)))
		},
		Entry("missing mode", map[string]any{"task_type": "run_cycle"}, "missing mode"),
		Entry("bad mode", map[string]any{"mode": "hourly"}, "invalid mode"),
		Entry("bad run id", map[string]any{"mode": "daily", "run_id": "x"}, "parsing run_id"),
		Entry("unknown task", map[string]any{"task_type": "reindex", "mode": "daily"}, "unknown task_type"),
	)
})

var _ = Describe("RedisProducer", func() {
	It("writes the request fields and returns the message id", func() {
		rdb := &fakeRedis{}
		p := queue.NewRedisProducer(rdb, "radar_runs", nil)
		runID := int64(5)

		id, err := p.Enqueue(context.Background(), queue.RunRequest{Mode: model.ModeMonthly, Trigger: model.RunTriggerAPI, RunID: &runID})
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("1700000000000-1"))

		values := rdb.added[0].Values.(map[string]any)
		Expect(values).To(HaveKeyWithValue("task_type", "run_cycle"))
		Expect(values).To(HaveKeyWithValue("mode", "monthly"))
		Expect(values).To(HaveKeyWithValue("attempt", 1))
		Expect(values).To(HaveKeyWithValue("run_id", int64(5)))

		Expect(p.Close()).To(Succeed())
		Expect(rdb.closed).To(BeTrue())
	})

	It("refuses an invalid mode without touching redis", func() {
		rdb := &fakeRedis{}
		_, err := queue.NewRedisProducer(rdb, "radar_runs", nil).Enqueue(context.Background(), queue.RunRequest{Mode: "hourly"})
		Expect(err).To(HaveOccurred())
		Expect(rdb.added).To(BeEmpty())
	})
})

var _ = Describe("RedisConsumer", func() {
	var (
		ctx context.Context
		rdb *fakeRedis
	)

	BeforeEach(func() {
		ctx = context.Background()
		rdb = &fakeRedis{}
	})

	It("tolerates an existing group", func() {
		rdb.groupErr = errors.New("BUSYGROUP Consumer Group name already exists")
		_, err := queue.NewRedisConsumer(ctx, rdb, cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails on other group errors", func() {
		rdb.groupErr = errors.New("NOAUTH")
		_, err := queue.NewRedisConsumer(ctx, rdb, cfg)
		Expect(err).To(MatchError(ContainSubstring("creating consumer group")))
	})

	It("acks unparseable messages and returns the rest", func() {
		rdb.pending = []redis.XMessage{
			{ID: "1-0", Values: map[string]any{"mode": "nope"}},
			{ID: "2-0", Values: map[string]any{"mode": "daily"}},
		}
		c, err := queue.NewRedisConsumer(ctx, rdb, cfg)
		Expect(err).NotTo(HaveOccurred())

		msgs, err := c.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].ID).To(Equal("2-0"))
		Expect(rdb.acked).To(Equal([]string{"1-0"}))
	})

	It("treats redis.Nil as an empty read", func() {
		rdb.readErr = redis.Nil
		c, _ := queue.NewRedisConsumer(ctx, rdb, cfg)
		msgs, err := c.Read(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(BeEmpty())
	})

	It("requeues with the next attempt and the last error", func() {
		c, _ := queue.NewRedisConsumer(ctx, rdb, cfg)
		msg := queue.Message{ID: "3-0", TaskType: queue.TaskTypeRunCycle, Mode: model.ModeDaily, Trigger: model.RunTriggerSchedule, Attempt: 1}

		Expect(c.Requeue(ctx, msg, "collector timeout")).To(Succeed())
		Expect(rdb.acked).To(ContainElement("3-0"))
		Expect(rdb.added[0].Stream).To(Equal("radar_runs"))
		values := rdb.added[0].Values.(map[string]any)
		Expect(values).To(HaveKeyWithValue("attempt", 2))
		Expect(values).To(HaveKeyWithValue("last_error", "collector timeout"))
		Expect(values).To(HaveKeyWithValue("trigger", "schedule"))
	})

	It("moves messages to the dead letter stream", func() {
		c, _ := queue.NewRedisConsumer(ctx, rdb, cfg)
		msg := queue.Message{ID: "4-0", Mode: model.ModeWeekly, Attempt: 3}

		Expect(c.SendDLQ(ctx, msg, "boom")).To(Succeed())
		Expect(rdb.added[0].Stream).To(Equal("radar_runs_dlq"))
		values := rdb.added[0].Values.(map[string]any)
		Expect(values).To(HaveKeyWithValue("error", "boom"))
		Expect(values).To(HaveKeyWithValue("attempt", 3))
		Expect(values).To(HaveKeyWithValue("task_type", "run_cycle"))
	})
})
