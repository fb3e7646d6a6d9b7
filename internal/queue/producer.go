package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, req RunRequest) (string, error)
	Close() error
}

// StreamWriter is the part of the Redis client a producer writes with.
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type redisProducer struct {
	client StreamWriter
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client StreamWriter, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Enqueue appends a run request and returns the stream message ID.
func (p *redisProducer) Enqueue(ctx context.Context, req RunRequest) (string, error) {
	if !req.Mode.IsValid() {
		return "", fmt.Errorf("enqueue run: invalid mode %q", req.Mode)
	}

	attempt := req.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	msg := Message{
		TaskType: TaskTypeRunCycle,
		Mode:     req.Mode,
		Trigger:  req.Trigger,
		RunID:    req.RunID,
	}
	if req.TraceID != nil {
		msg.TraceID = *req.TraceID
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: messageValues(msg, attempt),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue run: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued run request", "message_id", id, "mode", req.Mode, "trigger", req.Trigger, "attempt", attempt)
	return id, nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
