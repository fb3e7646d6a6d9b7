package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamAdder is the slice of the Redis client the stream sink needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Stream appends every message to a Redis stream so other services can
// follow cycle outcomes.
type Stream struct {
	client StreamAdder
	stream string
	maxLen int64
}

func NewStream(client StreamAdder, stream string) *Stream {
	return &Stream{client: client, stream: stream, maxLen: 10000}
}

func (s *Stream) Name() string {
	return "redis_stream"
}

func (s *Stream) Send(ctx context.Context, msg Message) error {
	values := map[string]any{
		"kind":     string(msg.Kind),
		"title":    msg.Title,
		"body":     msg.Body,
		"priority": string(msg.Priority),
		"sent_at":  time.Now().UTC().Format(time.RFC3339),
	}
	if len(msg.Tags) > 0 {
		values["tags"] = strings.Join(msg.Tags, ",")
	}
	if msg.Click != "" {
		values["click"] = msg.Click
	}
	for k, v := range msg.Fields {
		if _, taken := values[k]; !taken {
			values[k] = v
		}
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
