package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"basegraph.app/radar/core/config"
)

// Multi sends every message to all of its sinks. One failing sink does not
// stop the others; their errors are joined.
type Multi []Sink

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds a notifier over every enabled sink. rdb may be nil, in
// which case the stream sink is left out.
func FromConfig(cfg config.NotificationsConfig, rdb *redis.Client, eventStream string) *Notifier {
	var sinks Multi
	if cfg.Ntfy.Enabled && cfg.Ntfy.Topic != "" {
		sinks = append(sinks, NewNtfy(cfg.Ntfy))
	}
	if cfg.Stream.Enabled && rdb != nil && eventStream != "" {
		sinks = append(sinks, NewStream(rdb, eventStream))
	}

	switch len(sinks) {
	case 0:
		return Nop()
	case 1:
		return New(sinks[0])
	default:
		return New(sinks)
	}
}
