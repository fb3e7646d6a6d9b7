package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/internal/collector"
	"basegraph.app/radar/internal/model"
)

// collect runs every collector in order. A collector that fails, panics or
// reports partial errors is listed in CollectorsFailed; the rest carry on.
func (o *Orchestrator) collect(ctx context.Context, run *model.Run) []*model.CollectedItem {
	m := &run.Metrics
	seen := make(map[string]struct{})
	var items []*model.CollectedItem

	for _, c := range o.deps.Collectors {
		if ctx.Err() != nil {
			break
		}
		name := c.Name()
		cctx := logger.WithLogFields(ctx, logger.LogFields{SourceType: logger.Ptr(name)})

		slog.InfoContext(cctx, "collecting")
		res, err := collectSafe(cctx, c)
		if err != nil {
			slog.ErrorContext(cctx, "collector failed", "error", logger.Truncate(err.Error(), 200))
			m.CollectorsFailed = append(m.CollectorsFailed, name)
			continue
		}

		if len(res.Errors) > 0 {
			slog.WarnContext(cctx, "collector errors",
				"errors", res.Errors[:min(3, len(res.Errors))],
				"error_count", len(res.Errors))
			m.CollectorsFailed = append(m.CollectorsFailed, name)
		}

		added := 0
		for _, item := range res.Items {
			if item == nil {
				continue
			}
			if err := item.Validate(); err != nil {
				slog.DebugContext(cctx, "skipping invalid item", "item_id", item.ID, "error", err)
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			items = append(items, item)
			added++
		}
		m.ItemsBySource[name] += added
	}

	m.ItemsCollected = len(items)
	slog.InfoContext(ctx, "collection complete",
		"total_items", len(items),
		"collectors_failed", len(m.CollectorsFailed))
	return items
}

func collectSafe(ctx context.Context, c collector.Collector) (res *collector.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in collector",
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("collector %s panicked: %v", c.Name(), r)
		}
	}()

	res, err = c.Collect(ctx)
	if err == nil && res == nil {
		err = fmt.Errorf("collector %s returned no result", c.Name())
	}
	return res, err
}
