package collector

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/radar/internal/model"
)

// Collector gathers items from one source. Collect returns an error only when
// the source could not be reached at all; per-entry problems are reported in
// Result.Errors.
type Collector interface {
	Name() string
	Source() model.SourceType
	Collect(ctx context.Context) (*Result, error)
}

type Result struct {
	Source     model.SourceType
	Items      []*model.CollectedItem
	Errors     []string
	Duration   time.Duration
	Fetched    int // candidates produced before validation and dedup
	Skipped    int // candidates that failed validation
	Duplicates int // candidates dropped because their ID was already seen
}

// Base carries the identity of a collector and the bookkeeping shared by all
// of them.
type Base struct {
	name   string
	source model.SourceType
}

func newBase(name string, source model.SourceType) Base {
	return Base{name: name, source: source}
}

func (b Base) Name() string {
	return b.name
}

func (b Base) Source() model.SourceType {
	return b.source
}

// finish turns raw candidates into a Result: invalid items are skipped and
// repeated IDs keep their first occurrence.
func (b Base) finish(ctx context.Context, start time.Time, candidates []*model.CollectedItem, errs []string) *Result {
	res := &Result{
		Source:  b.source,
		Items:   make([]*model.CollectedItem, 0, len(candidates)),
		Errors:  errs,
		Fetched: len(candidates),
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, item := range candidates {
		if item == nil {
			res.Skipped++
			continue
		}
		if err := item.Validate(); err != nil {
			res.Skipped++
			slog.DebugContext(ctx, "collected item skipped",
				"collector", b.name,
				"url", item.SourceURL,
				"error", err)
			continue
		}
		if _, ok := seen[item.ID]; ok {
			res.Duplicates++
			continue
		}
		seen[item.ID] = struct{}{}
		res.Items = append(res.Items, item)
	}

	res.Duration = time.Since(start)

	slog.InfoContext(ctx, "collection finished",
		"collector", b.name,
		"items", len(res.Items),
		"fetched", res.Fetched,
		"skipped", res.Skipped,
		"duplicates", res.Duplicates,
		"errors", len(res.Errors),
		"duration_ms", res.Duration.Milliseconds())

	return res
}
