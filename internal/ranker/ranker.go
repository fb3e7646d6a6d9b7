package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/radar/common/llm"
	"basegraph.app/radar/internal/model"
)

const (
	maxTokens       = 4096
	contentPreview  = 1000
	defaultScore    = 5
	elevatedScore   = 6
	priorityScore   = 7
	fallbackReason  = "Fallback ranking (model unavailable)"
	defaultBatch    = 10
	defaultMinScore = 4

	// Scores from different batches are compared against one threshold.
	scoringTemperature = 0.2
)

// RankedItem is an item together with the ranker's verdict. It lives only
// until ApplyScores copies the verdict onto the item.
type RankedItem struct {
	Item        *model.CollectedItem
	SignalScore int
	Impact      model.Impact
	Maturity    model.Maturity
	Reasoning   string
	Fallback    bool
}

// FallbackPolicy scores items heuristically when the model cannot.
type FallbackPolicy struct {
	Elevated []model.SourceType // scored 6
	Priority []model.SourceType // scored 7, as are items with a priority label
}

func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		Elevated: []model.SourceType{model.SourceGitHubSignals, model.SourceDocs},
		Priority: []model.SourceType{model.SourceGitHubEmerging},
	}
}

func (p FallbackPolicy) score(item *model.CollectedItem) int {
	switch {
	case containsSource(p.Elevated, item.SourceType):
		return elevatedScore
	case containsSource(p.Priority, item.SourceType):
		return priorityScore
	case item.HasPriorityLabel():
		return priorityScore
	default:
		return defaultScore
	}
}

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	Threshold  int
	Fallback   FallbackPolicy
}

type Ranker struct {
	client llm.Client
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(client llm.Client, cfg Config) *Ranker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatch
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultMinScore
	}
	return &Ranker{
		client: client,
		cfg:    cfg,
		sleep:  sleepCtx,
	}
}

// WithSleep replaces the pause between batches. Tests use it to record delays.
func (r *Ranker) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Ranker {
	r.sleep = fn
	return r
}

// RankBatch scores up to one batch of items with a single model call. It
// always returns one RankedItem per input, in input order.
func (r *Ranker) RankBatch(ctx context.Context, items []*model.CollectedItem) []RankedItem {
	if len(items) == 0 {
		return []RankedItem{}
	}

	resp, err := r.client.Complete(ctx, llm.Request{
		Prompt:      buildPrompt(items),
		System:      systemPrompt,
		MaxTokens:   maxTokens,
		Temperature: llm.Temp(scoringTemperature),
		ExpectJSON:  true,
	})
	if err != nil {
		slog.ErrorContext(ctx, "batch ranking failed, using fallback",
			"error", err,
			"items", len(items))
		return r.fallback(items)
	}
	if !resp.HasJSON() {
		slog.WarnContext(ctx, "batch ranking returned no json, using fallback",
			"items", len(items),
			"content_length", len(resp.Content))
		return r.fallback(items)
	}

	entries, err := parseEntries(resp.JSON)
	if err != nil {
		slog.WarnContext(ctx, "batch ranking json unusable, using fallback",
			"error", err,
			"items", len(items))
		return r.fallback(items)
	}

	return normalize(items, entries)
}

// RankAll ranks items in batches of BatchSize, pausing BatchDelay between
// batches but not after the last one.
func (r *Ranker) RankAll(ctx context.Context, items []*model.CollectedItem) []RankedItem {
	size := r.cfg.BatchSize
	total := (len(items) + size - 1) / size

	slog.InfoContext(ctx, "ranking items",
		"total_items", len(items),
		"batch_size", size,
		"total_batches", total)

	ranked := make([]RankedItem, 0, len(items))
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batch := items[start:end]

		slog.DebugContext(ctx, "ranking batch", "batch", start/size+1, "items", len(batch))
		ranked = append(ranked, r.RankBatch(ctx, batch)...)

		if end < len(items) && r.cfg.BatchDelay > 0 {
			if err := r.sleep(ctx, r.cfg.BatchDelay); err != nil {
				slog.WarnContext(ctx, "ranking interrupted", "error", err, "ranked", len(ranked))
				ranked = append(ranked, r.fallback(items[end:])...)
				break
			}
		}
	}
	return ranked
}

// Filter keeps items scoring at least Threshold, preserving order.
func (r *Ranker) Filter(ranked []RankedItem) []RankedItem {
	kept := make([]RankedItem, 0, len(ranked))
	for _, ri := range ranked {
		if ri.SignalScore >= r.cfg.Threshold {
			kept = append(kept, ri)
		}
	}
	return kept
}

// ApplyScores writes each verdict onto its item and returns the items. An
// item that already carries a verdict keeps it.
func (r *Ranker) ApplyScores(ctx context.Context, ranked []RankedItem) []*model.CollectedItem {
	items := make([]*model.CollectedItem, 0, len(ranked))
	for _, ri := range ranked {
		if err := ri.Item.SetSignal(ri.SignalScore, ri.Impact, ri.Maturity); err != nil {
			slog.WarnContext(ctx, "signal already set", "item_id", ri.Item.ID, "error", err)
		}
		items = append(items, ri.Item)
	}
	return items
}

func (r *Ranker) Threshold() int {
	return r.cfg.Threshold
}

func (r *Ranker) fallback(items []*model.CollectedItem) []RankedItem {
	ranked := make([]RankedItem, len(items))
	for i, item := range items {
		ranked[i] = RankedItem{
			Item:        item,
			SignalScore: r.cfg.Fallback.score(item),
			Impact:      model.ImpactEcosystem,
			Maturity:    model.MaturityGrowing,
			Reasoning:   fallbackReason,
			Fallback:    true,
		}
	}
	return ranked
}

func buildPrompt(items []*model.CollectedItem) string {
	blocks := make([]string, len(items))
	for i, item := range items {
		blocks[i] = fmt.Sprintf("[%d] **%s**\nSource: %s\n%s",
			i, item.Title, item.SourceType, model.Truncate(item.Content, contentPreview))
	}
	return fmt.Sprintf(rankingPrompt, len(items), strings.Join(blocks, "\n\n"), entrySchema)
}

func containsSource(set []model.SourceType, s model.SourceType) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
