package novelty

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/vectorstore"
)

const (
	searchPreview    = 1000
	duplicatePreview = 500
	searchResults    = 5

	novelScore   = 1.0
	unknownScore = 0.5

	defaultThreshold     = 0.3
	defaultMaxDistance   = 2.0
	defaultDuplicateSimi = 0.8
)

// UseConfigured asks DetectDuplicates for the configured similarity.
const UseConfigured = -1.0

// Config thresholds are taken as given, so 0 keeps every item or flags every
// pair. Negative values fall back to the defaults; MaxDistance must be
// positive.
type Config struct {
	Threshold           float64 // minimum novelty to keep an item
	MaxDistance         float64 // distance treated as "nothing alike"
	DuplicateSimilarity float64
}

func DefaultConfig() Config {
	return Config{
		Threshold:           defaultThreshold,
		MaxDistance:         defaultMaxDistance,
		DuplicateSimilarity: defaultDuplicateSimi,
	}
}

// Duplicate is a pair of items in the same batch that look alike. A precedes B
// in the input.
type Duplicate struct {
	A, B       *model.CollectedItem
	Similarity float64
}

// Detector scores items against the history kept in the items collection.
type Detector struct {
	store vectorstore.Store
	cfg   Config
}

func New(store vectorstore.Store, cfg Config) *Detector {
	if cfg.Threshold < 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = defaultMaxDistance
	}
	if cfg.DuplicateSimilarity < 0 {
		cfg.DuplicateSimilarity = defaultDuplicateSimi
	}
	return &Detector{store: store, cfg: cfg}
}

// ComputeNovelty returns 1 for an item unlike anything seen, 0 for an exact
// match, and 0.5 when the history cannot be consulted.
func (d *Detector) ComputeNovelty(ctx context.Context, item *model.CollectedItem) float64 {
	query := item.Title + "\n" + model.Truncate(item.Content, searchPreview)

	res, err := d.store.Search(ctx, query, vectorstore.CollectionItems, searchResults, nil)
	if err != nil {
		slog.WarnContext(ctx, "novelty check failed", "item_id", item.ID, "error", err)
		return unknownScore
	}
	if res == nil || len(res.Distances) == 0 || len(res.Distances[0]) == 0 {
		return novelScore
	}
	if len(res.IDs) != len(res.Distances) || len(res.IDs[0]) != len(res.Distances[0]) {
		slog.WarnContext(ctx, "novelty search returned malformed result", "item_id", item.ID)
		return unknownScore
	}

	minDistance := res.Distances[0][0]
	for _, dist := range res.Distances[0][1:] {
		minDistance = min(minDistance, dist)
	}

	similarity := clamp01(1 - min(minDistance/d.cfg.MaxDistance, 1))
	novelty := clamp01(1 - similarity)

	slog.DebugContext(ctx, "novelty computed",
		"item_id", item.ID,
		"min_distance", minDistance,
		"similarity", similarity,
		"novelty", novelty)

	return novelty
}

// CheckNovelty reports whether item clears the threshold, with its score.
func (d *Detector) CheckNovelty(ctx context.Context, item *model.CollectedItem) (bool, float64) {
	score := d.ComputeNovelty(ctx, item)
	return score >= d.cfg.Threshold, score
}

// FilterNovel keeps novel items, in order, with NoveltyScore set.
func (d *Detector) FilterNovel(ctx context.Context, items []*model.CollectedItem) []*model.CollectedItem {
	slog.InfoContext(ctx, "filtering novelty", "total_items", len(items), "threshold", d.cfg.Threshold)

	novel := make([]*model.CollectedItem, 0, len(items))
	for _, item := range items {
		ok, score := d.CheckNovelty(ctx, item)
		if !ok {
			slog.DebugContext(ctx, "item not novel", "item_id", item.ID, "novelty_score", score)
			continue
		}
		if err := item.SetNovelty(score); err != nil {
			slog.WarnContext(ctx, "novelty already set", "item_id", item.ID, "error", err)
		}
		novel = append(novel, item)
	}

	slog.InfoContext(ctx, "novelty filter complete",
		"passed", len(novel),
		"filtered", len(items)-len(novel))

	return novel
}

// DetectDuplicates compares every pair in the batch. A negative threshold,
// such as UseConfigured, uses the configured similarity. Embedding failures
// yield no duplicates.
func (d *Detector) DetectDuplicates(ctx context.Context, items []*model.CollectedItem, threshold float64) []Duplicate {
	if threshold < 0 {
		threshold = d.cfg.DuplicateSimilarity
	}
	if len(items) < 2 {
		return []Duplicate{}
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Title + "\n" + model.Truncate(item.Content, duplicatePreview)
	}

	embeddings, err := d.store.GetEmbeddings(ctx, texts)
	if err != nil {
		slog.WarnContext(ctx, "duplicate detection failed", "error", err, "items", len(items))
		return []Duplicate{}
	}
	if len(embeddings) != len(items) {
		slog.WarnContext(ctx, "duplicate detection got wrong embedding count",
			"items", len(items),
			"embeddings", len(embeddings))
		return []Duplicate{}
	}

	dups := []Duplicate{}
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			sim := CosineSimilarity(embeddings[i], embeddings[j])
			if sim >= threshold {
				dups = append(dups, Duplicate{A: items[i], B: items[j], Similarity: sim})
			}
		}
	}

	if len(dups) > 0 {
		slog.InfoContext(ctx, "duplicates detected", "pairs", len(dups), "threshold", threshold)
	}
	return dups
}

// Remember adds items to the history so later cycles judge novelty against
// them. Documents use the same text ComputeNovelty searches with.
func (d *Detector) Remember(ctx context.Context, items []*model.CollectedItem) error {
	if len(items) == 0 {
		return nil
	}

	docs := make([]string, len(items))
	ids := make([]string, len(items))
	metas := make([]map[string]any, len(items))
	for i, item := range items {
		docs[i] = item.Title + "\n" + model.Truncate(item.Content, searchPreview)
		ids[i] = item.ID
		meta := map[string]any{
			"source_type":  string(item.SourceType),
			"title":        item.Title,
			"url":          item.SourceURL,
			"collected_at": item.CollectedAt.UTC().Format(time.RFC3339),
		}
		if item.SignalScore != nil {
			meta["signal_score"] = *item.SignalScore
		}
		metas[i] = meta
	}

	if err := d.store.Add(ctx, vectorstore.CollectionItems, docs, ids, metas); err != nil {
		return fmt.Errorf("remembering %d items: %w", len(items), err)
	}
	slog.DebugContext(ctx, "items remembered", "count", len(items))
	return nil
}

// DropDuplicates removes the later item of every pair, preserving order.
func DropDuplicates(items []*model.CollectedItem, dups []Duplicate) ([]*model.CollectedItem, int) {
	drop := make(map[string]struct{}, len(dups))
	for _, dup := range dups {
		drop[dup.B.ID] = struct{}{}
	}
	kept := make([]*model.CollectedItem, 0, len(items))
	for _, item := range items {
		if _, ok := drop[item.ID]; !ok {
			kept = append(kept, item)
		}
	}
	return kept, len(items) - len(kept)
}

// CosineSimilarity is dot(a,b)/(|a||b|), 0 for zero-norm or mismatched vectors.
func CosineSimilarity(a, b []float32) float64 {
	return vectorstore.CosineSimilarity(a, b)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
