package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"basegraph.app/radar/common/llm"
	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/vectorstore"
)

const (
	maxTokens       = 1024
	contentLimit    = 4000
	fallbackLimit   = 500
	fallbackInsight = "Analysis unavailable - using fallback"
)

type Config struct {
	RequestDelay time.Duration
	Persist      bool
}

// Analyzer produces a structured analysis per item with the analysis model.
type Analyzer struct {
	client llm.Client
	store  vectorstore.Store
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds an Analyzer. store may be nil, which disables persistence.
func New(client llm.Client, store vectorstore.Store, cfg Config) *Analyzer {
	return &Analyzer{
		client: client,
		store:  store,
		cfg:    cfg,
		sleep:  sleepCtx,
	}
}

func (a *Analyzer) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Analyzer {
	a.sleep = fn
	return a
}

// Analyze never fails: model errors, unusable output and panics all yield
// the fallback analysis.
func (a *Analyzer) Analyze(ctx context.Context, item *model.CollectedItem) (result *model.AnalysisResult) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ItemID:     logger.Ptr(item.ID),
		SourceType: logger.Ptr(string(item.SourceType)),
	})

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "analysis panicked, using fallback",
				"panic", r,
				"stack", string(debug.Stack()))
			result = Fallback(item)
		}
	}()

	slog.DebugContext(ctx, "analyzing item", "title", logger.Truncate(item.Title, 50))

	resp, err := a.client.Complete(ctx, llm.Request{
		Prompt:     buildPrompt(item),
		System:     systemPrompt,
		MaxTokens:  maxTokens,
		ExpectJSON: true,
	})
	if err != nil {
		slog.ErrorContext(ctx, "analysis failed, using fallback", "error", err)
		return Fallback(item)
	}
	if !resp.HasJSON() {
		slog.WarnContext(ctx, "analysis returned no json, using fallback", "content_length", len(resp.Content))
		return Fallback(item)
	}

	var w wireAnalysis
	if err := resp.DecodeJSON(&w); err != nil {
		slog.WarnContext(ctx, "analysis json unusable, using fallback", "error", err)
		return Fallback(item)
	}

	result = normalize(item.ID, w)
	if a.cfg.Persist {
		a.persist(ctx, item, result)
	}

	slog.InfoContext(ctx, "analysis complete",
		"actionability", result.Actionability,
		"confidence", result.Confidence)

	return result
}

// AnalyzeBatch analyses items one at a time, pausing RequestDelay between
// calls. The output has one pair per input, in input order.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, items []*model.CollectedItem) []model.AnalyzedItem {
	slog.InfoContext(ctx, "analyzing batch", "total_items", len(items))

	out := make([]model.AnalyzedItem, 0, len(items))
	successful := 0
	for i, item := range items {
		result := a.Analyze(ctx, item)
		if result != nil {
			successful++
		}
		out = append(out, model.AnalyzedItem{Item: item, Analysis: result})

		if i < len(items)-1 && a.cfg.RequestDelay > 0 {
			if err := a.sleep(ctx, a.cfg.RequestDelay); err != nil {
				slog.WarnContext(ctx, "analysis pause interrupted", "error", err)
			}
		}
	}

	slog.InfoContext(ctx, "batch analysis complete", "total", len(items), "successful", successful)
	return out
}

// Fallback summarises an item without the model: the first sentence of the
// content (or the title), low confidence, flagged as a fallback.
func Fallback(item *model.CollectedItem) *model.AnalysisResult {
	summary := item.Title
	if item.Content != "" {
		first, _, _ := strings.Cut(item.Content, ".")
		summary = first + "."
	}

	return &model.AnalysisResult{
		ItemID:        item.ID,
		Summary:       model.Truncate(summary, fallbackLimit),
		KeyInsights:   []string{fallbackInsight},
		Relevance:     "Unable to assess",
		Actionability: model.ActionabilityMedium,
		RelatedTopics: []string{string(item.SourceType)},
		Confidence:    0.3,
		Fallback:      true,
	}
}

func (a *Analyzer) persist(ctx context.Context, item *model.CollectedItem, result *model.AnalysisResult) {
	if a.store == nil {
		return
	}

	text := result.Summary + "\n" + strings.Join(result.KeyInsights, "\n")
	err := a.store.Add(ctx, vectorstore.CollectionAnalysis,
		[]string{text},
		[]string{"analysis_" + item.ID},
		[]map[string]any{{
			"item_id":       item.ID,
			"source_type":   string(item.SourceType),
			"actionability": string(result.Actionability),
			"confidence":    result.Confidence,
		}})
	if err != nil {
		slog.WarnContext(ctx, "analysis storage failed", "error", err)
	}
}

func buildPrompt(item *model.CollectedItem) string {
	return fmt.Sprintf(analysisPrompt,
		item.Title,
		item.SourceType,
		item.SourceURL,
		model.Truncate(item.Content, contentLimit),
		analysisSchema)
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
