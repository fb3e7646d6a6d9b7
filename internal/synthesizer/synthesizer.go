package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/radar/common/llm"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/vectorstore"
)

const (
	digestSummaryLimit = 200
	reviewManually     = "Review items manually"
)

// modeSettings are the per-mode model call parameters.
type modeSettings struct {
	maxItems  int
	maxTokens int
	timeout   time.Duration
}

var settings = map[model.Mode]modeSettings{
	model.ModeDaily:   {maxItems: 50, maxTokens: 2048, timeout: 120 * time.Second},
	model.ModeWeekly:  {maxItems: 50, maxTokens: 3000, timeout: 120 * time.Second},
	model.ModeMonthly: {maxItems: 100, maxTokens: 4096, timeout: 300 * time.Second},
}

type Config struct {
	Persist bool
}

// Synthesizer turns a run's analysed items into one periodic narrative.
type Synthesizer struct {
	client llm.Client
	store  vectorstore.Store
	cfg    Config
	now    func() time.Time
}

// New builds a Synthesizer. store may be nil, which disables persistence.
func New(client llm.Client, store vectorstore.Store, cfg Config) *Synthesizer {
	return &Synthesizer{
		client: client,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
	}
}

// WithClock replaces the clock used to derive the period key.
func (s *Synthesizer) WithClock(now func() time.Time) *Synthesizer {
	s.now = now
	return s
}

// Synthesize dispatches to the synthesis for mode.
func (s *Synthesizer) Synthesize(ctx context.Context, mode model.Mode, items []model.AnalyzedItem) (model.Synthesis, error) {
	switch mode {
	case model.ModeDaily:
		return s.SynthesizeDaily(ctx, items), nil
	case model.ModeWeekly:
		return s.SynthesizeWeekly(ctx, items), nil
	case model.ModeMonthly:
		return s.SynthesizeMonthly(ctx, items), nil
	default:
		return nil, fmt.Errorf("synthesize: unknown mode %q", mode)
	}
}

func (s *Synthesizer) SynthesizeDaily(ctx context.Context, items []model.AnalyzedItem) *model.DailySynthesis {
	date := s.now().UTC().Format("2006-01-02")
	set := settings[model.ModeDaily]

	prompt := fmt.Sprintf(dailyPrompt, date, Digest(items, set.maxItems), len(items), dailySchema)

	var w wireDaily
	if !s.call(ctx, model.ModeDaily, date, prompt, set, &w) {
		return fallbackDaily(date, items)
	}

	result := normalizeDaily(date, w)
	s.persist(ctx, result)
	return result
}

func (s *Synthesizer) SynthesizeWeekly(ctx context.Context, items []model.AnalyzedItem) *model.WeeklySynthesis {
	week := WeekKey(s.now().UTC())
	set := settings[model.ModeWeekly]

	prompt := fmt.Sprintf(weeklyPrompt, week, len(items), Digest(items, set.maxItems), weeklySchema)

	var w wireWeekly
	if !s.call(ctx, model.ModeWeekly, week, prompt, set, &w) {
		return fallbackWeekly(week, items)
	}

	result := normalizeWeekly(week, w)
	s.persist(ctx, result)
	s.snapshot(ctx, result, items)
	return result
}

func (s *Synthesizer) SynthesizeMonthly(ctx context.Context, items []model.AnalyzedItem) *model.MonthlySynthesis {
	month := s.now().UTC().Format("2006-01")
	set := settings[model.ModeMonthly]

	prompt := fmt.Sprintf(monthlyPrompt, month, len(items), Digest(items, set.maxItems), monthlySchema)

	var w wireMonthly
	if !s.call(ctx, model.ModeMonthly, month, prompt, set, &w) {
		return fallbackMonthly(month, items)
	}

	result := normalizeMonthly(month, w)
	s.persist(ctx, result)
	s.snapshot(ctx, result, items)
	return result
}

// call runs the model and decodes its JSON into out. It reports false when
// the caller should fall back.
func (s *Synthesizer) call(ctx context.Context, mode model.Mode, period, prompt string, set modeSettings, out any) bool {
	slog.InfoContext(ctx, "synthesizing", "mode", mode, "period", period)

	resp, err := s.client.Complete(ctx, llm.Request{
		Prompt:     prompt,
		System:     systemPrompt,
		MaxTokens:  set.maxTokens,
		Timeout:    set.timeout,
		ExpectJSON: true,
	})
	if err != nil {
		slog.ErrorContext(ctx, "synthesis failed, using fallback", "mode", mode, "error", err)
		return false
	}
	if !resp.HasJSON() {
		slog.WarnContext(ctx, "synthesis returned no json, using fallback", "mode", mode)
		return false
	}
	if err := resp.DecodeJSON(out); err != nil {
		slog.WarnContext(ctx, "synthesis json unusable, using fallback", "mode", mode, "error", err)
		return false
	}
	return true
}

func (s *Synthesizer) persist(ctx context.Context, syn model.Synthesis) {
	slog.InfoContext(ctx, "synthesis complete",
		"mode", syn.Mode(),
		"period", syn.Period(),
		"relevance_score", syn.Relevance())

	if !s.cfg.Persist || s.store == nil {
		return
	}

	mode := string(syn.Mode())
	err := s.store.Add(ctx, vectorstore.CollectionSynthesis,
		[]string{syn.SummaryText()},
		[]string{fmt.Sprintf("synthesis_%s_%s", mode, syn.Period())},
		[]map[string]any{{"mode": mode, "period": syn.Period()}})
	if err != nil {
		slog.WarnContext(ctx, "synthesis storage failed", "mode", mode, "error", err)
	}
}

// snapshot records the items a weekly or monthly synthesis was built from,
// keyed like the synthesis itself.
func (s *Synthesizer) snapshot(ctx context.Context, syn model.Synthesis, items []model.AnalyzedItem) {
	if !s.cfg.Persist || s.store == nil {
		return
	}

	mode := string(syn.Mode())
	err := s.store.Add(ctx, vectorstore.CollectionSnapshots,
		[]string{Digest(items, settings[syn.Mode()].maxItems)},
		[]string{fmt.Sprintf("snapshot_%s_%s", mode, syn.Period())},
		[]map[string]any{{"mode": mode, "period": syn.Period(), "item_count": len(items)}})
	if err != nil {
		slog.WarnContext(ctx, "snapshot storage failed", "mode", mode, "error", err)
	}
}

// Digest formats the first maxItems items as a bulleted list for the prompt.
func Digest(items []model.AnalyzedItem, maxItems int) string {
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	entries := make([]string, len(items))
	for i, ai := range items {
		entry := fmt.Sprintf("- [%s] %s", ai.Item.SourceType, ai.Item.Title)
		if ai.Analysis != nil {
			entry += "\n  Summary: " + model.Truncate(ai.Analysis.Summary, digestSummaryLimit)
		}
		entries[i] = entry
	}
	return strings.Join(entries, "\n\n")
}

// WeekKey renders t as YYYY-Www where the week number counts Mondays: days
// before the year's first Monday are week 00.
func WeekKey(t time.Time) string {
	yday := t.YearDay() - 1
	wday := (int(t.Weekday()) + 6) % 7
	week := (yday + 7 - wday) / 7
	return fmt.Sprintf("%d-W%02d", t.Year(), week)
}
