package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/radar/common/id"
	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/internal/collector"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/notifier"
	"basegraph.app/radar/internal/novelty"
	"basegraph.app/radar/internal/ranker"
	"basegraph.app/radar/internal/store"
	"basegraph.app/radar/internal/synthesizer"
)

type Ranker interface {
	RankAll(ctx context.Context, items []*model.CollectedItem) []ranker.RankedItem
	Filter(ranked []ranker.RankedItem) []ranker.RankedItem
	ApplyScores(ctx context.Context, ranked []ranker.RankedItem) []*model.CollectedItem
}

type NoveltyDetector interface {
	FilterNovel(ctx context.Context, items []*model.CollectedItem) []*model.CollectedItem
	DetectDuplicates(ctx context.Context, items []*model.CollectedItem, threshold float64) []novelty.Duplicate
	Remember(ctx context.Context, items []*model.CollectedItem) error
}

type Analyzer interface {
	AnalyzeBatch(ctx context.Context, items []*model.CollectedItem) []model.AnalyzedItem
}

type Synthesizer interface {
	Synthesize(ctx context.Context, mode model.Mode, items []model.AnalyzedItem) (model.Synthesis, error)
}

type Renderer interface {
	Render(ctx context.Context, s model.Synthesis, items []model.AnalyzedItem) (string, error)
	UpdateIndex(ctx context.Context) (string, error)
	UpdateTopics(ctx context.Context, items []model.AnalyzedItem) ([]string, error)
}

type Emailer interface {
	Send(ctx context.Context, s model.Synthesis, items []model.AnalyzedItem) error
}

// Deps are the collaborators of a cycle. Emailer and Runs may be nil.
type Deps struct {
	Collectors  []collector.Collector
	Ranker      Ranker
	Novelty     NoveltyDetector
	Analyzer    Analyzer
	Synthesizer Synthesizer
	Renderer    Renderer
	Notifier    *notifier.Notifier
	Emailer     Emailer
	Runs        store.RunStore
}

type Config struct {
	DedupeBatch   bool
	RecordHistory bool
	EmailModes    []model.Mode
}

// RunOptions select what a cycle does. A zero RunID gets a fresh snowflake ID.
type RunOptions struct {
	Mode    model.Mode
	Trigger model.RunTrigger
	RunID   int64
}

// Orchestrator runs one collect, process, analyze, synthesize and publish
// cycle at a time. It is not safe for concurrent Run calls; the worker
// serialises them.
type Orchestrator struct {
	deps  Deps
	cfg   Config
	newID func() int64
	now   func() time.Time
}

func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notifier.Nop()
	}
	return &Orchestrator{
		deps:  deps,
		cfg:   cfg,
		newID: id.New,
		now:   time.Now,
	}
}

func (o *Orchestrator) WithIDs(fn func() int64) *Orchestrator {
	o.newID = fn
	return o
}

// WithClock replaces the clock used for the period of empty and failed cycles.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run executes one cycle. It returns an error only when the cycle failed; the
// returned run is never nil for a valid mode and carries the metrics either way.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (run *model.Run, err error) {
	if !opts.Mode.IsValid() {
		return nil, fmt.Errorf("run cycle: invalid mode %q", opts.Mode)
	}
	if opts.Trigger == "" {
		opts.Trigger = model.RunTriggerCLI
	}
	runID := opts.RunID
	if runID == 0 {
		runID = o.newID()
	}

	run = model.NewRun(runID, opts.Mode, opts.Trigger)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &runID,
		Mode:      logger.Ptr(string(opts.Mode)),
		Component: "radar.orchestrator",
	})

	span := logger.StartSpan(ctx, "radar.cycle")
	defer span.End()
	ctx = span.Context()
	span.SetAttributes(
		attribute.Int64("radar.run_id", runID),
		attribute.String("radar.mode", string(opts.Mode)),
		attribute.String("radar.trigger", string(opts.Trigger)),
	)

	slog.InfoContext(ctx, "cycle starting", "trigger", opts.Trigger)
	o.createRun(ctx, run)

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in cycle",
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("cycle panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			o.fail(ctx, run, err)
		}
		o.finishRun(ctx, run)
	}()

	if err := o.cycle(ctx, run); err != nil {
		return run, err
	}

	slog.InfoContext(ctx, "cycle complete",
		"status", run.Status,
		"duration_ms", time.Since(run.StartedAt).Milliseconds(),
		"items_collected", run.Metrics.ItemsCollected,
		"items_analyzed", run.Metrics.ItemsAnalyzed,
		"items_discarded", run.Metrics.ItemsDiscarded)
	return run, nil
}

func (o *Orchestrator) cycle(ctx context.Context, run *model.Run) error {
	d := &run.Metrics.Durations

	var items []*model.CollectedItem
	if err := o.phase(ctx, "collect", &d.Collection, func(ctx context.Context) error {
		items = o.collect(ctx, run)
		return ctx.Err()
	}); err != nil {
		return err
	}

	if len(items) == 0 {
		slog.WarnContext(ctx, "no items collected")
		run.Finish(model.RunStatusEmpty, nil)
		if err := o.deps.Notifier.NotifyEmpty(ctx, run.Mode, o.period(run.Mode)); err != nil {
			slog.WarnContext(ctx, "empty notification failed", "error", err)
		}
		return nil
	}

	processed, err := o.process(ctx, run, items)
	if err != nil {
		return err
	}
	if len(processed) == 0 {
		slog.WarnContext(ctx, "no items after processing", "discarded", run.Metrics.ItemsDiscarded)
		run.Finish(model.RunStatusEmpty, nil)
		return nil
	}

	var analyzed []model.AnalyzedItem
	if err := o.phase(ctx, "analyze", &d.Analysis, func(ctx context.Context) error {
		analyzed = o.analyze(ctx, run, processed)
		return ctx.Err()
	}); err != nil {
		return err
	}

	var syn model.Synthesis
	if err := o.phase(ctx, "synthesize", &d.Synthesis, func(ctx context.Context) error {
		var err error
		if syn, err = o.deps.Synthesizer.Synthesize(ctx, run.Mode, analyzed); err != nil {
			return fmt.Errorf("synthesizing: %w", err)
		}
		if syn == nil {
			return errors.New("synthesizing: no synthesis produced")
		}
		run.Synthesis = syn
		run.Metrics.SynthesisDegraded = syn.IsDegraded()
		return nil
	}); err != nil {
		return err
	}

	if err := o.phase(ctx, "output", &d.Output, func(ctx context.Context) error {
		return o.output(ctx, run, syn, analyzed)
	}); err != nil {
		return err
	}

	o.notify(ctx, run, syn, analyzed)
	o.email(ctx, run, syn, analyzed)

	run.Finish(model.RunStatusSucceeded, nil)
	return nil
}

// phase runs fn inside a radar.<name> span and adds its wall time to *elapsed.
func (o *Orchestrator) phase(ctx context.Context, name string, elapsed *int64, fn func(ctx context.Context) error) error {
	span := logger.StartSpan(ctx, "radar."+name)
	defer span.End()

	start := time.Now()
	err := fn(logger.WithLogFields(span.Context(), logger.LogFields{Component: "radar." + name}))
	*elapsed += time.Since(start).Milliseconds()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (o *Orchestrator) process(ctx context.Context, run *model.Run, items []*model.CollectedItem) ([]*model.CollectedItem, error) {
	m := &run.Metrics
	elapsed := &m.Durations.Processing

	var scored []*model.CollectedItem
	if err := o.phase(ctx, "rank", elapsed, func(ctx context.Context) error {
		ranked := o.deps.Ranker.RankAll(ctx, items)
		scored = o.deps.Ranker.ApplyScores(ctx, o.deps.Ranker.Filter(ranked))
		m.DiscardedBySignal = len(items) - len(scored)
		run.Discard(m.DiscardedBySignal)
		slog.InfoContext(ctx, "signal filter complete",
			"passed", len(scored),
			"discarded", m.DiscardedBySignal)
		return ctx.Err()
	}); err != nil {
		return nil, err
	}

	var novel []*model.CollectedItem
	if err := o.phase(ctx, "novelty", elapsed, func(ctx context.Context) error {
		novel = o.deps.Novelty.FilterNovel(ctx, scored)
		m.DiscardedByNovelty = len(scored) - len(novel)
		run.Discard(m.DiscardedByNovelty)
		return ctx.Err()
	}); err != nil {
		return nil, err
	}

	if o.cfg.DedupeBatch && len(novel) > 1 {
		if err := o.phase(ctx, "dedupe", elapsed, func(ctx context.Context) error {
			dups := o.deps.Novelty.DetectDuplicates(ctx, novel, novelty.UseConfigured)
			var removed int
			novel, removed = novelty.DropDuplicates(novel, dups)
			m.DuplicatesRemoved = removed
			run.Discard(removed)
			return ctx.Err()
		}); err != nil {
			return nil, err
		}
	}

	if o.cfg.RecordHistory && len(novel) > 0 {
		_ = o.phase(ctx, "remember", elapsed, func(ctx context.Context) error {
			if err := o.deps.Novelty.Remember(ctx, novel); err != nil {
				slog.WarnContext(ctx, "recording item history failed", "error", err)
			}
			return nil
		})
	}

	m.ItemsProcessed = len(novel)
	slog.InfoContext(ctx, "processing complete",
		"total", len(novel),
		"discarded_total", m.ItemsDiscarded)
	return novel, nil
}

func (o *Orchestrator) analyze(ctx context.Context, run *model.Run, items []*model.CollectedItem) []model.AnalyzedItem {
	results := o.deps.Analyzer.AnalyzeBatch(ctx, items)

	m := &run.Metrics
	for _, r := range results {
		switch {
		case r.Analysis == nil:
			m.AnalysisErrors++
		case r.Analysis.Fallback:
			m.ItemsAnalyzed++
			m.AnalysisFallbacks++
		default:
			m.ItemsAnalyzed++
		}
	}

	slog.InfoContext(ctx, "analysis complete",
		"analyzed", m.ItemsAnalyzed,
		"errors", m.AnalysisErrors,
		"fallbacks", m.AnalysisFallbacks)
	return results
}

func (o *Orchestrator) output(ctx context.Context, run *model.Run, syn model.Synthesis, analyzed []model.AnalyzedItem) error {
	path, err := o.deps.Renderer.Render(ctx, syn, analyzed)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	run.Metrics.ReportPath = path

	if run.Mode == model.ModeDaily {
		if _, err := o.deps.Renderer.UpdateTopics(ctx, analyzed); err != nil {
			slog.WarnContext(ctx, "updating topic pages failed", "error", err)
		}
	}

	if _, err := o.deps.Renderer.UpdateIndex(ctx); err != nil {
		return fmt.Errorf("updating index: %w", err)
	}

	slog.InfoContext(ctx, "output generated", "report", path)
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, run *model.Run, syn model.Synthesis, analyzed []model.AnalyzedItem) {
	m := run.Metrics
	n := o.deps.Notifier

	var errs []error
	switch s := syn.(type) {
	case *model.DailySynthesis:
		var highlight string
		if len(s.Highlights) > 0 {
			highlight = s.Highlights[0]
		}
		errs = append(errs, n.NotifyDailyComplete(ctx, s.Date, m.ItemsAnalyzed, m.ItemsDiscarded, s.RelevanceScore, highlight))
		if len(m.CollectorsFailed) > 0 {
			errs = append(errs, n.NotifyDailyErrors(ctx, s.Date, m.ItemsAnalyzed, m.CollectorsFailed))
		}
	case *model.WeeklySynthesis:
		errs = append(errs, n.NotifyWeeklyComplete(ctx, s.Week, s.RelevanceScore, s.Trends))
	case *model.MonthlySynthesis:
		errs = append(errs, n.NotifyMonthlyComplete(ctx, s.Month, s.RelevanceScore))
	}

	for _, ai := range analyzed {
		if ai.Item != nil && ai.Item.SignalScore != nil && *ai.Item.SignalScore >= criticalSignal {
			errs = append(errs, n.NotifyCriticalSignal(ctx, ai.Item))
		}
	}

	if err := errors.Join(errs...); err != nil {
		slog.WarnContext(ctx, "notification failed", "error", err)
	}
}

const criticalSignal = 10

func (o *Orchestrator) email(ctx context.Context, run *model.Run, syn model.Synthesis, analyzed []model.AnalyzedItem) {
	if o.deps.Emailer == nil {
		return
	}
	if !slices.Contains(o.cfg.EmailModes, run.Mode) {
		slog.DebugContext(ctx, "email not sent for mode")
		return
	}
	if err := o.deps.Emailer.Send(ctx, syn, analyzed); err != nil {
		slog.ErrorContext(ctx, "email report failed", "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, run *model.Run, cause error) {
	slog.ErrorContext(ctx, "cycle failed", "error", logger.Truncate(cause.Error(), 500))
	run.Finish(model.RunStatusFailed, cause)

	// The cycle context may be what failed; the notification still goes out.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := o.deps.Notifier.NotifyCycleFailed(notifyCtx, o.period(run.Mode), cause); err != nil {
		slog.WarnContext(ctx, "failure notification failed", "error", err)
	}
}

func (o *Orchestrator) period(mode model.Mode) string {
	now := o.now().UTC()
	switch mode {
	case model.ModeWeekly:
		return synthesizer.WeekKey(now)
	case model.ModeMonthly:
		return now.Format("2006-01")
	default:
		return now.Format("2006-01-02")
	}
}

func (o *Orchestrator) createRun(ctx context.Context, run *model.Run) {
	if o.deps.Runs == nil {
		return
	}
	if err := o.deps.Runs.Create(ctx, run); err != nil {
		slog.WarnContext(ctx, "recording run start failed", "error", err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, run *model.Run) {
	if o.deps.Runs == nil {
		return
	}
	if run.Status == model.RunStatusRunning {
		run.Finish(model.RunStatusFailed, errors.New("cycle ended without a status"))
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.deps.Runs.Finish(storeCtx, run); err != nil {
		slog.WarnContext(ctx, "recording run result failed", "error", err)
	}
}
