package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"basegraph.app/radar/common/llm"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/core/db"
	"basegraph.app/radar/internal/analyzer"
	"basegraph.app/radar/internal/collector"
	"basegraph.app/radar/internal/model"
	"basegraph.app/radar/internal/notifier"
	"basegraph.app/radar/internal/novelty"
	"basegraph.app/radar/internal/orchestrator"
	"basegraph.app/radar/internal/ranker"
	"basegraph.app/radar/internal/render"
	"basegraph.app/radar/internal/store"
	"basegraph.app/radar/internal/synthesizer"
	"basegraph.app/radar/internal/vectorstore"
)

type pipelineOptions struct {
	database     *db.DB // nil runs without history or pgvector
	notifier     *notifier.Notifier
	emailPreview bool
}

// buildOrchestrator wires every stage of a cycle from configuration.
func buildOrchestrator(cfg config.Config, opts pipelineOptions) (*orchestrator.Orchestrator, error) {
	var q db.Querier
	if opts.database != nil {
		q = opts.database.Pool()
	}

	embedder, err := vectorstore.NewEmbedder(cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	vectors, err := vectorstore.New(cfg.VectorStore, q, embedder)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	analysisLLM, err := newLLM(cfg.AnalysisLLM)
	if err != nil {
		return nil, fmt.Errorf("creating analysis model client: %w", err)
	}
	synthesisLLM, err := newLLM(cfg.SynthesisLLM)
	if err != nil {
		return nil, fmt.Errorf("creating synthesis model client: %w", err)
	}

	t := cfg.Thresholds
	registry := collector.NewRegistry(cfg.Collectors, collector.Options{})
	slog.Info("collectors enabled", "collectors", registry.Names())

	deps := orchestrator.Deps{
		Collectors: registry.All(),
		Ranker: ranker.New(analysisLLM, ranker.Config{
			BatchSize:  t.BatchSize,
			BatchDelay: t.BatchDelay(),
			Threshold:  t.SignalScoreMin,
			Fallback: ranker.FallbackPolicy{
				Elevated: sourceTypes(cfg.Ranking.FallbackElevated),
				Priority: sourceTypes(cfg.Ranking.FallbackPriority),
			},
		}),
		Novelty: novelty.New(vectors, novelty.Config{
			Threshold:           t.NoveltyScoreMin,
			MaxDistance:         t.NoveltyMaxDistance,
			DuplicateSimilarity: t.DuplicateSimilarity,
		}),
		Analyzer:    analyzer.New(analysisLLM, vectors, analyzer.Config{RequestDelay: t.RequestDelay(), Persist: true}),
		Synthesizer: synthesizer.New(synthesisLLM, vectors, synthesizer.Config{Persist: true}),
		Renderer:    render.New(cfg.Output.BaseDir),
		Notifier:    opts.notifier,
	}
	if opts.database != nil {
		deps.Runs = store.NewStores(q).Runs()
	}

	oc := orchestrator.Config{
		DedupeBatch:   t.DedupeBatch,
		RecordHistory: t.RecordHistory,
	}

	email := cfg.Notifications.Email
	switch {
	case opts.emailPreview:
		deps.Emailer = &previewEmailer{reporter: render.NewEmailReporter(email), dir: cfg.Output.BaseDir}
		oc.EmailModes = []model.Mode{model.ModeDaily, model.ModeWeekly, model.ModeMonthly}
	case email.Configured():
		deps.Emailer = render.NewEmailReporter(email)
		for _, m := range email.SendOnModes {
			mode, err := model.ParseMode(m)
			if err != nil {
				return nil, fmt.Errorf("notifications.email.send_on_modes: %w", err)
			}
			oc.EmailModes = append(oc.EmailModes, mode)
		}
	}

	return orchestrator.New(deps, oc), nil
}

func newLLM(c config.LLMConfig) (llm.Client, error) {
	return llm.New(llm.Config{
		Provider:  c.Provider,
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Timeout:   c.TimeoutDuration(),
	})
}

func sourceTypes(names []string) []model.SourceType {
	out := make([]model.SourceType, len(names))
	for i, n := range names {
		out[i] = model.SourceType(n)
	}
	return out
}

// previewEmailer writes the email body next to the reports instead of
// sending it.
type previewEmailer struct {
	reporter *render.EmailReporter
	dir      string
}

func (p *previewEmailer) Send(ctx context.Context, s model.Synthesis, items []model.AnalyzedItem) error {
	body, err := p.reporter.Preview(s, items)
	if err != nil {
		return err
	}
	path := filepath.Join(p.dir, fmt.Sprintf("email-preview-%s-%s.html", s.Mode(), s.Period()))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing email preview: %w", err)
	}
	slog.InfoContext(ctx, "email preview written", "path", path)
	return nil
}
