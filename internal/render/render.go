package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	"basegraph.app/radar/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	dirDaily   = "daily"
	dirWeekly  = "weekly"
	dirMonthly = "monthly"
	dirTopics  = "topics"
)

var markdown = template.Must(template.New("markdown").Funcs(template.FuncMap{
	"sourceTitle": sourceTitle,
	"first":       first,
	"signal":      signal,
	"novelty":     novelty,
}).ParseFS(templateFS, "templates/*.md.tmpl"))

// Renderer writes the markdown knowledge base under one base directory:
//
//	daily/YYYY-MM-DD.md
//	weekly/YYYY-Www.md
//	monthly/YYYY-MM.md
//	topics/<slug>.md
//	index.md
type Renderer struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Renderer {
	if baseDir == "" {
		baseDir = "output"
	}
	return &Renderer{baseDir: baseDir, now: time.Now}
}

// WithClock replaces the clock used for index timestamps and topic entries.
func (r *Renderer) WithClock(now func() time.Time) *Renderer {
	r.now = now
	return r
}

func (r *Renderer) BaseDir() string {
	return r.baseDir
}

// Render writes the report for whichever synthesis it is given.
func (r *Renderer) Render(ctx context.Context, s model.Synthesis, items []model.AnalyzedItem) (string, error) {
	switch v := s.(type) {
	case *model.DailySynthesis:
		return r.Daily(ctx, v, items)
	case *model.WeeklySynthesis:
		return r.Weekly(ctx, v)
	case *model.MonthlySynthesis:
		return r.Monthly(ctx, v)
	default:
		return "", fmt.Errorf("render: unsupported synthesis %T", s)
	}
}

type sourceGroup struct {
	Source model.SourceType
	Items  []model.AnalyzedItem
}

func (r *Renderer) Daily(ctx context.Context, s *model.DailySynthesis, items []model.AnalyzedItem) (string, error) {
	data := struct {
		Synthesis *model.DailySynthesis
		Groups    []sourceGroup
	}{Synthesis: s, Groups: groupBySource(items)}

	return r.write(ctx, "daily.md.tmpl", filepath.Join(dirDaily, s.Date+".md"), data)
}

func (r *Renderer) Weekly(ctx context.Context, s *model.WeeklySynthesis) (string, error) {
	return r.write(ctx, "weekly.md.tmpl", filepath.Join(dirWeekly, s.Week+".md"), s)
}

func (r *Renderer) Monthly(ctx context.Context, s *model.MonthlySynthesis) (string, error) {
	return r.write(ctx, "monthly.md.tmpl", filepath.Join(dirMonthly, s.Month+".md"), s)
}

// UpdateIndex rewrites index.md from the reports and topics on disk, newest
// first.
func (r *Renderer) UpdateIndex(ctx context.Context) (string, error) {
	data := struct {
		Updated string
		Daily   []string
		Weekly  []string
		Monthly []string
		Topics  []string
	}{Updated: r.now().UTC().Format("2006-01-02 15:04 UTC")}

	var err error
	if data.Daily, err = r.reports(dirDaily, true); err != nil {
		return "", err
	}
	if data.Weekly, err = r.reports(dirWeekly, true); err != nil {
		return "", err
	}
	if data.Monthly, err = r.reports(dirMonthly, true); err != nil {
		return "", err
	}
	if data.Topics, err = r.reports(dirTopics, false); err != nil {
		return "", err
	}

	return r.write(ctx, "index.md.tmpl", "index.md", data)
}

func (r *Renderer) reports(dir string, newestFirst bool) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.baseDir, dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s reports: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	// Report names are ISO dates and weeks, so lexical order is chronological.
	slices.Sort(names)
	if newestFirst {
		slices.Reverse(names)
	}
	return names, nil
}

func (r *Renderer) write(ctx context.Context, tmpl, rel string, data any) (string, error) {
	var buf bytes.Buffer
	if err := markdown.ExecuteTemplate(&buf, tmpl, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", tmpl, err)
	}

	path := filepath.Join(r.baseDir, rel)
	if err := writeFile(path, buf.Bytes()); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "report written", "path", path, "bytes", buf.Len())
	return path, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func groupBySource(items []model.AnalyzedItem) []sourceGroup {
	index := map[model.SourceType]int{}
	var groups []sourceGroup
	for _, ai := range items {
		if ai.Item == nil {
			continue
		}
		i, ok := index[ai.Item.SourceType]
		if !ok {
			i = len(groups)
			index[ai.Item.SourceType] = i
			groups = append(groups, sourceGroup{Source: ai.Item.SourceType})
		}
		groups[i].Items = append(groups[i].Items, ai)
	}
	slices.SortFunc(groups, func(a, b sourceGroup) int {
		return strings.Compare(string(a.Source), string(b.Source))
	})
	return groups
}

// sourceTitle turns "github_signals" into "Github Signals".
func sourceTitle(s model.SourceType) string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func first(n int, list []string) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}

func signal(item *model.CollectedItem) string {
	if item.SignalScore == nil {
		return "-"
	}
	return fmt.Sprint(*item.SignalScore)
}

func novelty(item *model.CollectedItem) string {
	if item.NoveltyScore == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *item.NoveltyScore)
}
