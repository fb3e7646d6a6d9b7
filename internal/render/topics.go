package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"basegraph.app/radar/common"
	"basegraph.app/radar/internal/model"
)

// UpdateTopics appends each analyzed item to the page of every related topic
// its analysis names. An item already listed on a page is not added again.
// It returns the pages it touched.
func (r *Renderer) UpdateTopics(ctx context.Context, items []model.AnalyzedItem) ([]string, error) {
	entries := map[string][]string{}
	titles := map[string]string{}
	var order []string

	date := r.now().UTC().Format("2006-01-02")
	for _, ai := range items {
		if ai.Item == nil || ai.Analysis == nil {
			continue
		}
		for _, topic := range ai.Analysis.RelatedTopics {
			slug, err := common.Slugify(topic, "")
			if errors.Is(err, common.ErrEmptySlug) {
				continue
			}
			if _, ok := entries[slug]; !ok {
				order = append(order, slug)
				titles[slug] = strings.TrimSpace(topic)
			}
			entries[slug] = append(entries[slug], topicEntry(date, ai))
		}
	}

	var (
		paths []string
		errs  []error
	)
	for _, slug := range order {
		path := filepath.Join(r.baseDir, dirTopics, slug+".md")
		added, err := appendTopic(path, titles[slug], entries[slug])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if added > 0 {
			paths = append(paths, path)
		}
	}

	slog.InfoContext(ctx, "topic pages updated", "topics", len(order), "pages_changed", len(paths))
	return paths, errors.Join(errs...)
}

func topicEntry(date string, ai model.AnalyzedItem) string {
	summary := strings.ReplaceAll(model.Truncate(ai.Analysis.Summary, 200), "\n", " ")
	return fmt.Sprintf("- %s [%s](%s): %s", date, ai.Item.Title, ai.Item.SourceURL, summary)
}

// appendTopic adds lines whose link is not already on the page and reports
// how many were written.
func appendTopic(path, title string, lines []string) (int, error) {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	page := string(existing)
	if page == "" {
		page = fmt.Sprintf("# Topic: %s\n\n", title)
	}

	added := 0
	for _, line := range lines {
		if strings.Contains(page, linkOf(line)) {
			continue
		}
		page += line + "\n"
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, writeFile(path, []byte(page))
}

// linkOf returns the "](url)" part of an entry line.
func linkOf(line string) string {
	start := strings.Index(line, "](")
	if start < 0 {
		return line
	}
	end := strings.Index(line[start:], ")")
	if end < 0 {
		return line[start:]
	}
	return line[start : start+end+1]
}
