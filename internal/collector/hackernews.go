package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/model"
)

const (
	hackerNewsAPI = "https://hacker-news.firebaseio.com/v0"
	hnPermalink   = "https://news.ycombinator.com/item?id=%d"

	hnFetchConcurrency = 5
)

type hnItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	By          string `json:"by"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Time        int64  `json:"time"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// kind folds Ask HN and Show HN posts out of the generic story type.
func (i hnItem) kind() string {
	title := strings.ToLower(i.Title)
	switch {
	case strings.HasPrefix(title, "ask hn:"):
		return "ask"
	case strings.HasPrefix(title, "show hn:"):
		return "show"
	}
	if i.Type == "" {
		return "story"
	}
	return i.Type
}

type HackerNews struct {
	Base
	cfg    config.HackerNewsConfig
	client *http.Client
	base   string
}

func NewHackerNews(cfg config.HackerNewsConfig, timeout time.Duration, opts Options) *HackerNews {
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 30
	}
	if cfg.MinComments <= 0 {
		cfg.MinComments = 3
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 20
	}
	return &HackerNews{
		Base:   newBase("hackernews", model.SourceHackerNews),
		cfg:    cfg,
		client: opts.client(timeout),
		base:   opts.baseURL(hackerNewsAPI),
	}
}

func (h *HackerNews) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()

	var ids []int64
	if err := getJSON(ctx, h.client, h.base+"/topstories.json", nil, &ids); err != nil {
		return nil, fmt.Errorf("fetching top stories: %w", err)
	}

	// Read ahead of MaxItems since most stories are filtered out.
	if limit := h.cfg.MaxItems * 3; len(ids) > limit {
		ids = ids[:limit]
	}

	fetched := make([]*hnItem, len(ids))
	errs := make([]string, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hnFetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			var item hnItem
			if err := getJSON(gctx, h.client, fmt.Sprintf("%s/item/%d.json", h.base, id), nil, &item); err != nil {
				errs[i] = fmt.Sprintf("item %d: %s", id, logger.Truncate(err.Error(), 200))
				return nil
			}
			fetched[i] = &item
			return nil
		})
	}
	_ = g.Wait()

	var (
		candidates []*model.CollectedItem
		failures   []string
	)
	for i, item := range fetched {
		if errs[i] != "" {
			failures = append(failures, errs[i])
			continue
		}
		if len(candidates) >= h.cfg.MaxItems {
			break
		}
		if item == nil || item.Dead || item.Deleted || !h.include(*item) {
			continue
		}
		candidates = append(candidates, h.toItem(*item))
	}

	if len(failures) > 0 {
		slog.WarnContext(ctx, "hacker news items failed to load", "count", len(failures))
	}

	return h.finish(ctx, start, candidates, failures), nil
}

// include applies the per-type thresholds. AI-relevant stories clear the bar
// at half the usual points.
func (h *HackerNews) include(item hnItem) bool {
	relevant := isAIRelevant(item.Title, item.Text)

	switch item.kind() {
	case "ask":
		return relevant
	case "show":
		if relevant {
			return item.Descendants >= h.cfg.MinComments
		}
		return item.Score >= h.cfg.MinPoints && item.Descendants >= h.cfg.MinComments
	default:
		if relevant {
			return item.Score >= h.cfg.MinPoints/2
		}
		return item.Score >= h.cfg.MinPoints
	}
}

func (h *HackerNews) toItem(hn hnItem) *model.CollectedItem {
	permalink := fmt.Sprintf(hnPermalink, hn.ID)
	url := hn.URL
	if url == "" {
		url = permalink
	}

	text := cleanHTML(hn.Text)

	var content strings.Builder
	fmt.Fprintf(&content, "**%s**\n\n", hn.Title)
	if text != "" {
		content.WriteString(text + "\n\n")
	}
	fmt.Fprintf(&content, "Posted by %s | %d points | %d comments", hn.By, hn.Score, hn.Descendants)

	item := model.NewItem(model.SourceHackerNews, url, hn.Title, content.String())
	item.Author = hn.By
	item.Summary = hn.Title
	if text != "" {
		item.Summary = model.Truncate(hn.Title+" - "+text, 500)
	}
	if hn.Time > 0 {
		item.PublishedAt = logger.Ptr(time.Unix(hn.Time, 0).UTC())
	}
	item.Metadata = map[string]any{
		"hn_id":        hn.ID,
		"type":         hn.kind(),
		"score":        hn.Score,
		"num_comments": hn.Descendants,
		"hn_permalink": permalink,
	}
	return item
}
