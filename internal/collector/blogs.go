package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/model"
)

const blogContentLimit = 8000

// Blogs reads RSS and Atom feeds and keeps recent, AI-related posts.
type Blogs struct {
	Base
	cfg    config.BlogsConfig
	client *http.Client
	now    func() time.Time
}

func NewBlogs(cfg config.BlogsConfig, timeout time.Duration, opts Options) *Blogs {
	if cfg.MaxPerFeed <= 0 {
		cfg.MaxPerFeed = 10
	}
	return &Blogs{
		Base:   newBase("blogs", model.SourceBlogs),
		cfg:    cfg,
		client: opts.client(timeout),
		now:    time.Now,
	}
}

func (b *Blogs) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()

	var (
		candidates []*model.CollectedItem
		errs       []string
	)
	for _, feed := range b.cfg.Feeds {
		items, err := b.fetchFeed(ctx, feed)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("%s: %s", feed.Name, logger.Truncate(err.Error(), 200)))
			continue
		}
		candidates = append(candidates, items...)
	}

	if len(b.cfg.Feeds) > 0 && len(errs) == len(b.cfg.Feeds) {
		return nil, fmt.Errorf("every feed failed: %s", strings.Join(errs, "; "))
	}

	return b.finish(ctx, start, candidates, errs), nil
}

func (b *Blogs) fetchFeed(ctx context.Context, feed config.Feed) ([]*model.CollectedItem, error) {
	resp, err := get(ctx, b.client, feed.URL, map[string]string{
		"Accept": "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8",
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var cutoff time.Time
	if b.cfg.MaxAgeDays > 0 {
		cutoff = b.now().AddDate(0, 0, -b.cfg.MaxAgeDays)
	}

	name := feed.Name
	if name == "" {
		name = parsed.Title
	}

	var items []*model.CollectedItem
	for _, entry := range parsed.Items {
		if len(items) >= b.cfg.MaxPerFeed {
			break
		}

		published := entryTime(entry)
		if !cutoff.IsZero() && published != nil && published.Before(cutoff) {
			continue
		}

		body := entry.Content
		if body == "" {
			body = entry.Description
		}
		text := cleanHTML(body)
		title := collapse(entry.Title)

		if !isAIRelevant(title, text) {
			continue
		}

		items = append(items, b.toItem(name, entry, title, text, published))
	}
	return items, nil
}

func (b *Blogs) toItem(feedName string, entry *gofeed.Item, title, text string, published *time.Time) *model.CollectedItem {
	content := model.Truncate(text, blogContentLimit)
	if content == "" {
		content = title
	}

	item := model.NewItem(model.SourceBlogs, entry.Link, title, content)
	item.Summary = model.Truncate(cleanHTML(entry.Description), 500)
	item.PublishedAt = published
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item.Author = entry.Authors[0].Name
	}
	item.Metadata = map[string]any{
		"feed":       feedName,
		"categories": entry.Categories,
		"guid":       entry.GUID,
	}
	return item
}

func entryTime(entry *gofeed.Item) *time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return logger.Ptr(entry.PublishedParsed.UTC())
	case entry.UpdatedParsed != nil:
		return logger.Ptr(entry.UpdatedParsed.UTC())
	}
	return nil
}
