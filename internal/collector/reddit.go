package collector

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/model"
)

const redditAPI = "https://www.reddit.com"

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Selftext    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
	Stickied    bool    `json:"stickied"`
}

type Reddit struct {
	Base
	cfg    config.RedditConfig
	client *http.Client
	base   string
}

func NewReddit(cfg config.RedditConfig, timeout time.Duration, opts Options) *Reddit {
	if cfg.Limit <= 0 {
		cfg.Limit = 25
	}
	return &Reddit{
		Base:   newBase("reddit", model.SourceReddit),
		cfg:    cfg,
		client: opts.client(timeout),
		base:   opts.baseURL(redditAPI),
	}
}

func (r *Reddit) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()

	var (
		candidates []*model.CollectedItem
		errs       []string
	)
	for _, sub := range r.cfg.Subreddits {
		posts, err := r.fetchSubreddit(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("r/%s: %s", sub, logger.Truncate(err.Error(), 200)))
			continue
		}
		for _, p := range posts {
			candidates = append(candidates, r.toItem(sub, p))
		}
	}

	if len(r.cfg.Subreddits) > 0 && len(errs) == len(r.cfg.Subreddits) {
		return nil, fmt.Errorf("every subreddit failed: %s", strings.Join(errs, "; "))
	}

	return r.finish(ctx, start, candidates, errs), nil
}

func (r *Reddit) fetchSubreddit(ctx context.Context, sub string) ([]redditPost, error) {
	endpoint := fmt.Sprintf("%s/r/%s/top.json?t=day&limit=%d", r.base, url.PathEscape(sub), r.cfg.Limit)

	var listing redditListing
	if err := getJSON(ctx, r.client, endpoint, nil, &listing); err != nil {
		return nil, err
	}

	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		if child.Kind != "t3" || p.Stickied {
			continue
		}
		if p.Score < r.cfg.MinScore {
			continue
		}
		if !isAIRelevant(p.Title, p.Selftext) {
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func (r *Reddit) toItem(sub string, p redditPost) *model.CollectedItem {
	if p.Subreddit == "" {
		p.Subreddit = sub
	}
	if p.Author == "" {
		p.Author = "[deleted]"
	}

	sourceURL := p.URL
	if p.Permalink != "" && !strings.HasPrefix(sourceURL, "https://www.reddit.com") {
		sourceURL = "https://www.reddit.com" + p.Permalink
	}

	body := p.Selftext
	if body == "" {
		body = p.Title
	}
	content := fmt.Sprintf("**r/%s** | Score: %d | Comments: %d\n\n%s", p.Subreddit, p.Score, p.NumComments, body)

	ratio := 0.0
	if p.Score > 0 {
		ratio = math.Round(float64(p.NumComments)/float64(p.Score)*1000) / 1000
	}

	item := model.NewItem(model.SourceReddit, sourceURL, p.Title, content)
	item.Author = p.Author
	item.Summary = model.Truncate(p.Selftext, 500)
	if p.CreatedUTC > 0 {
		item.PublishedAt = logger.Ptr(time.Unix(int64(p.CreatedUTC), 0).UTC())
	}
	item.Metadata = map[string]any{
		"subreddit":           p.Subreddit,
		"score":               p.Score,
		"num_comments":        p.NumComments,
		"comment_score_ratio": ratio,
		"reddit_id":           p.ID,
		"permalink":           p.Permalink,
	}
	return item
}
