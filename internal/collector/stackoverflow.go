package collector

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/model"
)

const (
	stackExchangeAPI = "https://api.stackexchange.com/2.3"
	soLookback       = 7 * 24 * time.Hour
	soBodyLimit      = 2000
)

type soResponse struct {
	Items          []soQuestion `json:"items"`
	QuotaRemaining int          `json:"quota_remaining"`
}

type soQuestion struct {
	QuestionID   int64    `json:"question_id"`
	Title        string   `json:"title"`
	Link         string   `json:"link"`
	Body         string   `json:"body"`
	Tags         []string `json:"tags"`
	Score        int      `json:"score"`
	AnswerCount  int      `json:"answer_count"`
	IsAnswered   bool     `json:"is_answered"`
	CreationDate int64    `json:"creation_date"`
	Owner        struct {
		DisplayName string `json:"display_name"`
	} `json:"owner"`
}

type StackOverflow struct {
	Base
	cfg    config.StackOverflowConfig
	client *http.Client
	base   string
	now    func() time.Time
}

func NewStackOverflow(cfg config.StackOverflowConfig, timeout time.Duration, opts Options) *StackOverflow {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &StackOverflow{
		Base:   newBase("stackoverflow", model.SourceStackOverflow),
		cfg:    cfg,
		client: opts.client(timeout),
		base:   opts.baseURL(stackExchangeAPI),
		now:    time.Now,
	}
}

func (s *StackOverflow) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()

	var (
		candidates []*model.CollectedItem
		errs       []string
	)
	for _, tag := range s.cfg.Tags {
		questions, err := s.fetchTag(ctx, tag)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("tag %s: %s", tag, logger.Truncate(err.Error(), 200)))
			continue
		}
		for _, q := range questions {
			if q.Score < s.cfg.MinScore {
				continue
			}
			candidates = append(candidates, s.toItem(q))
		}
	}

	if len(s.cfg.Tags) > 0 && len(errs) == len(s.cfg.Tags) {
		return nil, fmt.Errorf("every tag failed: %s", strings.Join(errs, "; "))
	}

	// A question carrying several tracked tags arrives once per tag; finish
	// counts the repeats as duplicates.
	return s.finish(ctx, start, candidates, errs), nil
}

func (s *StackOverflow) fetchTag(ctx context.Context, tag string) ([]soQuestion, error) {
	q := url.Values{}
	q.Set("order", "desc")
	q.Set("sort", "creation")
	q.Set("tagged", tag)
	q.Set("site", "stackoverflow")
	q.Set("pagesize", strconv.Itoa(s.cfg.PageSize))
	q.Set("fromdate", strconv.FormatInt(s.now().Add(-soLookback).Unix(), 10))
	q.Set("filter", "withbody")

	var resp soResponse
	if err := getJSON(ctx, s.client, s.base+"/questions?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (s *StackOverflow) toItem(q soQuestion) *model.CollectedItem {
	title := html.UnescapeString(q.Title)
	body := cleanHTML(q.Body)

	link := q.Link
	if link == "" {
		link = fmt.Sprintf("https://stackoverflow.com/questions/%d", q.QuestionID)
	}

	answered := "No"
	if q.IsAnswered {
		answered = "Yes"
	}

	excerpt := model.Truncate(body, soBodyLimit)
	if excerpt != body {
		excerpt += "..."
	}

	content := strings.Join([]string{
		"**" + title + "**",
		fmt.Sprintf("Score: %d | Answers: %d | Answered: %s", q.Score, q.AnswerCount, answered),
		"Tags: " + strings.Join(q.Tags, ", "),
		"\n" + excerpt,
	}, "\n")

	item := model.NewItem(model.SourceStackOverflow, link, title, content)
	item.Author = q.Owner.DisplayName
	item.Summary = model.Truncate(body, 500)
	if q.CreationDate > 0 {
		item.PublishedAt = logger.Ptr(time.Unix(q.CreationDate, 0).UTC())
	}
	item.Metadata = map[string]any{
		"question_id":  q.QuestionID,
		"tags":         q.Tags,
		"score":        q.Score,
		"answer_count": q.AnswerCount,
		"is_answered":  q.IsAnswered,
	}
	return item
}
