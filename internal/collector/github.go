package collector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/go-github/v69/github"

	"basegraph.app/radar/common/logger"
	"basegraph.app/radar/core/config"
	"basegraph.app/radar/internal/model"
)

const githubBodyLimit = 4000

// newGitHubClient builds an API client sharing the collector transport. An
// Options.BaseURL replaces https://api.github.com/.
func newGitHubClient(token string, timeout time.Duration, opts Options) *github.Client {
	client := github.NewClient(opts.client(timeout))
	client.UserAgent = userAgent
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			slog.Warn("ignoring invalid github base url", "base_url", opts.BaseURL, "error", err)
			return client
		}
		client.BaseURL = base
	}
	return client
}

// splitRepo splits "owner/name".
func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository %q is not owner/name", repo)
	}
	return owner, name, nil
}

// GitHubSignals watches issues and pull requests of tracked repositories and
// flags the ones carrying a priority label.
type GitHubSignals struct {
	Base
	cfg    config.GitHubSignalsConfig
	client *github.Client
}

func NewGitHubSignals(cfg config.GitHubSignalsConfig, token string, timeout time.Duration, opts Options) *GitHubSignals {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 20
	}
	return &GitHubSignals{
		Base:   newBase("github_signals", model.SourceGitHubSignals),
		cfg:    cfg,
		client: newGitHubClient(token, timeout, opts),
	}
}

func (g *GitHubSignals) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()

	var (
		candidates []*model.CollectedItem
		errs       []string
	)
	for _, repo := range g.cfg.Repos {
		issues, err := g.listIssues(ctx, repo)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("%s: %s", repo, logger.Truncate(err.Error(), 200)))
			continue
		}
		for _, issue := range issues {
			candidates = append(candidates, g.toItem(repo, issue))
		}
	}

	if len(g.cfg.Repos) > 0 && len(errs) == len(g.cfg.Repos) {
		return nil, fmt.Errorf("every repository failed: %s", strings.Join(errs, "; "))
	}

	return g.finish(ctx, start, candidates, errs), nil
}

// listIssues returns issues and pull requests, most recently updated first.
func (g *GitHubSignals) listIssues(ctx context.Context, repo string) ([]*github.Issue, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	issues, _, err := g.client.Issues.ListByRepo(ctx, owner, name, &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: g.cfg.MaxItems},
	})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

func (g *GitHubSignals) toItem(repo string, issue *github.Issue) *model.CollectedItem {
	labels := make([]string, 0, len(issue.Labels))
	priority := false
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
		if slices.ContainsFunc(g.cfg.PriorityLabels, func(p string) bool { return strings.EqualFold(p, l.GetName()) }) {
			priority = true
		}
	}

	kind := "Issue"
	if issue.IsPullRequest() {
		kind = "PR"
	}

	body := model.Truncate(strings.TrimSpace(issue.GetBody()), githubBodyLimit)
	if body == "" {
		body = issue.GetTitle()
	}

	content := fmt.Sprintf("**%s #%d in %s** (%s)\nLabels: %s\n\n%s",
		kind, issue.GetNumber(), repo, issue.GetState(), strings.Join(labels, ", "), body)

	item := model.NewItem(model.SourceGitHubSignals, issue.GetHTMLURL(), issue.GetTitle(), content)
	item.Author = issue.GetUser().GetLogin()
	item.Summary = model.Truncate(body, 500)
	if created := issue.GetCreatedAt().Time; !created.IsZero() {
		item.PublishedAt = logger.Ptr(created.UTC())
	}
	item.Metadata = map[string]any{
		"repo":               repo,
		"is_pr":              issue.IsPullRequest(),
		"state":              issue.GetState(),
		"labels":             labels,
		"number":             issue.GetNumber(),
		"has_priority_label": priority,
		"comments_count":     issue.GetComments(),
	}
	return item
}

// GitHubEmerging finds recently created repositories on tracked topics that
// are gaining stars quickly.
type GitHubEmerging struct {
	Base
	cfg    config.GitHubEmergingConfig
	client *github.Client
	now    func() time.Time
}

func NewGitHubEmerging(cfg config.GitHubEmergingConfig, token string, timeout time.Duration, opts Options) *GitHubEmerging {
	if cfg.WithinDays <= 0 {
		cfg.WithinDays = 14
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 15
	}
	return &GitHubEmerging{
		Base:   newBase("github_emerging", model.SourceGitHubEmerging),
		cfg:    cfg,
		client: newGitHubClient(token, timeout, opts),
		now:    time.Now,
	}
}

func (g *GitHubEmerging) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()
	since := g.now().UTC().AddDate(0, 0, -g.cfg.WithinDays).Format("2006-01-02")

	var (
		candidates []*model.CollectedItem
		errs       []string
	)
	for _, topic := range g.cfg.Topics {
		query := fmt.Sprintf("topic:%s created:>=%s stars:>=%d", topic, since, g.cfg.MinStars)
		found, _, err := g.client.Search.Repositories(ctx, query, &github.SearchOptions{
			Sort:        "stars",
			Order:       "desc",
			ListOptions: github.ListOptions{PerPage: g.cfg.MaxItems},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("topic %s: %s", topic, logger.Truncate(err.Error(), 200)))
			continue
		}
		for _, repo := range found.Repositories {
			if repo.GetFork() {
				continue
			}
			candidates = append(candidates, g.toItem(repo))
		}
	}

	if len(g.cfg.Topics) > 0 && len(errs) == len(g.cfg.Topics) {
		return nil, fmt.Errorf("every topic failed: %s", strings.Join(errs, "; "))
	}

	return g.finish(ctx, start, candidates, errs), nil
}

func (g *GitHubEmerging) toItem(repo *github.Repository) *model.CollectedItem {
	created := repo.GetCreatedAt().Time
	stars := repo.GetStargazersCount()

	// Repositories younger than a day count as one day old.
	weeks := math.Max(g.now().Sub(created).Hours()/(24*7), 1.0/7)
	perWeek := math.Round(float64(stars)/weeks*100) / 100

	desc := repo.GetDescription()
	if desc == "" {
		desc = "No description provided."
	}

	content := fmt.Sprintf("**%s**\n\n%s\n\nStars: %d (%.2f/week) | Forks: %d | Language: %s\nTopics: %s",
		repo.GetFullName(), desc, stars, perWeek, repo.GetForksCount(),
		repo.GetLanguage(), strings.Join(repo.Topics, ", "))

	var license any
	if repo.License != nil {
		license = repo.License.GetSPDXID()
	}

	item := model.NewItem(model.SourceGitHubEmerging, repo.GetHTMLURL(), repo.GetFullName(), content)
	item.Author = repo.GetOwner().GetLogin()
	item.Summary = model.Truncate(repo.GetDescription(), 500)
	if !created.IsZero() {
		item.PublishedAt = logger.Ptr(created.UTC())
	}
	item.Metadata = map[string]any{
		"full_name":      repo.GetFullName(),
		"stars":          stars,
		"stars_per_week": perWeek,
		"language":       repo.GetLanguage(),
		"topics":         repo.Topics,
		"forks":          repo.GetForksCount(),
		"open_issues":    repo.GetOpenIssuesCount(),
		"license":        license,
	}
	return item
}

// GitHubRepos follows the releases of tracked repositories.
type GitHubRepos struct {
	Base
	cfg    config.GitHubReposConfig
	client *github.Client
}

func NewGitHubRepos(cfg config.GitHubReposConfig, token string, timeout time.Duration, opts Options) *GitHubRepos {
	if cfg.MaxReleases <= 0 {
		cfg.MaxReleases = 3
	}
	return &GitHubRepos{
		Base:   newBase("github_repos", model.SourceGitHubRepos),
		cfg:    cfg,
		client: newGitHubClient(token, timeout, opts),
	}
}

func (g *GitHubRepos) Collect(ctx context.Context) (*Result, error) {
	start := time.Now()

	var (
		candidates []*model.CollectedItem
		errs       []string
	)
	for _, repo := range g.cfg.Repos {
		releases, err := g.listReleases(ctx, repo)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Sprintf("%s: %s", repo, logger.Truncate(err.Error(), 200)))
			continue
		}
		for _, rel := range releases {
			if rel.GetDraft() {
				continue
			}
			candidates = append(candidates, g.toItem(repo, rel))
		}
	}

	if len(g.cfg.Repos) > 0 && len(errs) == len(g.cfg.Repos) {
		return nil, fmt.Errorf("every repository failed: %s", strings.Join(errs, "; "))
	}

	return g.finish(ctx, start, candidates, errs), nil
}

func (g *GitHubRepos) listReleases(ctx context.Context, repo string) ([]*github.RepositoryRelease, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	releases, _, err := g.client.Repositories.ListReleases(ctx, owner, name, &github.ListOptions{PerPage: g.cfg.MaxReleases})
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	return releases, nil
}

func (g *GitHubRepos) toItem(repo string, rel *github.RepositoryRelease) *model.CollectedItem {
	name := rel.GetName()
	if name == "" {
		name = rel.GetTagName()
	}
	title := fmt.Sprintf("%s %s", repo, name)

	notes := model.Truncate(strings.TrimSpace(rel.GetBody()), githubBodyLimit)
	if notes == "" {
		notes = "No release notes."
	}
	content := fmt.Sprintf("**%s released %s**\n\n%s", repo, rel.GetTagName(), notes)

	item := model.NewItem(model.SourceGitHubRepos, rel.GetHTMLURL(), title, content)
	item.Author = rel.GetAuthor().GetLogin()
	item.Summary = model.Truncate(notes, 500)
	if published := rel.GetPublishedAt().Time; !published.IsZero() {
		item.PublishedAt = logger.Ptr(published.UTC())
	}
	item.Metadata = map[string]any{
		"full_name":  repo,
		"tag":        rel.GetTagName(),
		"prerelease": rel.GetPrerelease(),
	}
	return item
}
