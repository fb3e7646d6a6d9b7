package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrAnnotated is returned when a processing annotation is written twice.
var ErrAnnotated = errors.New("annotation already set")

type SourceType string

const (
	SourceDocs             SourceType = "docs"
	SourceGitHubSignals    SourceType = "github_signals"
	SourceGitHubEmerging   SourceType = "github_emerging"
	SourceGitHubRepos      SourceType = "github_repos"
	SourceBlogs            SourceType = "blogs"
	SourceStackOverflow    SourceType = "stackoverflow"
	SourcePodcasts         SourceType = "podcasts"
	SourcePackages         SourceType = "packages"
	SourceJobs             SourceType = "jobs"
	SourceReddit           SourceType = "reddit"
	SourceHackerNews       SourceType = "hackernews"
	SourceEngineeringBlogs SourceType = "engineering_blogs"
	SourceArxiv            SourceType = "arxiv"
	SourceYouTube          SourceType = "youtube"
	SourceConferences      SourceType = "conferences"
)

var sourceTypes = map[SourceType]struct{}{
	SourceDocs: {}, SourceGitHubSignals: {}, SourceGitHubEmerging: {}, SourceGitHubRepos: {},
	SourceBlogs: {}, SourceStackOverflow: {}, SourcePodcasts: {}, SourcePackages: {},
	SourceJobs: {}, SourceReddit: {}, SourceHackerNews: {}, SourceEngineeringBlogs: {},
	SourceArxiv: {}, SourceYouTube: {}, SourceConferences: {},
}

func (s SourceType) IsValid() bool {
	_, ok := sourceTypes[s]
	return ok
}

type Impact string

const (
	ImpactTooling      Impact = "tooling"
	ImpactArchitecture Impact = "architecture"
	ImpactResearch     Impact = "research"
	ImpactProduction   Impact = "production"
	ImpactEcosystem    Impact = "ecosystem"
)

func (i Impact) IsValid() bool {
	switch i {
	case ImpactTooling, ImpactArchitecture, ImpactResearch, ImpactProduction, ImpactEcosystem:
		return true
	}
	return false
}

type Maturity string

const (
	MaturityExperimental Maturity = "experimental"
	MaturityEarly        Maturity = "early"
	MaturityGrowing      Maturity = "growing"
	MaturityStable       Maturity = "stable"
	MaturityLegacy       Maturity = "legacy"
)

func (m Maturity) IsValid() bool {
	switch m {
	case MaturityExperimental, MaturityEarly, MaturityGrowing, MaturityStable, MaturityLegacy:
		return true
	}
	return false
}

// CollectedItem is one piece of content gathered from a source. The score
// fields stay nil until the ranker and novelty detector set them, and each
// can be set only once.
type CollectedItem struct {
	ID          string         `json:"id"`
	SourceType  SourceType     `json:"source_type"`
	SourceURL   string         `json:"source_url"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Summary     string         `json:"summary,omitempty"`
	Author      string         `json:"author,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	CollectedAt time.Time      `json:"collected_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	SignalScore  *int      `json:"signal_score,omitempty"`
	Impact       *Impact   `json:"impact,omitempty"`
	Maturity     *Maturity `json:"maturity,omitempty"`
	NoveltyScore *float64  `json:"novelty_score,omitempty"`
}

// ItemID derives the stable identifier for an item from its source, URL and title.
func ItemID(source SourceType, url, title string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", source, url, title)))
	return fmt.Sprintf("%s_%s", source, hex.EncodeToString(sum[:])[:16])
}

// NewItem builds an item with its ID and CollectedAt filled in.
func NewItem(source SourceType, url, title, content string) *CollectedItem {
	return &CollectedItem{
		ID:          ItemID(source, url, title),
		SourceType:  source,
		SourceURL:   url,
		Title:       title,
		Content:     content,
		CollectedAt: time.Now().UTC(),
		Metadata:    map[string]any{},
	}
}

func (c *CollectedItem) Validate() error {
	var errs []error
	if c.Title == "" {
		errs = append(errs, errors.New("title is empty"))
	}
	if c.Content == "" {
		errs = append(errs, errors.New("content is empty"))
	}
	if c.SourceURL == "" {
		errs = append(errs, errors.New("source url is empty"))
	}
	if !c.SourceType.IsValid() {
		errs = append(errs, fmt.Errorf("unknown source type %q", c.SourceType))
	}
	return errors.Join(errs...)
}

// HasPriorityLabel reports metadata["has_priority_label"] == true.
func (c *CollectedItem) HasPriorityLabel() bool {
	v, ok := c.Metadata["has_priority_label"].(bool)
	return ok && v
}

// SetSignal records the ranker's verdict.
func (c *CollectedItem) SetSignal(score int, impact Impact, maturity Maturity) error {
	if c.SignalScore != nil || c.Impact != nil || c.Maturity != nil {
		return fmt.Errorf("signal for %s: %w", c.ID, ErrAnnotated)
	}
	c.SignalScore = &score
	c.Impact = &impact
	c.Maturity = &maturity
	return nil
}

func (c *CollectedItem) SetNovelty(score float64) error {
	if c.NoveltyScore != nil {
		return fmt.Errorf("novelty for %s: %w", c.ID, ErrAnnotated)
	}
	c.NoveltyScore = &score
	return nil
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
