package model

import "fmt"

type Mode string

const (
	ModeDaily   Mode = "daily"
	ModeWeekly  Mode = "weekly"
	ModeMonthly Mode = "monthly"
)

func (m Mode) IsValid() bool {
	switch m {
	case ModeDaily, ModeWeekly, ModeMonthly:
		return true
	}
	return false
}

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid mode %q: want daily, weekly or monthly", s)
	}
	return m, nil
}

// Synthesis is the common view over the three periodic syntheses.
type Synthesis interface {
	Mode() Mode
	Period() string
	Relevance() int
	SummaryText() string
	IsDegraded() bool
}

type DailySynthesis struct {
	Date            string   `json:"date"`
	Highlights      []string `json:"highlights"`
	Patterns        []string `json:"patterns"`
	Recommendations []string `json:"recommendations"`
	KeyChanges      []string `json:"key_changes"`
	RelevanceScore  int      `json:"relevance_score"`
	Summary         string   `json:"summary"`
	Degraded        bool     `json:"degraded"`
}

func (d *DailySynthesis) Mode() Mode          { return ModeDaily }
func (d *DailySynthesis) Period() string      { return d.Date }
func (d *DailySynthesis) Relevance() int      { return d.RelevanceScore }
func (d *DailySynthesis) SummaryText() string { return d.Summary }
func (d *DailySynthesis) IsDegraded() bool    { return d.Degraded }

type Story struct {
	Title        string `json:"title"`
	Significance string `json:"significance"`
}

type WeeklySynthesis struct {
	Week                 string   `json:"week"`
	TopStories           []Story  `json:"top_stories"`
	Trends               []string `json:"trends"`
	CompetitiveMoves     []string `json:"competitive_moves"`
	EmergingTechnologies []string `json:"emerging_technologies"`
	Recommendations      []string `json:"recommendations"`
	RelevanceScore       int      `json:"relevance_score"`
	Summary              string   `json:"summary"`
	Degraded             bool     `json:"degraded"`
}

func (w *WeeklySynthesis) Mode() Mode          { return ModeWeekly }
func (w *WeeklySynthesis) Period() string      { return w.Week }
func (w *WeeklySynthesis) Relevance() int      { return w.RelevanceScore }
func (w *WeeklySynthesis) SummaryText() string { return w.Summary }
func (w *WeeklySynthesis) IsDegraded() bool    { return w.Degraded }

type Development struct {
	Title    string `json:"title"`
	Impact   string `json:"impact"`
	Timeline string `json:"timeline"`
}

type MonthlySynthesis struct {
	Month                string        `json:"month"`
	MajorDevelopments    []Development `json:"major_developments"`
	TrendAnalysis        string        `json:"trend_analysis"`
	EcosystemChanges     []string      `json:"ecosystem_changes"`
	CompetitiveLandscape string        `json:"competitive_landscape"`
	Predictions          []string      `json:"predictions"`
	Recommendations      []string      `json:"recommendations"`
	RelevanceScore       int           `json:"relevance_score"`
	Summary              string        `json:"summary"`
	Degraded             bool          `json:"degraded"`
}

func (m *MonthlySynthesis) Mode() Mode          { return ModeMonthly }
func (m *MonthlySynthesis) Period() string      { return m.Month }
func (m *MonthlySynthesis) Relevance() int      { return m.RelevanceScore }
func (m *MonthlySynthesis) SummaryText() string { return m.Summary }
func (m *MonthlySynthesis) IsDegraded() bool    { return m.Degraded }
