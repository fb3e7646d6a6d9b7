package synthesizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"basegraph.app/radar/internal/model"
)

const missingSummary = "Synthesis unavailable."

type wireDaily struct {
	RelevanceScore  any      `json:"relevance_score" jsonschema:"description=1-10 how significant the day was"`
	Highlights      []string `json:"highlights"`
	Patterns        []string `json:"patterns"`
	Recommendations []string `json:"recommendations"`
	KeyChanges      []string `json:"key_changes"`
	Summary         *string  `json:"summary" jsonschema:"description=two or three paragraph overview"`
}

type wireWeekly struct {
	RelevanceScore       any         `json:"relevance_score" jsonschema:"description=1-10"`
	TopStories           []wireStory `json:"top_stories"`
	Trends               []string    `json:"trends"`
	CompetitiveMoves     []string    `json:"competitive_moves"`
	EmergingTechnologies []string    `json:"emerging_technologies"`
	Recommendations      []string    `json:"recommendations"`
	Summary              *string     `json:"summary"`
}

type wireMonthly struct {
	RelevanceScore       any               `json:"relevance_score" jsonschema:"description=1-10"`
	MajorDevelopments    []wireDevelopment `json:"major_developments"`
	TrendAnalysis        string            `json:"trend_analysis"`
	EcosystemChanges     []string          `json:"ecosystem_changes"`
	CompetitiveLandscape string            `json:"competitive_landscape"`
	Predictions          []string          `json:"predictions"`
	Recommendations      []string          `json:"recommendations"`
	Summary              *string           `json:"summary"`
}

func normalizeDaily(date string, w wireDaily) *model.DailySynthesis {
	return &model.DailySynthesis{
		Date:            date,
		RelevanceScore:  relevance(w.RelevanceScore),
		Highlights:      list(w.Highlights),
		Patterns:        list(w.Patterns),
		Recommendations: list(w.Recommendations),
		KeyChanges:      list(w.KeyChanges),
		Summary:         summary(w.Summary),
	}
}

func normalizeWeekly(week string, w wireWeekly) *model.WeeklySynthesis {
	stories := make([]model.Story, 0, len(w.TopStories))
	for _, st := range w.TopStories {
		if st.Title != "" {
			stories = append(stories, model.Story(st))
		}
	}
	return &model.WeeklySynthesis{
		Week:                 week,
		RelevanceScore:       relevance(w.RelevanceScore),
		TopStories:           stories,
		Trends:               list(w.Trends),
		CompetitiveMoves:     list(w.CompetitiveMoves),
		EmergingTechnologies: list(w.EmergingTechnologies),
		Recommendations:      list(w.Recommendations),
		Summary:              summary(w.Summary),
	}
}

func normalizeMonthly(month string, w wireMonthly) *model.MonthlySynthesis {
	developments := make([]model.Development, 0, len(w.MajorDevelopments))
	for _, d := range w.MajorDevelopments {
		if d.Title != "" {
			developments = append(developments, model.Development(d))
		}
	}
	return &model.MonthlySynthesis{
		Month:                month,
		RelevanceScore:       relevance(w.RelevanceScore),
		MajorDevelopments:    developments,
		TrendAnalysis:        w.TrendAnalysis,
		EcosystemChanges:     list(w.EcosystemChanges),
		CompetitiveLandscape: w.CompetitiveLandscape,
		Predictions:          list(w.Predictions),
		Recommendations:      list(w.Recommendations),
		Summary:              summary(w.Summary),
	}
}

// relevance reads a 1-10 score written as a number or numeric string,
// defaulting to 5 and clamping into range before the int conversion.
func relevance(v any) int {
	f := float64(fallbackRelevance)
	switch s := v.(type) {
	case float64:
		f = s
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			f = parsed
		}
	}
	if math.IsNaN(f) {
		return fallbackRelevance
	}
	return int(max(1, min(10, f)))
}

func summary(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return missingSummary
	}
	return *s
}

func list(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}

// wireStory accepts either {"title", "significance"} or a bare title string.
type wireStory struct {
	Title        string `json:"title"`
	Significance string `json:"significance"`
}

func (s *wireStory) UnmarshalJSON(data []byte) error {
	if title, ok := asString(data); ok {
		s.Title = title
		return nil
	}
	type plain wireStory
	return json.Unmarshal(data, (*plain)(s))
}

// wireDevelopment accepts either {"title", "impact", "timeline"} or a bare title string.
type wireDevelopment struct {
	Title    string `json:"title"`
	Impact   string `json:"impact"`
	Timeline string `json:"timeline"`
}

func (d *wireDevelopment) UnmarshalJSON(data []byte) error {
	if title, ok := asString(data); ok {
		d.Title = title
		return nil
	}
	type plain wireDevelopment
	return json.Unmarshal(data, (*plain)(d))
}

func asString(data []byte) (string, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}
