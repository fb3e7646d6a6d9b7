package synthesizer

import (
	"fmt"

	"basegraph.app/radar/internal/model"
)

const fallbackRelevance = 5

func fallbackDaily(date string, items []model.AnalyzedItem) *model.DailySynthesis {
	highlights := make([]string, 0, 3)
	for _, ai := range head(items, 3) {
		highlights = append(highlights, ai.Item.Title)
	}
	return &model.DailySynthesis{
		Date:            date,
		RelevanceScore:  fallbackRelevance,
		Highlights:      highlights,
		Patterns:        []string{"Synthesis unavailable - using fallback"},
		Recommendations: []string{reviewManually},
		KeyChanges:      []string{},
		Summary:         fmt.Sprintf("Processed %d items. Synthesis generation failed.", len(items)),
		Degraded:        true,
	}
}

func fallbackWeekly(week string, items []model.AnalyzedItem) *model.WeeklySynthesis {
	stories := make([]model.Story, 0, 5)
	for _, ai := range head(items, 5) {
		stories = append(stories, model.Story{Title: ai.Item.Title})
	}
	return &model.WeeklySynthesis{
		Week:                 week,
		RelevanceScore:       fallbackRelevance,
		TopStories:           stories,
		Trends:               []string{},
		CompetitiveMoves:     []string{},
		EmergingTechnologies: []string{},
		Recommendations:      []string{reviewManually},
		Summary:              fmt.Sprintf("Weekly synthesis for %s. Processed %d items.", week, len(items)),
		Degraded:             true,
	}
}

func fallbackMonthly(month string, items []model.AnalyzedItem) *model.MonthlySynthesis {
	developments := make([]model.Development, 0, 10)
	for _, ai := range head(items, 10) {
		developments = append(developments, model.Development{Title: ai.Item.Title})
	}
	return &model.MonthlySynthesis{
		Month:             month,
		RelevanceScore:    fallbackRelevance,
		MajorDevelopments: developments,
		TrendAnalysis:     "Monthly synthesis unavailable.",
		EcosystemChanges:  []string{},
		Predictions:       []string{},
		Recommendations:   []string{reviewManually},
		Summary:           fmt.Sprintf("Monthly synthesis for %s. Processed %d items.", month, len(items)),
		Degraded:          true,
	}
}

func head(items []model.AnalyzedItem, n int) []model.AnalyzedItem {
	if len(items) > n {
		return items[:n]
	}
	return items
}
