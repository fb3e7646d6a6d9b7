package analyzer

import (
	"strings"

	"basegraph.app/radar/internal/model"
)

const (
	defaultSummary    = "Unable to generate summary."
	defaultConfidence = 0.7
)

type wireAnalysis struct {
	Summary           *string  `json:"summary" jsonschema:"description=two or three sentence summary"`
	KeyInsights       []string `json:"key_insights" jsonschema:"description=the most important takeaways"`
	TechnicalDetails  *string  `json:"technical_details,omitempty"`
	Relevance         *string  `json:"relevance,omitempty" jsonschema:"description=how this relates to building with Claude and Anthropic models"`
	RelevanceToClaude *string  `json:"relevance_to_claude,omitempty"`
	Actionability     string   `json:"actionability" jsonschema:"enum=high,enum=medium,enum=low"`
	RelatedTopics     []string `json:"related_topics"`
	Confidence        *float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
}

func normalize(itemID string, w wireAnalysis) *model.AnalysisResult {
	result := &model.AnalysisResult{
		ItemID:        itemID,
		Summary:       defaultSummary,
		KeyInsights:   w.KeyInsights,
		Actionability: model.Actionability(strings.ToLower(strings.TrimSpace(w.Actionability))),
		RelatedTopics: w.RelatedTopics,
		Confidence:    defaultConfidence,
	}

	if w.Summary != nil {
		result.Summary = *w.Summary
	}
	if w.TechnicalDetails != nil {
		result.TechnicalDetails = *w.TechnicalDetails
	}
	switch {
	case w.Relevance != nil:
		result.Relevance = *w.Relevance
	case w.RelevanceToClaude != nil:
		result.Relevance = *w.RelevanceToClaude
	}
	if !result.Actionability.IsValid() {
		result.Actionability = model.ActionabilityMedium
	}
	if w.Confidence != nil {
		result.Confidence = max(0, min(1, *w.Confidence))
	}
	if result.KeyInsights == nil {
		result.KeyInsights = []string{}
	}
	if result.RelatedTopics == nil {
		result.RelatedTopics = []string{}
	}
	return result
}
