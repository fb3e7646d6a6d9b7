package model

type Actionability string

const (
	ActionabilityHigh   Actionability = "high"
	ActionabilityMedium Actionability = "medium"
	ActionabilityLow    Actionability = "low"
)

func (a Actionability) IsValid() bool {
	switch a {
	case ActionabilityHigh, ActionabilityMedium, ActionabilityLow:
		return true
	}
	return false
}

type AnalysisResult struct {
	ItemID           string        `json:"item_id"`
	Summary          string        `json:"summary"`
	KeyInsights      []string      `json:"key_insights"`
	TechnicalDetails string        `json:"technical_details,omitempty"`
	Relevance        string        `json:"relevance"`
	Actionability    Actionability `json:"actionability"`
	RelatedTopics    []string      `json:"related_topics"`
	Confidence       float64       `json:"confidence"`
	Fallback         bool          `json:"fallback"`
}

// AnalyzedItem pairs an item with its analysis. Analysis is nil only when
// the analyzer produced nothing at all for the item.
type AnalyzedItem struct {
	Item     *CollectedItem
	Analysis *AnalysisResult
}
