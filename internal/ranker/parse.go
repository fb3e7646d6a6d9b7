package ranker

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"basegraph.app/radar/internal/model"
)

// entry is one ranking as the model writes it. Every field is loose: the
// model may omit, misspell or mistype any of them.
type entry struct {
	Index       *int   `json:"index,omitempty" jsonschema:"description=0-based position of the item in the prompt"`
	SignalScore any    `json:"signal_score" jsonschema:"description=1-10 importance for someone building with AI models"`
	Impact      string `json:"impact" jsonschema:"enum=tooling,enum=architecture,enum=research,enum=production,enum=ecosystem"`
	Maturity    string `json:"maturity" jsonschema:"enum=experimental,enum=early,enum=growing,enum=stable,enum=legacy"`
	Reasoning   string `json:"reasoning" jsonschema:"description=one sentence explaining the score"`
}

// parseEntries accepts a bare array, an object wrapping the array under
// "rankings" or "items", or a single ranking object.
func parseEntries(raw json.RawMessage) ([]entry, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, errors.New("empty json")
	}

	if trimmed[0] == '[' {
		var entries []entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}
	for _, key := range []string{"rankings", "items"} {
		if inner, ok := wrapper[key]; ok {
			var entries []entry
			if err := json.Unmarshal(inner, &entries); err != nil {
				return nil, err
			}
			return entries, nil
		}
	}

	var single entry
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []entry{single}, nil
}

// normalize maps entries back onto items by index. An entry without an
// index takes its position; out-of-range and repeated indices are ignored.
// Items without an entry get the neutral defaults.
func normalize(items []*model.CollectedItem, entries []entry) []RankedItem {
	byIndex := make(map[int]entry, len(entries))
	for pos, e := range entries {
		idx := pos
		if e.Index != nil {
			idx = *e.Index
		}
		if idx < 0 || idx >= len(items) {
			continue
		}
		if _, dup := byIndex[idx]; dup {
			continue
		}
		byIndex[idx] = e
	}

	ranked := make([]RankedItem, len(items))
	for i, item := range items {
		e, ok := byIndex[i]
		if !ok {
			ranked[i] = RankedItem{
				Item:        item,
				SignalScore: defaultScore,
				Impact:      model.ImpactEcosystem,
				Maturity:    model.MaturityGrowing,
			}
			continue
		}
		ranked[i] = RankedItem{
			Item:        item,
			SignalScore: ClampScore(scoreValue(e.SignalScore)),
			Impact:      normalizeImpact(e.Impact),
			Maturity:    normalizeMaturity(e.Maturity),
			Reasoning:   e.Reasoning,
		}
	}
	return ranked
}

// scoreValue reads a score written as a number or numeric string, clamped
// to 1..10. Anything else, including a missing score, is the default.
func scoreValue(v any) int {
	switch s := v.(type) {
	case float64:
		return clampFloat(s)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return clampFloat(f)
		}
	}
	return defaultScore
}

// clampFloat clamps before converting; int() of an out-of-range float is
// implementation-defined.
func clampFloat(f float64) int {
	if math.IsNaN(f) {
		return defaultScore
	}
	return int(max(1, min(10, f)))
}

func ClampScore(score int) int {
	return max(1, min(10, score))
}

func normalizeImpact(s string) model.Impact {
	impact := model.Impact(strings.ToLower(strings.TrimSpace(s)))
	if !impact.IsValid() {
		return model.ImpactEcosystem
	}
	return impact
}

func normalizeMaturity(s string) model.Maturity {
	maturity := model.Maturity(strings.ToLower(strings.TrimSpace(s)))
	if !maturity.IsValid() {
		return model.MaturityGrowing
	}
	return maturity
}
