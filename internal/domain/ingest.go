package domain

import (
	"encoding/json"
	"fmt"
)

// ParseRecommendations decodes and normalizes a recommendation payload.
// This is the one coercion boundary for recommendation input: every numeric
// field is clamped to its documented domain and enum fields are normalized,
// so downstream components never re-validate.
func ParseRecommendations(payload []byte) ([]Recommendation, error) {
	var recs []Recommendation
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations: %w", err)
	}

	normalized := make([]Recommendation, 0, len(recs))
	for i := range recs {
		recs[i].Normalize()
		if recs[i].Symbol == "" {
			continue
		}
		normalized = append(normalized, recs[i])
	}
	return normalized, nil
}
