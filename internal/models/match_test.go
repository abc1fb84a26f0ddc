package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierForScoreBands(t *testing.T) {
	tests := []struct {
		score float64
		want  ConfidenceTier
	}{
		{1.0, TierHigh},
		{0.85, TierHigh}, // lower edges are inclusive
		{0.8499, TierMedium},
		{0.70, TierMedium},
		{0.6999, TierLow},
		{0.50, TierLow},
		{0.49, TierNone},
		{0.0, TierNone},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierForScore(tt.score), "score %v", tt.score)
	}
}

func TestFilterDecisionReason(t *testing.T) {
	d := FilterDecision{
		Subject: "store-1",
		Passed:  false,
		Conditions: []ConditionResult{
			{Field: "revenue_30d", Applicable: true, Passed: true},
			{Field: "order_count_30d", Applicable: true, Passed: false},
			{Field: "weight_grams", Applicable: false},
		},
		Reasons: []string{"order_count_30d below threshold"},
	}

	failed := d.FailedConditions()
	assert.Len(t, failed, 1)
	assert.Equal(t, "order_count_30d", failed[0].Field)
	assert.Contains(t, Reason(failed[0]), "order_count_30d")
}
