package models

import "fmt"

// ConditionResult records one evaluated sub-condition of a filter.
// Applicable is false when the underlying field was missing; such
// conditions are excluded from the pass/fail aggregate.
type ConditionResult struct {
	Field      string      `json:"field"`
	Actual     interface{} `json:"actual,omitempty"`
	Threshold  interface{} `json:"threshold,omitempty"`
	Comparator string      `json:"comparator"`
	Applicable bool        `json:"applicable"`
	Passed     bool        `json:"passed"`
}

// FilterDecision aggregates the sub-conditions of one store or product
// filter evaluation. In dry-run mode Passed is forced to true while the
// condition detail still reflects the real outcomes.
type FilterDecision struct {
	Subject    string            `json:"subject"`
	Passed     bool              `json:"passed"`
	DryRun     bool              `json:"dry_run"`
	Conditions []ConditionResult `json:"conditions"`
	Reasons    []string          `json:"reasons,omitempty"`
}

// FailedConditions returns the applicable conditions that did not pass,
// regardless of dry-run forcing.
func (d FilterDecision) FailedConditions() []ConditionResult {
	var out []ConditionResult
	for _, c := range d.Conditions {
		if c.Applicable && !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// Reason formats a human-readable failure line for one condition.
func Reason(c ConditionResult) string {
	return fmt.Sprintf("%s: actual %v %s %v failed", c.Field, c.Actual, c.Comparator, c.Threshold)
}
