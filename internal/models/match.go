package models

import "time"

// ConfidenceTier buckets a composite score for downstream decisions.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "HIGH"
	TierMedium ConfidenceTier = "MEDIUM"
	TierLow    ConfidenceTier = "LOW"
	TierNone   ConfidenceTier = "NONE"
)

// TierForScore maps a composite score to its tier. Bands are inclusive on
// the lower edge: 0.85 is HIGH, 0.70 is MEDIUM, 0.50 is LOW.
func TierForScore(composite float64) ConfidenceTier {
	switch {
	case composite >= 0.85:
		return TierHigh
	case composite >= 0.70:
		return TierMedium
	case composite >= 0.50:
		return TierLow
	default:
		return TierNone
	}
}

// SimilarityScore is the per-candidate score breakdown. Composite is only
// computed for candidates that passed the hash pre-filter.
type SimilarityScore struct {
	HashScore     float64 `json:"hash_score"`
	VisualScore   float64 `json:"visual_score"`
	SemanticScore float64 `json:"semantic_score"`
	Composite     float64 `json:"composite_score"`
}

// ScoredCandidate pairs an offer with its score breakdown.
type ScoredCandidate struct {
	Offer CandidateSourceOffer `json:"offer"`
	Score SimilarityScore      `json:"score"`
}

// CandidateError records a candidate removed from a match attempt, e.g.
// because its image could not be fetched.
type CandidateError struct {
	OfferID string `json:"offer_id"`
	Reason  string `json:"reason"`
}

// StageTimings carries per-stage durations of one match attempt.
type StageTimings struct {
	Fetch    time.Duration `json:"fetch"`
	Hash     time.Duration `json:"hash"`
	Visual   time.Duration `json:"visual"`
	Semantic time.Duration `json:"semantic"`
	Total    time.Duration `json:"total"`
}

// MatchResult is the immutable outcome of one product matching attempt.
// BestMatch is nil when no candidate cleared the final threshold; that is
// a normal outcome, not an error.
type MatchResult struct {
	Product         ProductRecord     `json:"product"`
	BestMatch       *ScoredCandidate  `json:"best_match,omitempty"`
	RunnersUp       []ScoredCandidate `json:"runners_up,omitempty"`
	Tier            ConfidenceTier    `json:"tier"`
	CandidateErrors []CandidateError  `json:"candidate_errors,omitempty"`
	Timings         StageTimings      `json:"timings"`
}
