// Package matcher implements the source-matching engine: candidate
// sourcing offers are scored against a product image through the tiered
// similarity pipeline and ranked into a confidence-tagged MatchResult.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"time"

	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/common/metrics"
	"arbitrage-scout/internal/imaging"
	"arbitrage-scout/internal/models"
	"arbitrage-scout/internal/similarity"
)

// Platform tags used for cache partitioning and fetch headers.
const (
	ProductPlatform  = "marketplace"
	SourcingPlatform = "sourcing"
)

// ImageStore is the slice of the cache manager the matcher consumes.
type ImageStore interface {
	GetImage(ctx context.Context, url, platform string) ([]byte, error)
	GetOrComputeFeature(ctx context.Context, url, platform string, fn func([]byte) (imaging.FeatureVector, error)) (imaging.FeatureVector, error)
}

// Config controls one match attempt. The candidate list itself is capped
// by the caller before invocation.
type Config struct {
	ItemSimilarity float64 // final composite threshold
	MinResolution  int     // candidates below MinResolution×MinResolution are rejected
	CanvasSize     int     // normalization canvas edge
	MaxRunnersUp   int
}

// Matcher runs the match pipeline for one product at a time.
type Matcher struct {
	images ImageStore
	scorer *similarity.Scorer
	cfg    Config
	log    logger.Logger
}

// New creates a Matcher around an image store and a tiered scorer.
func New(images ImageStore, scorer *similarity.Scorer, cfg Config, log logger.Logger) *Matcher {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Matcher{images: images, scorer: scorer, cfg: cfg, log: log}
}

// Match scores candidates against the product image and returns the
// ranked result. A fetch failure for the product's own image is fatal to
// the attempt; a fetch failure for an individual candidate removes only
// that candidate. Zero candidates clearing the threshold is a normal NONE
// result, not an error.
func (m *Matcher) Match(ctx context.Context, product models.ProductRecord, candidates []models.CandidateSourceOffer) (*models.MatchResult, error) {
	totalStart := time.Now()
	var timings models.StageTimings

	fetchStart := time.Now()
	productBytes, err := m.images.GetImage(ctx, product.ImageURL, ProductPlatform)
	if err != nil {
		// No comparison is possible without the product image.
		return nil, fmt.Errorf("fetch product image for %s: %w", product.ProductID, err)
	}
	productArt, err := m.prepare(ctx, product.ImageURL, ProductPlatform, productBytes)
	if err != nil {
		return nil, fmt.Errorf("prepare product image for %s: %w", product.ProductID, err)
	}
	timings.Fetch = time.Since(fetchStart)

	var scored []models.ScoredCandidate
	var candErrors []models.CandidateError

	for _, offer := range candidates {
		art, reason := m.prepareCandidate(ctx, offer, &timings)
		if reason != "" {
			candErrors = append(candErrors, models.CandidateError{OfferID: offer.OfferID, Reason: reason})
			continue
		}

		hashStart := time.Now()
		hashScore, pass, err := m.scorer.HashPass(productArt, art)
		timings.Hash += time.Since(hashStart)
		if err != nil {
			candErrors = append(candErrors, models.CandidateError{OfferID: offer.OfferID, Reason: err.Error()})
			continue
		}
		if !pass {
			// Below-threshold candidates never receive visual or
			// semantic scores.
			continue
		}

		visualStart := time.Now()
		visual := m.scorer.Visual(productArt, art)
		timings.Visual += time.Since(visualStart)

		semanticStart := time.Now()
		semantic := m.scorer.Semantic(ctx, product, offer)
		timings.Semantic += time.Since(semanticStart)

		score := models.SimilarityScore{
			HashScore:     hashScore,
			VisualScore:   visual,
			SemanticScore: semantic,
			Composite:     m.scorer.Composite(visual, semantic),
		}
		if score.Composite < m.cfg.ItemSimilarity {
			continue
		}
		scored = append(scored, models.ScoredCandidate{Offer: offer, Score: score})
	}

	// Stable sort keeps discovery order for equal composites.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score.Composite > scored[j].Score.Composite
	})

	timings.Total = time.Since(totalStart)

	result := &models.MatchResult{
		Product:         product,
		Tier:            models.TierNone,
		CandidateErrors: candErrors,
		Timings:         timings,
	}
	if len(scored) > 0 {
		best := scored[0]
		result.BestMatch = &best
		result.Tier = models.TierForScore(best.Score.Composite)
		runnersUp := scored[1:]
		if len(runnersUp) > m.cfg.MaxRunnersUp {
			runnersUp = runnersUp[:m.cfg.MaxRunnersUp]
		}
		result.RunnersUp = runnersUp
	}
	metrics.MatchConfidence.WithLabelValues(string(result.Tier)).Inc()

	m.log.Debug("match attempt finished", map[string]interface{}{
		"productId":  product.ProductID,
		"candidates": len(candidates),
		"ranked":     len(scored),
		"tier":       string(result.Tier),
	})
	return result, nil
}

// prepareCandidate fetches and gates one candidate image. A non-empty
// reason means the candidate is removed from the attempt and recorded.
func (m *Matcher) prepareCandidate(ctx context.Context, offer models.CandidateSourceOffer, timings *models.StageTimings) (similarity.Artifacts, string) {
	fetchStart := time.Now()
	data, err := m.images.GetImage(ctx, offer.ImageURL, SourcingPlatform)
	timings.Fetch += time.Since(fetchStart)
	if err != nil {
		return similarity.Artifacts{}, fmt.Sprintf("image fetch failed: %v", err)
	}

	w, h, err := imaging.Resolution(data)
	if err != nil {
		return similarity.Artifacts{}, fmt.Sprintf("undecodable image: %v", err)
	}
	if w < m.cfg.MinResolution || h < m.cfg.MinResolution {
		return similarity.Artifacts{}, fmt.Sprintf("below minimum resolution: %dx%d", w, h)
	}

	art, err := m.prepare(ctx, offer.ImageURL, SourcingPlatform, data)
	if err != nil {
		return similarity.Artifacts{}, fmt.Sprintf("prepare failed: %v", err)
	}
	return art, ""
}

// prepare builds comparison artifacts, persisting the feature vector
// through the cache so later runs skip recomputation.
func (m *Matcher) prepare(ctx context.Context, url, platform string, data []byte) (similarity.Artifacts, error) {
	art, err := similarity.PrepareArtifacts(data, m.cfg.CanvasSize)
	if err != nil {
		return similarity.Artifacts{}, err
	}

	canvas := m.cfg.CanvasSize
	vec, err := m.images.GetOrComputeFeature(ctx, url, platform, func(raw []byte) (imaging.FeatureVector, error) {
		img, err := imaging.Decode(raw)
		if err != nil {
			return nil, err
		}
		return imaging.Features(imaging.Normalize(img, canvas)), nil
	})
	if err == nil && len(vec) == imaging.FeatureLength {
		art.Features = vec
	}
	return art, nil
}
