// Package similarity implements the three-tier candidate scorer: a cheap
// perceptual-hash pre-filter, a visual stage and an optional LLM semantic
// stage blended into one composite score.
package similarity

import (
	"context"
	"image"
	"time"

	"github.com/corona10/goimagehash"

	"arbitrage-scout/internal/common/logger"
	"arbitrage-scout/internal/common/metrics"
	"arbitrage-scout/internal/imaging"
	"arbitrage-scout/internal/models"
)

// DefaultSemanticScore substitutes for the semantic stage in simulate mode
// or when the LLM call fails.
const DefaultSemanticScore = 0.5

// Config controls the tiered scorer.
type Config struct {
	HashThreshold float64 // max normalized hash distance to pass the pre-filter
	VisualWeight  float64 // composite = visual*w + semantic*(1-w)
	Simulate      bool    // skip the LLM call entirely
}

// Artifacts are the prepared comparison inputs for one image: the
// normalized canvas, its perceptual hash and its feature vector.
type Artifacts struct {
	Image    image.Image
	Hash     *goimagehash.ImageHash
	Features imaging.FeatureVector
}

// PrepareArtifacts builds Artifacts from raw image bytes, normalizing to
// the given canvas size first.
func PrepareArtifacts(data []byte, canvasSize int) (Artifacts, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return Artifacts{}, err
	}
	norm := imaging.Normalize(img, canvasSize)
	h, err := imaging.PerceptualHash(norm)
	if err != nil {
		return Artifacts{}, err
	}
	return Artifacts{
		Image:    norm,
		Hash:     h,
		Features: imaging.Features(norm),
	}, nil
}

// Scorer runs the tiered pipeline for one product against one candidate.
type Scorer struct {
	cfg      Config
	semantic SemanticScorer
	log      logger.Logger
}

// New creates a Scorer. In simulate mode the semantic stage is replaced by
// the fixed default, whatever scorer was passed.
func New(cfg Config, semantic SemanticScorer, log logger.Logger) *Scorer {
	if cfg.Simulate || semantic == nil {
		semantic = StaticScorer{Value: DefaultSemanticScore}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Scorer{cfg: cfg, semantic: semantic, log: log}
}

// HashPass runs the pre-filter stage. Candidates whose normalized hash
// distance exceeds the threshold never receive visual or semantic scores.
func (s *Scorer) HashPass(product, candidate Artifacts) (hashScore float64, pass bool, err error) {
	start := time.Now()
	defer func() {
		metrics.MatchStageDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())
	}()

	dist, err := imaging.HashDistance(product.Hash, candidate.Hash)
	if err != nil {
		return 0, false, err
	}
	return 1 - dist, dist <= s.cfg.HashThreshold, nil
}

// Visual runs the slow visual stage: global structural similarity blended
// with feature-vector cosine distance, both in [0,1]. Only candidates that
// passed HashPass reach this stage.
func (s *Scorer) Visual(product, candidate Artifacts) float64 {
	start := time.Now()
	defer func() {
		metrics.MatchStageDuration.WithLabelValues("visual").Observe(time.Since(start).Seconds())
	}()

	structural := imaging.StructuralSimilarity(product.Image, candidate.Image)
	embedding := imaging.Cosine(product.Features, candidate.Features)
	return 0.5*structural + 0.5*embedding
}

// Semantic runs the LLM stage. A failed call degrades to the default
// value rather than failing the pipeline.
func (s *Scorer) Semantic(ctx context.Context, product models.ProductRecord, offer models.CandidateSourceOffer) float64 {
	start := time.Now()
	defer func() {
		metrics.MatchStageDuration.WithLabelValues("semantic").Observe(time.Since(start).Seconds())
	}()

	score, err := s.semantic.Score(ctx, product, offer)
	if err != nil {
		s.log.Warn("semantic stage degraded to default", map[string]interface{}{
			"offerId": offer.OfferID,
			"error":   err.Error(),
		})
		return DefaultSemanticScore
	}
	return score
}

// Composite blends the visual and semantic scores with the configured
// weight.
func (s *Scorer) Composite(visual, semantic float64) float64 {
	w := s.cfg.VisualWeight
	return visual*w + semantic*(1-w)
}
