package imaging

import (
	"image"
	"math"
)

const (
	histogramBins = 16 // per RGB channel
	intensityGrid = 8  // 8×8 mean-luma grid
)

// FeatureVector is a fixed-length visual descriptor: a normalized RGB
// histogram concatenated with a downsampled intensity grid. Cheap to
// compute, cheap to persist, stable across re-encodes of the same photo.
type FeatureVector []float64

// FeatureLength is the dimension of every vector Features produces.
const FeatureLength = 3*histogramBins + intensityGrid*intensityGrid

// Features extracts the visual descriptor from a normalized image.
func Features(img image.Image) FeatureVector {
	vec := make(FeatureVector, 0, FeatureLength)

	hist := make([]float64, 3*histogramBins)
	bounds := img.Bounds()
	total := float64(bounds.Dx() * bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			hist[bin(r)]++
			hist[histogramBins+bin(g)]++
			hist[2*histogramBins+bin(b)]++
		}
	}
	for i := range hist {
		hist[i] /= total
	}
	vec = append(vec, hist...)
	vec = append(vec, downsampleGray(img, intensityGrid)...)
	return vec
}

func bin(channel uint32) int {
	b := int(channel >> 12) // 16-bit channel into 16 bins
	if b >= histogramBins {
		b = histogramBins - 1
	}
	return b
}

// Cosine returns the cosine similarity of two vectors in [0,1] for
// non-negative inputs. Mismatched lengths or zero vectors score 0.
func Cosine(a, b FeatureVector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// StructuralSimilarity computes a global SSIM over downsampled grayscale
// renditions of both images, clamped to [0,1].
func StructuralSimilarity(a, b image.Image) float64 {
	const grid = 64
	ga := downsampleGray(a, grid)
	gb := downsampleGray(b, grid)

	meanA := mean(ga)
	meanB := mean(gb)
	varA := variance(ga, meanA)
	varB := variance(gb, meanB)

	var cov float64
	for i := range ga {
		cov += (ga[i] - meanA) * (gb[i] - meanB)
	}
	cov /= float64(len(ga) - 1)

	// Standard SSIM stabilizers for dynamic range 1.0.
	const c1 = 0.01 * 0.01
	const c2 = 0.03 * 0.03

	ssim := ((2*meanA*meanB + c1) * (2*cov + c2)) /
		((meanA*meanA + meanB*meanB + c1) * (varA + varB + c2))

	if ssim < 0 {
		return 0
	}
	if ssim > 1 {
		return 1
	}
	return ssim
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func variance(xs []float64, m float64) float64 {
	var s float64
	for _, x := range xs {
		s += (x - m) * (x - m)
	}
	return s / float64(len(xs)-1)
}
