package imaging

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// phashBits is the width of the perceptual hash in bits.
const phashBits = 64

// PerceptualHash computes the 64-bit pHash of an image.
func PerceptualHash(img image.Image) (*goimagehash.ImageHash, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("perception hash: %w", err)
	}
	return h, nil
}

// HashDistance returns the normalized Hamming distance between two hashes
// in [0,1]. 0 means identical, 1 means every bit differs.
func HashDistance(a, b *goimagehash.ImageHash) (float64, error) {
	d, err := a.Distance(b)
	if err != nil {
		return 0, fmt.Errorf("hash distance: %w", err)
	}
	return float64(d) / phashBits, nil
}
