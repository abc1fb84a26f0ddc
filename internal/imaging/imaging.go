// Package imaging holds the image primitives behind the tiered similarity
// scorer: decoding, canvas normalization, perceptual hashing and
// feature-vector extraction.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Decode parses raw image bytes into an image.Image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Resolution returns the pixel dimensions of raw image bytes without
// decoding the full pixel data.
func Resolution(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Normalize scales img onto a size×size white canvas preserving aspect
// ratio, so that images of different native resolutions compare without
// scale bias.
func Normalize(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return image.NewRGBA(image.Rect(0, 0, size, size))
	}

	scale := float64(size) / float64(srcW)
	if srcH > srcW {
		scale = float64(size) / float64(srcH)
	}
	dstW := int(float64(srcW) * scale)
	dstH := int(float64(srcH) * scale)

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	offX := (size - dstW) / 2
	offY := (size - dstH) / 2
	target := image.Rect(offX, offY, offX+dstW, offY+dstH)
	draw.CatmullRom.Scale(canvas, target, img, bounds, draw.Over, nil)

	return canvas
}

// grayAt returns the luma of a pixel in [0,1].
func grayAt(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
}

// downsampleGray reduces img to an n×n grid of mean luma values.
func downsampleGray(img image.Image, n int) []float64 {
	small := image.NewRGBA(image.Rect(0, 0, n, n))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([]float64, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			out = append(out, grayAt(small, x, y))
		}
	}
	return out
}
