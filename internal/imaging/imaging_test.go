package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255 * x / w)
			img.Set(x, y, color.RGBA{R: v, G: v, B: 255 - v, A: 255})
		}
	}
	return img
}

func checkerboard(w, h, block int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/block+y/block)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResolution(t *testing.T) {
	data := encodePNG(t, gradient(320, 240))
	w, h, err := Resolution(data)
	require.NoError(t, err)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)

	_, _, err = Resolution([]byte("not an image"))
	assert.Error(t, err)
}

func TestNormalizePreservesAspect(t *testing.T) {
	// 2:1 landscape image on a square canvas leaves white bands above and
	// below.
	norm := Normalize(gradient(400, 200), 100)
	b := norm.Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 100, b.Dy())

	r, g, bl, _ := norm.At(50, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), bl)
}

func TestPerceptualHashDistance(t *testing.T) {
	a := Normalize(gradient(256, 256), 128)
	b := Normalize(gradient(256, 256), 128)
	c := Normalize(checkerboard(256, 256, 32), 128)

	ha, err := PerceptualHash(a)
	require.NoError(t, err)
	hb, err := PerceptualHash(b)
	require.NoError(t, err)
	hc, err := PerceptualHash(c)
	require.NoError(t, err)

	same, err := HashDistance(ha, hb)
	require.NoError(t, err)
	assert.Zero(t, same)

	diff, err := HashDistance(ha, hc)
	require.NoError(t, err)
	assert.Greater(t, diff, 0.0)
	assert.LessOrEqual(t, diff, 1.0)
}

func TestFeaturesLengthAndCosine(t *testing.T) {
	a := Features(Normalize(gradient(256, 256), 128))
	require.Len(t, a, FeatureLength)

	self := Cosine(a, a)
	assert.InDelta(t, 1.0, self, 1e-9)

	b := Features(Normalize(checkerboard(256, 256, 32), 128))
	cross := Cosine(a, b)
	assert.Less(t, cross, self)
	assert.GreaterOrEqual(t, cross, 0.0)
}

func TestStructuralSimilarity(t *testing.T) {
	a := Normalize(gradient(256, 256), 128)
	b := Normalize(checkerboard(256, 256, 32), 128)

	assert.InDelta(t, 1.0, StructuralSimilarity(a, a), 1e-6)

	cross := StructuralSimilarity(a, b)
	assert.Less(t, cross, 1.0)
	assert.GreaterOrEqual(t, cross, 0.0)
}
