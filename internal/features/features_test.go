package features

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestExtract_ReturnsFixedDimension(t *testing.T) {
	img := solidImage(64, 64, color.RGBA{100, 150, 200, 255})
	v := Extract(img, BBox{X: 0, Y: 0, W: 64, H: 64}, nil)
	assert.Len(t, v, Dim)
}

func TestExtract_IsDeterministic(t *testing.T) {
	img := solidImage(64, 64, color.RGBA{80, 60, 40, 255})
	box := BBox{X: 0, Y: 0, W: 64, H: 64}

	a := Extract(img, box, nil)
	b := Extract(img, box, nil)
	assert.Equal(t, a, b)
}

func TestExtract_OutOfBoundsBoxReturnsZeroVector(t *testing.T) {
	img := solidImage(10, 10, color.RGBA{1, 2, 3, 255})
	v := Extract(img, BBox{X: 1000, Y: 1000, W: 10, H: 10}, nil)
	assert.Len(t, v, Dim)
	assert.Equal(t, make([]float32, Dim), v)
}

func TestExtract_WithPrevBoxIncludesGaitSignal(t *testing.T) {
	img := solidImage(64, 64, color.RGBA{10, 10, 10, 255})
	box := BBox{X: 20, Y: 20, W: 10, H: 10}
	prev := BBox{X: 0, Y: 0, W: 10, H: 10}

	withGait := Extract(img, box, &prev)
	withoutGait := Extract(img, box, nil)
	assert.NotEqual(t, withGait, withoutGait)
}

func TestL2Normalize_UnitLength(t *testing.T) {
	v := []float32{3, 4}
	out := L2Normalize(v)

	var sumSq float64
	for _, x := range out {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 0.0001)
}

func TestL2Normalize_ZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	out := L2Normalize(v)
	assert.Equal(t, v, out)
}

func TestGaitVector_CapturesDisplacementAndAreaRatio(t *testing.T) {
	g := gaitVector(BBox{X: 10, Y: 0, W: 20, H: 20}, BBox{X: 0, Y: 0, W: 10, H: 10})
	assert.InDelta(t, 15.0, g[0], 0.001) // center moved from 5 to 20
	assert.InDelta(t, 4.0, g[2], 0.001)  // area 400 vs 100
}
