package features

import (
	"image"
	"math"
)

// colorHistogram computes a spatial HSV histogram over a gridH x gridW
// grid of cells: 16 H-bins + 16 S-bins per cell, each L1-normalized.
func colorHistogram(roi image.Image, gridH, gridW int) []float32 {
	b := roi.Bounds()
	w, h := b.Dx(), b.Dy()
	cellW := w / gridW
	cellH := h / gridH

	var out []float32
	for gy := 0; gy < gridH; gy++ {
		for gx := 0; gx < gridW; gx++ {
			x0 := b.Min.X + gx*cellW
			y0 := b.Min.Y + gy*cellH
			x1 := x0 + cellW
			y1 := y0 + cellH

			hHist := make([]float64, 16)
			sHist := make([]float64, 16)
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hue, sat, _ := rgbToHSV(roi.At(x, y))
					hBin := int(hue / 180.0 * 16)
					if hBin > 15 {
						hBin = 15
					}
					sBin := int(sat / 256.0 * 16)
					if sBin > 15 {
						sBin = 15
					}
					hHist[hBin]++
					sHist[sBin]++
				}
			}
			l1Normalize(hHist)
			l1Normalize(sHist)
			out = appendFloat32(out, hHist)
			out = appendFloat32(out, sHist)
		}
	}
	return out
}

func l1Normalize(hist []float64) {
	var sum float64
	for _, v := range hist {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range hist {
		hist[i] /= sum
	}
}

func appendFloat32(dst []float32, src []float64) []float32 {
	for _, v := range src {
		dst = append(dst, float32(v))
	}
	return dst
}

// rgbToHSV returns (hue in [0,180), saturation in [0,256), value in [0,256)),
// matching OpenCV's 8-bit HSV convention (H halved to fit a byte) so the
// bin math above lines up with the reference engine's calcHist ranges.
func rgbToHSV(c interface{ RGBA() (uint32, uint32, uint32, uint32) }) (h, s, v float64) {
	r32, g32, b32, _ := c.RGBA()
	r := float64(r32 >> 8)
	g := float64(g32 >> 8)
	b := float64(b32 >> 8)

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	v = maxC
	if maxC == 0 {
		s = 0
	} else {
		s = delta / maxC * 255
	}

	switch {
	case delta == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case maxC == g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	h /= 2 // OpenCV-style H in [0,180)
	return h, s, v
}
