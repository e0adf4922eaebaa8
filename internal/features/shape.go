package features

import (
	"image"
	"math"
)

// huMoments computes the 7 Hu invariant moments of the Otsu-thresholded
// binary mask of roi, then applies the reference engine's signed log10
// transform so the (otherwise tiny, wildly-scaled) raw moments become
// comparable magnitudes.
func huMoments(roi image.Image) []float32 {
	gray := toGrayPixels(roi)
	thresh := otsu(gray)
	binary := threshold(gray, thresh)

	m := rawMoments(binary)
	hu := huFromMoments(m)

	out := make([]float32, len(hu))
	for i, v := range hu {
		if v != 0 {
			out[i] = float32(-math.Copysign(1, v) * math.Log10(math.Abs(v)))
		}
	}
	return out
}

type grayPlane struct {
	w, h int
	pix  []uint8
}

func toGrayPixels(img image.Image) grayPlane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := grayPlane{w: w, h: h, pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gr, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum := (299*uint32(r>>8) + 587*uint32(gr>>8) + 114*uint32(bl>>8)) / 1000
			g.pix[y*w+x] = uint8(lum)
		}
	}
	return g
}

func otsu(g grayPlane) uint8 {
	var hist [256]int
	for _, p := range g.pix {
		hist[p]++
	}
	total := len(g.pix)
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * float64(c)
	}

	var sumB, wB float64
	bestVar := -1.0
	var bestT uint8
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			bestT = uint8(t)
		}
	}
	return bestT
}

func threshold(g grayPlane, t uint8) []bool {
	out := make([]bool, len(g.pix))
	for i, p := range g.pix {
		out[i] = p >= t
	}
	return out
}

type moments struct {
	m00, m10, m01, m20, m11, m02, m30, m21, m12, m03 float64
}

func rawMoments(binary []bool) moments {
	return momentsOf(binary)
}

// momentsOf reads binary as a row-major mask roiSize pixels wide (the
// standardized ROI edge length) and derives the height from its length.
func momentsOf(binary []bool) moments {
	var m moments
	n := len(binary)
	if n == 0 {
		return m
	}
	w := roiSize
	h := n / w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !binary[y*w+x] {
				continue
			}
			fx, fy := float64(x), float64(y)
			m.m00++
			m.m10 += fx
			m.m01 += fy
			m.m20 += fx * fx
			m.m11 += fx * fy
			m.m02 += fy * fy
			m.m30 += fx * fx * fx
			m.m21 += fx * fx * fy
			m.m12 += fx * fy * fy
			m.m03 += fy * fy * fy
		}
	}
	return m
}

// huFromMoments derives the 7 classical Hu invariants from central,
// normalized moments of the binary mask.
func huFromMoments(m moments) [7]float64 {
	if m.m00 == 0 {
		return [7]float64{}
	}
	xBar := m.m10 / m.m00
	yBar := m.m01 / m.m00

	mu20 := m.m20/m.m00 - xBar*xBar
	mu02 := m.m02/m.m00 - yBar*yBar
	mu11 := m.m11/m.m00 - xBar*yBar
	mu30 := m.m30/m.m00 - 3*xBar*m.m20/m.m00 + 2*xBar*xBar*xBar
	mu03 := m.m03/m.m00 - 3*yBar*m.m02/m.m00 + 2*yBar*yBar*yBar
	mu21 := m.m21/m.m00 - 2*xBar*m.m11/m.m00 - yBar*m.m20/m.m00 + 2*xBar*xBar*yBar
	mu12 := m.m12/m.m00 - 2*yBar*m.m11/m.m00 - xBar*m.m02/m.m00 + 2*yBar*yBar*xBar

	n20 := mu20 / math.Pow(m.m00, 2)
	n02 := mu02 / math.Pow(m.m00, 2)
	n11 := mu11 / math.Pow(m.m00, 2)
	n30 := mu30 / math.Pow(m.m00, 2.5)
	n03 := mu03 / math.Pow(m.m00, 2.5)
	n21 := mu21 / math.Pow(m.m00, 2.5)
	n12 := mu12 / math.Pow(m.m00, 2.5)

	h1 := n20 + n02
	h2 := (n20-n02)*(n20-n02) + 4*n11*n11
	h3 := (n30-3*n12)*(n30-3*n12) + (3*n21-n03)*(3*n21-n03)
	h4 := (n30+n12)*(n30+n12) + (n21+n03)*(n21+n03)
	h5 := (n30-3*n12)*(n30+n12)*((n30+n12)*(n30+n12)-3*(n21+n03)*(n21+n03)) +
		(3*n21-n03)*(n21+n03)*(3*(n30+n12)*(n30+n12)-(n21+n03)*(n21+n03))
	h6 := (n20-n02)*((n30+n12)*(n30+n12)-(n21+n03)*(n21+n03)) + 4*n11*(n30+n12)*(n21+n03)
	h7 := (3*n21-n03)*(n30+n12)*((n30+n12)*(n30+n12)-3*(n21+n03)*(n21+n03)) -
		(n30-3*n12)*(n21+n03)*(3*(n30+n12)*(n30+n12)-(n21+n03)*(n21+n03))

	return [7]float64{h1, h2, h3, h4, h5, h6, h7}
}
