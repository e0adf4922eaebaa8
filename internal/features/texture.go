package features

import "image"

// lbpHistogram computes a simplified 8-neighbor Local Binary Pattern over
// the grayscale ROI and returns its 59-bin histogram, L1-normalized. The
// full LBP range is 0-255; folding to 59 bins keeps only the uniform
// patterns (<=2 bitwise transitions), the conventional reduction for
// texture classification, with all non-uniform patterns pooled into bin 58.
func lbpHistogram(roi image.Image) []float32 {
	g := toGrayPixels(roi)
	hist := make([]float64, 59)

	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			code := lbpCode(g, x, y)
			hist[uniformBin(code)]++
		}
	}
	l1Normalize(hist)
	return appendFloat32(nil, hist)
}

func lbpCode(g grayPlane, x, y int) uint8 {
	center := g.pix[y*g.w+x]
	neighbors := [8][2]int{
		{-1, -1}, {0, -1}, {1, -1},
		{1, 0}, {1, 1}, {0, 1},
		{-1, 1}, {-1, 0},
	}
	var code uint8
	for k, n := range neighbors {
		v := g.pix[(y+n[1])*g.w+(x+n[0])]
		if v >= center {
			code |= 1 << uint(k)
		}
	}
	return code
}

var uniformLUT = buildUniformLUT()

func uniformBin(code uint8) int {
	return uniformLUT[code]
}

// buildUniformLUT maps each of the 256 possible 8-bit patterns to one of
// 59 bins: 58 uniform patterns (0-2 circular transitions) indexed in
// ascending code order, plus bin 58 for every non-uniform pattern.
func buildUniformLUT() [256]int {
	var lut [256]int
	next := 0
	for code := 0; code < 256; code++ {
		if transitions(uint8(code)) <= 2 {
			lut[code] = next
			next++
			if next >= 58 {
				next = 57 // clamp defensively; 8-bit uniform patterns total 58 exactly
			}
		} else {
			lut[code] = 58
		}
	}
	return lut
}

func transitions(code uint8) int {
	count := 0
	for i := 0; i < 8; i++ {
		bit := (code >> uint(i)) & 1
		next := (code >> uint((i+1)%8)) & 1
		if bit != next {
			count++
		}
	}
	return count
}
