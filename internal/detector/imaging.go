package detector

import (
	"image"
	"math"
)

// grayImage is a dense 8-bit grayscale plane, row-major.
type grayImage struct {
	w, h int
	pix  []uint8
}

func newGrayImage(w, h int) *grayImage {
	return &grayImage{w: w, h: h, pix: make([]uint8, w*h)}
}

func (g *grayImage) at(x, y int) uint8 {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return 0
	}
	return g.pix[y*g.w+x]
}

func (g *grayImage) set(x, y int, v uint8) {
	g.pix[y*g.w+x] = v
}

func (g *grayImage) crop(x0, y0, x1, y1 int) *grayImage {
	out := newGrayImage(x1-x0, y1-y0)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			out.set(x-x0, y-y0, g.at(x, y))
		}
	}
	return out
}

// toGray converts any decoded image to a luminance plane using the
// standard Rec.601 weighting.
func toGray(img image.Image) *grayImage {
	b := img.Bounds()
	g := newGrayImage(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, gr, bl, _ := img.At(x, y).RGBA()
			lum := (299*uint32(r>>8) + 587*uint32(gr>>8) + 114*uint32(bl>>8)) / 1000
			g.set(x-b.Min.X, y-b.Min.Y, uint8(lum))
		}
	}
	return g
}

// downsample box-filters g down to approximately scale*w x scale*h.
func downsample(g *grayImage, scale float64) *grayImage {
	nw := max(1, int(float64(g.w)*scale))
	nh := max(1, int(float64(g.h)*scale))
	out := newGrayImage(nw, nh)
	for y := 0; y < nh; y++ {
		for x := 0; x < nw; x++ {
			sx := int(float64(x) / scale)
			sy := int(float64(y) / scale)
			out.set(x, y, g.at(sx, sy))
		}
	}
	return out
}

// sobelMagnitude returns the Sobel gradient magnitude plane, the edge
// strength at every pixel, as a float64 grid (not clamped to 8 bits: the
// blob extractor needs the true dynamic range for Otsu thresholding).
func sobelMagnitude(g *grayImage) [][]float64 {
	gx := [3][3]int{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	gy := [3][3]int{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}

	out := make([][]float64, g.h)
	for y := 0; y < g.h; y++ {
		out[y] = make([]float64, g.w)
		for x := 0; x < g.w; x++ {
			var sx, sy int
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					// Out-of-range neighbours repeat the nearest edge pixel,
					// so a tile's border does not read as an edge.
					v := int(g.at(min(max(x+kx, 0), g.w-1), min(max(y+ky, 0), g.h-1)))
					sx += gx[ky+1][kx+1] * v
					sy += gy[ky+1][kx+1] * v
				}
			}
			out[y][x] = math.Hypot(float64(sx), float64(sy))
		}
	}
	return out
}

// otsuThreshold computes Otsu's between-class-variance-maximizing
// threshold over a 256-bin histogram of the magnitude plane.
func otsuThreshold(mag [][]float64) float64 {
	if len(mag) == 0 || len(mag[0]) == 0 {
		return 0
	}

	maxV := 0.0
	for _, row := range mag {
		for _, v := range row {
			if v > maxV {
				maxV = v
			}
		}
	}
	if maxV == 0 {
		return 0
	}

	const bins = 256
	hist := make([]int, bins)
	total := 0
	for _, row := range mag {
		for _, v := range row {
			b := int(v / maxV * float64(bins-1))
			hist[b]++
			total++
		}
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * float64(c)
	}

	var sumB, wB float64
	bestVar := -1.0
	bestThresh := 0
	for t := 0; t < bins; t++ {
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
			bestThresh = t
		}
	}
	return float64(bestThresh) / float64(bins-1) * maxV
}

type blob struct {
	minX, minY, maxX, maxY int
	pixelCount             int
	density                float64 // pixelCount / box area, used as a confidence proxy
}

// connectedComponents extracts 4-connected regions of the magnitude plane
// above thresh, discarding any region smaller than minArea.
func connectedComponents(mag [][]float64, thresh, minArea float64) []blob {
	h := len(mag)
	if h == 0 {
		return nil
	}
	w := len(mag[0])
	visited := make([][]bool, h)
	for i := range visited {
		visited[i] = make([]bool, w)
	}

	var blobs []blob
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y][x] || mag[y][x] <= thresh {
				continue
			}
			b := floodFill(mag, visited, x, y, thresh)
			area := float64((b.maxX - b.minX + 1) * (b.maxY - b.minY + 1))
			if area < minArea || b.pixelCount == 0 {
				continue
			}
			b.density = float64(b.pixelCount) / area
			blobs = append(blobs, b)
		}
	}
	return blobs
}

func floodFill(mag [][]float64, visited [][]bool, sx, sy int, thresh float64) blob {
	h := len(mag)
	w := len(mag[0])
	stack := [][2]int{{sx, sy}}
	visited[sy][sx] = true

	b := blob{minX: sx, minY: sy, maxX: sx, maxY: sy}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := p[0], p[1]
		b.pixelCount++
		if x < b.minX {
			b.minX = x
		}
		if x > b.maxX {
			b.maxX = x
		}
		if y < b.minY {
			b.minY = y
		}
		if y > b.maxY {
			b.maxY = y
		}

		neighbors := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
		for _, n := range neighbors {
			nx, ny := n[0], n[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h || visited[ny][nx] {
				continue
			}
			if mag[ny][nx] <= thresh {
				continue
			}
			visited[ny][nx] = true
			stack = append(stack, [2]int{nx, ny})
		}
	}
	return b
}
