package evidence

import (
	"image"
	"image/color"
)

// heatmap bins detection centers into fixed-size cells, normalizes the
// counts to 0..255, upsamples with linear interpolation back to frame
// size, applies a jet colormap, and alpha-blends at 0.5 over the source
// frame.
func heatmap(fr FrameRecord, cellSize int) image.Image {
	b := fr.Image.Bounds()
	w, h := b.Dx(), b.Dy()
	if cellSize < 1 {
		cellSize = 32
	}

	cols := (w + cellSize - 1) / cellSize
	rows := (h + cellSize - 1) / cellSize
	cells := make([][]int, rows)
	for i := range cells {
		cells[i] = make([]int, cols)
	}

	maxCount := 0
	for _, d := range fr.Detections {
		cx := (d.Box.Min.X + d.Box.Max.X) / 2
		cy := (d.Box.Min.Y + d.Box.Max.Y) / 2
		col := clampIdx(cx/cellSize, cols)
		row := clampIdx(cy/cellSize, rows)
		cells[row][col]++
		if cells[row][col] > maxCount {
			maxCount = cells[row][col]
		}
	}

	normalized := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		normalized[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			if maxCount > 0 {
				normalized[r][c] = float64(cells[r][c]) / float64(maxCount)
			}
		}
	}

	out := image.NewRGBA(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := bilinearSample(normalized, x, y, w, h, cellSize)
			heat := jetColor(v)
			base := fr.Image.At(b.Min.X+x, b.Min.Y+y)
			out.Set(b.Min.X+x, b.Min.Y+y, alphaBlend(base, heat, 0.5))
		}
	}
	return out
}

func clampIdx(v, max int) int {
	if v < 0 {
		return 0
	}
	if v >= max {
		return max - 1
	}
	return v
}

// bilinearSample treats the coarse cell grid as control points at each
// cell's center and linearly interpolates the density value at (x, y).
func bilinearSample(grid [][]float64, x, y, w, h, cellSize int) float64 {
	rows := len(grid)
	if rows == 0 {
		return 0
	}
	cols := len(grid[0])

	fx := float64(x)/float64(cellSize) - 0.5
	fy := float64(y)/float64(cellSize) - 0.5

	x0 := int(fx)
	y0 := int(fy)
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	g := func(r, c int) float64 {
		if r < 0 {
			r = 0
		}
		if r >= rows {
			r = rows - 1
		}
		if c < 0 {
			c = 0
		}
		if c >= cols {
			c = cols - 1
		}
		return grid[r][c]
	}

	v00 := g(y0, x0)
	v10 := g(y0, x0+1)
	v01 := g(y0+1, x0)
	v11 := g(y0+1, x0+1)

	top := v00*(1-tx) + v10*tx
	bottom := v01*(1-tx) + v11*tx
	return top*(1-ty) + bottom*ty
}

// jetColor maps a normalized value in [0,1] to the classic MATLAB "jet"
// colormap: dark blue -> cyan -> yellow -> red.
func jetColor(v float64) color.RGBA {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	r := clamp01(min(4*v-1.5, -4*v+4.5)) * 255
	g := clamp01(min(4*v-0.5, -4*v+3.5)) * 255
	bl := clamp01(min(4*v+0.5, -4*v+2.5)) * 255
	return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(bl), A: 255}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func alphaBlend(base, overlay color.Color, alpha float64) color.RGBA {
	br, bg, bb, _ := base.RGBA()
	or, og, ob, _ := overlay.RGBA()

	blend := func(b, o uint32) uint8 {
		bf := float64(b >> 8)
		of := float64(o >> 8)
		return uint8((1-alpha)*bf + alpha*of)
	}
	return color.RGBA{
		R: blend(br, or),
		G: blend(bg, og),
		B: blend(bb, ob),
		A: 255,
	}
}
