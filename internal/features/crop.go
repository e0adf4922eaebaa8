package features

import "image"

// cropAndResize extracts box from frame and nearest-neighbor resizes it to
// outW x outH, matching the reference engine's fixed-size ROI standardization
// step. Returns nil for a degenerate crop (fewer than 10px either side,
// mirroring the reference engine's invalid-ROI guard).
func cropAndResize(frame image.Image, box BBox, outW, outH int) image.Image {
	b := frame.Bounds()
	x1 := clampInt(int(box.X), b.Min.X, b.Max.X)
	y1 := clampInt(int(box.Y), b.Min.Y, b.Max.Y)
	x2 := clampInt(int(box.X+box.W), b.Min.X, b.Max.X)
	y2 := clampInt(int(box.Y+box.H), b.Min.Y, b.Max.Y)

	if x2-x1 < 10 || y2-y1 < 10 {
		return nil
	}

	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	srcW, srcH := x2-x1, y2-y1
	for oy := 0; oy < outH; oy++ {
		sy := y1 + oy*srcH/outH
		for ox := 0; ox < outW; ox++ {
			sx := x1 + ox*srcW/outW
			out.Set(ox, oy, frame.At(sx, sy))
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
