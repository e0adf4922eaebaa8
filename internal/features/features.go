// Package features extracts a fixed-dimension biometric embedding from a
// cropped animal region. The algorithms (HSV spatial grid histogram, Otsu-
// thresholded Hu moments, LBP texture histogram, optional gait vector,
// fusion + L2 normalize) are ported from the reference engine's Python
// implementation, expressed in pure Go over the stdlib image package —
// consistent with this codebase's avoidance of a CGO image dependency.
package features

import (
	"image"
	"math"
)

// Dim is the fixed output embedding dimension every vector is padded or
// truncated to before normalization.
const Dim = 256

const roiSize = 256 // standardized ROI edge length before feature extraction

// BBox mirrors detector.BBox without importing it, keeping this package
// free of a dependency on tracking/detection internals.
type BBox struct {
	X, Y, W, H float64
}

// Extract computes the full multi-modal embedding for one detection crop.
// prevBox, when non-nil, enables the 3-element gait vector.
func Extract(frame image.Image, box BBox, prevBox *BBox) []float32 {
	roi := cropAndResize(frame, box, roiSize, roiSize)
	if roi == nil {
		return make([]float32, Dim)
	}

	color := colorHistogram(roi, 3, 3)
	shape := huMoments(roi)
	texture := lbpHistogram(roi)

	var gait []float32
	if prevBox != nil {
		gait = gaitVector(box, *prevBox)
	}

	return fuse(color, shape, texture, gait)
}

func fuse(parts ...[]float32) []float32 {
	var combined []float32
	for _, p := range parts {
		combined = append(combined, p...)
	}
	out := make([]float32, Dim)
	n := len(combined)
	if n > Dim {
		n = Dim
	}
	copy(out, combined[:n])
	return L2Normalize(out)
}

// L2Normalize returns v scaled to unit length, or v unchanged if its norm
// is zero (the all-invalid-ROI case).
func L2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func gaitVector(box, prev BBox) []float32 {
	cx, cy := box.X+box.W/2, box.Y+box.H/2
	pcx, pcy := prev.X+prev.W/2, prev.Y+prev.H/2
	dx, dy := cx-pcx, cy-pcy

	area := box.W * box.H
	prevArea := prev.W * prev.H
	areaRatio := 1.0
	if prevArea > 0 {
		areaRatio = area / prevArea
	}
	return []float32{float32(dx), float32(dy), float32(areaRatio)}
}
