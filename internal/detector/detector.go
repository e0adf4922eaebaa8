// Package detector locates goat-sized objects in a video frame.
//
// Real ONNX detection requires CGO, which the rest of this codebase avoids
// (see the cluster-aware NMS and tiling below, which is the same image-
// analysis approach the upstream ai-service used in place of a CGO
// inference runtime). Detect operates purely on the stdlib image package:
// a multi-scale tiled edge/contour scan followed by IoU-based suppression.
// It never imports gocv or onnxruntime.
package detector

import (
	"image"
	"sort"
)

// BBox is an axis-aligned pixel-space box, top-left origin.
type BBox struct {
	X, Y, W, H float64
}

func (b BBox) area() float64 { return b.W * b.H }

// Mode identifies which detection backend produced a job's boxes. This
// package ships only the deterministic edge/contour backend (spec's
// "fallback mode" — see SPEC_FULL.md's dropped-onnxruntime justification),
// so every detection is always attributable to it; the Orchestrator
// surfaces that as a per-job warning rather than pretending it ran a
// neural backend.
const Mode = "fallback"

// IoU is the intersection-over-union of two boxes.
func (b BBox) IoU(o BBox) float64 {
	x1 := max(b.X, o.X)
	y1 := max(b.Y, o.Y)
	x2 := min(b.X+b.W, o.X+o.W)
	y2 := min(b.Y+b.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := b.area() + o.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ClassGoat is the only class this detector ever emits; the domain is
// single-class, but the tag is still carried so the record matches the
// general Detection contract and isn't silently assumed by every reader.
const ClassGoat = "goat"

// Detection is one candidate object found in a frame.
type Detection struct {
	Box        BBox
	Confidence float64
	Class      string
}

// Config tunes the tiling, scale pyramid, and suppression threshold.
type Config struct {
	// Scales are the downsample factors run over the full frame, each
	// producing independent candidates that are merged back to full-frame
	// coordinates before NMS.
	Scales []float64
	// TilesX x TilesY is the grid of overlapping sub-regions scanned at
	// every scale, so objects near a single global threshold's blind spot are
	// still caught by a tile with a more locally-appropriate one.
	TilesX, TilesY int
	TileOverlap    float64
	NMSIoUThresh   float64
	MinBoxArea     float64
}

func DefaultConfig() Config {
	return Config{
		Scales:       []float64{1.0, 0.5, 0.25},
		TilesX:       2,
		TilesY:       2,
		TileOverlap:  0.15,
		NMSIoUThresh: 0.75,
		MinBoxArea:   64, // 8x8 px floor, discards sensor noise specks
	}
}

// Detector finds candidate objects in a decoded frame.
type Detector struct {
	cfg Config
}

func New(cfg Config) *Detector {
	if len(cfg.Scales) == 0 {
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg}
}

// Detect runs the tiled multi-scale scan and returns deduplicated boxes in
// the coordinate space of img.
func (d *Detector) Detect(img image.Image) []Detection {
	bounds := img.Bounds()
	gray := toGray(img)

	var all []Detection
	for _, scale := range d.cfg.Scales {
		scaled := gray
		if scale != 1.0 {
			scaled = downsample(gray, scale)
		}
		for _, box := range d.scanTiles(scaled, scale, bounds.Dx(), bounds.Dy()) {
			all = append(all, box)
		}
	}

	return nms(all, d.cfg.NMSIoUThresh)
}

// scanTiles splits the (possibly downsampled) grayscale plane into an
// overlapping grid and runs blob extraction on each tile independently,
// translating results back into full-resolution frame coordinates.
func (d *Detector) scanTiles(g *grayImage, scale float64, fullW, fullH int) []Detection {
	w, h := g.w, g.h
	if d.cfg.TilesX < 1 {
		d.cfg.TilesX = 1
	}
	if d.cfg.TilesY < 1 {
		d.cfg.TilesY = 1
	}
	tileW := float64(w) / float64(d.cfg.TilesX)
	tileH := float64(h) / float64(d.cfg.TilesY)
	overlapW := tileW * d.cfg.TileOverlap
	overlapH := tileH * d.cfg.TileOverlap

	var out []Detection
	for ty := 0; ty < d.cfg.TilesY; ty++ {
		for tx := 0; tx < d.cfg.TilesX; tx++ {
			x0 := max(0, int(float64(tx)*tileW-overlapW))
			y0 := max(0, int(float64(ty)*tileH-overlapH))
			x1 := min(w, int(float64(tx+1)*tileW+overlapW))
			y1 := min(h, int(float64(ty+1)*tileH+overlapH))
			if x1 <= x0 || y1 <= y0 {
				continue
			}

			tile := g.crop(x0, y0, x1, y1)
			edges := sobelMagnitude(tile)
			thresh := otsuThreshold(edges)
			blobs := connectedComponents(edges, thresh, d.cfg.MinBoxArea*scale*scale)

			for _, b := range blobs {
				// Translate tile-local -> scaled-frame -> full-frame.
				fx0 := float64(x0+b.minX) / scale
				fy0 := float64(y0+b.minY) / scale
				fw := float64(b.maxX-b.minX) / scale
				fh := float64(b.maxY-b.minY) / scale
				conf := clamp(b.density, 0, 1)
				out = append(out, Detection{
					Box:        BBox{X: fx0, Y: fy0, W: fw, H: fh},
					Confidence: conf,
					Class:      ClassGoat,
				})
			}
		}
	}
	_ = fullW
	_ = fullH
	return out
}

// nms is a greedy cluster-aware suppression pass: sort by confidence
// descending, keep a box, drop any remaining box whose IoU with it exceeds
// the threshold. Survivors from different tiles/scales that describe the
// same animal are merged this way.
func nms(dets []Detection, iouThresh float64) []Detection {
	sort.Slice(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })

	kept := make([]Detection, 0, len(dets))
	suppressed := make([]bool, len(dets))
	for i := range dets {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if suppressed[j] {
				continue
			}
			if dets[i].Box.IoU(dets[j].Box) > iouThresh {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
