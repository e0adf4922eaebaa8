package pipeline

import (
	"image"
	"time"

	"github.com/technosupport/herdvision/internal/evidence"
	"github.com/technosupport/herdvision/internal/reid"
	"github.com/technosupport/herdvision/internal/tracker"
)

// jobRun holds the in-memory state scoped to one Process call: the
// tracker and Re-ID engine instances (both per-video, never shared across
// jobs), the running per-frame series the Verifier will consume, the
// track-to-animal resolution map, and the bounded evidence-frame buffer.
type jobRun struct {
	videoID int64

	tracker    *tracker.MultiTracker
	reidEngine *reid.Engine

	countsByFrame      map[int]int
	uncertaintyByFrame map[int]float64
	trackToAnimal      map[int]int64

	matchedCount    int
	registeredCount int

	maxEvidenceFrames int
	maxEvidenceBytes  int
	evidenceFrames    []evidence.FrameRecord
	evidenceBytes     int
	peakCount         int

	frameWidth  int
	frameHeight int
}

// defaultMaxEvidenceBytes bounds the in-memory evidence buffer at roughly
// 50MB of decoded pixel data, regardless of how many frames that works out
// to - a handful of 4K frames can blow past a frame-count cap that a hundred
// thumbnail-sized frames would comfortably fit under.
const defaultMaxEvidenceBytes = 50 * 1024 * 1024

func newJobRun(videoID int64, trackerCfg tracker.Config, reidCfg reid.Config, maxEvidenceFrames, maxEvidenceBytes int) *jobRun {
	if maxEvidenceFrames <= 0 {
		maxEvidenceFrames = 5
	}
	if maxEvidenceBytes <= 0 {
		maxEvidenceBytes = defaultMaxEvidenceBytes
	}
	return &jobRun{
		videoID:            videoID,
		tracker:            tracker.New(trackerCfg),
		countsByFrame:      make(map[int]int),
		uncertaintyByFrame: make(map[int]float64),
		trackToAnimal:      make(map[int]int64),
		maxEvidenceFrames:  maxEvidenceFrames,
		maxEvidenceBytes:   maxEvidenceBytes,
	}
}

// estimateImageBytes approximates a decoded frame's in-memory footprint as
// 4 bytes per pixel (RGBA-equivalent), independent of the image's actual
// internal representation.
func estimateImageBytes(img image.Image) int {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	return b.Dx() * b.Dy() * 4
}

// trackFrame records one frame's detections into the evidence buffer. The
// buffer is capped both by frame count and by total estimated decoded byte
// size, per spec §5; a new frame is admitted outright while both budgets
// have room, otherwise it only displaces the current lowest-count retained
// frame when it is denser and the swap keeps the buffer within its byte
// budget, so the retained set trends toward the highest-density frames the
// Evidence Generator's key-frame selection favors, per spec §4.7 step 4.
func (r *jobRun) trackFrame(frameNum int, img image.Image, dets []evidence.Detection, count int) {
	if count > r.peakCount {
		r.peakCount = count
	}

	rec := evidence.FrameRecord{
		Frame:      frameNum,
		Detections: dets,
		Timestamp:  time.Duration(frameNum) * time.Second,
		Image:      img,
	}
	size := estimateImageBytes(img)

	if len(r.evidenceFrames) < r.maxEvidenceFrames && r.evidenceBytes+size <= r.maxEvidenceBytes {
		r.evidenceFrames = append(r.evidenceFrames, rec)
		r.evidenceBytes += size
		return
	}

	if len(r.evidenceFrames) == 0 {
		return
	}

	minIdx, minCount := 0, len(r.evidenceFrames[0].Detections)
	for i, f := range r.evidenceFrames {
		if len(f.Detections) < minCount {
			minIdx, minCount = i, len(f.Detections)
		}
	}
	if len(dets) <= minCount {
		return
	}

	evictedSize := estimateImageBytes(r.evidenceFrames[minIdx].Image)
	if r.evidenceBytes-evictedSize+size > r.maxEvidenceBytes {
		return
	}
	r.evidenceBytes += size - evictedSize
	r.evidenceFrames[minIdx] = rec
}
