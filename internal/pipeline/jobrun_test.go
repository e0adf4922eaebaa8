package pipeline

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/herdvision/internal/evidence"
	"github.com/technosupport/herdvision/internal/reid"
	"github.com/technosupport/herdvision/internal/tracker"
)

func detsOfLen(n int) []evidence.Detection {
	out := make([]evidence.Detection, n)
	return out
}

func TestNewJobRun_DefaultsMaxEvidenceFrames(t *testing.T) {
	r := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 0, 0)
	assert.Equal(t, 5, r.maxEvidenceFrames)
	assert.Equal(t, defaultMaxEvidenceBytes, r.maxEvidenceBytes)
}

func TestTrackFrame_FillsUpToCapacity(t *testing.T) {
	r := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 3, 0)

	r.trackFrame(0, nil, detsOfLen(1), 1)
	r.trackFrame(1, nil, detsOfLen(2), 2)
	r.trackFrame(2, nil, detsOfLen(3), 3)

	assert.Len(t, r.evidenceFrames, 3)
	assert.Equal(t, 3, r.peakCount)
}

func TestTrackFrame_ReplacesLowestCountFrameWhenDenser(t *testing.T) {
	r := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 2, 0)

	r.trackFrame(0, nil, detsOfLen(1), 1)
	r.trackFrame(1, nil, detsOfLen(5), 5)
	// at capacity; frame 0 (1 detection) is the lowest
	r.trackFrame(2, nil, detsOfLen(3), 3)

	assert.Len(t, r.evidenceFrames, 2)
	frames := map[int]bool{}
	for _, f := range r.evidenceFrames {
		frames[f.Frame] = true
	}
	assert.True(t, frames[1])
	assert.True(t, frames[2])
	assert.False(t, frames[0])
}

func TestTrackFrame_KeepsExistingFrameWhenNewIsSparser(t *testing.T) {
	r := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 2, 0)

	r.trackFrame(0, nil, detsOfLen(5), 5)
	r.trackFrame(1, nil, detsOfLen(5), 5)
	r.trackFrame(2, nil, detsOfLen(1), 1) // sparser than both retained; dropped

	frames := map[int]bool{}
	for _, f := range r.evidenceFrames {
		frames[f.Frame] = true
	}
	assert.False(t, frames[2])
}

func TestTrackFrame_ByteBudgetBlocksAdmissionEvenWithFrameSlotsFree(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100)) // 100*100*4 = 40000 bytes
	r := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 5, 40000)

	r.trackFrame(0, img, detsOfLen(1), 1)
	assert.Len(t, r.evidenceFrames, 1)

	// frame slots are free (cap 5) but the byte budget (40000) is already spent
	r.trackFrame(1, img, detsOfLen(1), 1)
	assert.Len(t, r.evidenceFrames, 1, "second frame should be rejected: byte budget exhausted")
}

func TestTrackFrame_ByteBudgetAllowsDenserSwapWithinLimit(t *testing.T) {
	small := image.NewRGBA(image.Rect(0, 0, 10, 10))  // 400 bytes
	big := image.NewRGBA(image.Rect(0, 0, 20, 20))    // 1600 bytes
	r := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 1, 1600)

	r.trackFrame(0, small, detsOfLen(1), 1)
	r.trackFrame(1, big, detsOfLen(5), 5) // denser, fits the byte budget after evicting frame 0

	assert.Len(t, r.evidenceFrames, 1)
	assert.Equal(t, 1, r.evidenceFrames[0].Frame)
	assert.Equal(t, 1600, r.evidenceBytes)
}
