package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyCounts_EmptyInput_Fails(t *testing.T) {
	v := New(DefaultConfig())
	r := v.VerifyCounts(map[int]int{}, map[int]float64{}, nil)

	assert.False(t, r.IsReliable)
	assert.Equal(t, UncertaintyExtreme, r.UncertaintyLevel)
	assert.Contains(t, r.FailureReasons, "No detections found")
}

func TestVerifyCounts_StableCounts_HighConfidence(t *testing.T) {
	v := New(DefaultConfig())
	counts := map[int]int{1: 10, 2: 10, 3: 10, 4: 10, 5: 10, 6: 10, 7: 10, 8: 10}
	uncertainty := map[int]float64{1: 5, 2: 5, 3: 5, 4: 5, 5: 5, 6: 5, 7: 5, 8: 5}

	r := v.VerifyCounts(counts, uncertainty, nil)

	assert.True(t, r.IsReliable)
	assert.Equal(t, UncertaintyLow, r.UncertaintyLevel)
	assert.Equal(t, 10, r.LikelyCount)
	assert.Empty(t, r.Recommendation)
}

func TestVerifyCounts_VolatileCounts_LowConfidence(t *testing.T) {
	v := New(DefaultConfig())
	counts := map[int]int{1: 2, 2: 30, 3: 3, 4: 40, 5: 1, 6: 35, 7: 2, 8: 38}
	uncertainty := map[int]float64{1: 70, 2: 80, 3: 75, 4: 90, 5: 65, 6: 85, 7: 72, 8: 88}

	r := v.VerifyCounts(counts, uncertainty, nil)

	assert.False(t, r.IsReliable)
	assert.Equal(t, UncertaintyExtreme, r.UncertaintyLevel)
	assert.NotEmpty(t, r.Recommendation)
	assert.NotEmpty(t, r.FailureReasons)
}

func TestVerifyCounts_LowResolutionMetadata_AddsRecommendation(t *testing.T) {
	v := New(Config{MaxVarianceThreshold: 0.15, MinConfidenceThreshold: 99})
	counts := map[int]int{1: 10, 2: 11, 3: 9, 4: 10}
	uncertainty := map[int]float64{1: 10, 2: 10, 3: 10, 4: 10}
	meta := &Metadata{Width: 640, Height: 480}

	r := v.VerifyCounts(counts, uncertainty, meta)

	assert.False(t, r.IsReliable)
	assert.Contains(t, r.Recommendation, "Low resolution video")
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, percentile(v, 0))
	assert.Equal(t, 4.0, percentile(v, 100))
	assert.InDelta(t, 2.5, percentile(v, 50), 0.001)
}

func TestDetectOutliers_IQRRule(t *testing.T) {
	counts := []float64{10, 11, 9, 10, 12, 11, 100}
	out := detectOutliers(counts)
	assert.Contains(t, out, 100.0)
}

func TestCalculateTemporalStability_PerfectlyStable(t *testing.T) {
	stability := calculateTemporalStability([]float64{10, 10, 10, 10})
	assert.Equal(t, 100.0, stability)
}

func TestCalculateTemporalStability_SingleFrame(t *testing.T) {
	assert.Equal(t, 0.0, calculateTemporalStability([]float64{10}))
}
