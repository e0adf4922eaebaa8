// Package verifier turns a raw per-frame count series into an honest,
// ground-truth-aligned result: a min/max/likely range instead of a single
// false-precision number, an explicit uncertainty level, and — when
// confidence is too low to trust — an admitted failure with an actionable
// recommendation. Ported faithfully from the reference CountVerifier.
package verifier

import (
	"fmt"
	"math"
	"sort"
)

type UncertaintyLevel string

const (
	UncertaintyLow     UncertaintyLevel = "Low"
	UncertaintyMedium  UncertaintyLevel = "Medium"
	UncertaintyHigh    UncertaintyLevel = "High"
	UncertaintyExtreme UncertaintyLevel = "Extreme"
)

type Metadata struct {
	Width, Height int
}

type Result struct {
	MinCount         int
	MaxCount         int
	LikelyCount      int
	ConfidenceScore  float64
	UncertaintyLevel UncertaintyLevel
	IsReliable       bool
	Warnings         []string
	FailureReasons   []string
	TemporalStability float64
	Recommendation   string
}

type Config struct {
	MaxVarianceThreshold float64
	MinConfidenceThreshold float64
}

func DefaultConfig() Config {
	return Config{MaxVarianceThreshold: 0.15, MinConfidenceThreshold: 60.0}
}

type Verifier struct {
	cfg Config
}

func New(cfg Config) *Verifier {
	if cfg.MinConfidenceThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Verifier{cfg: cfg}
}

// VerifyCounts is the single entrypoint: countsByFrame is {frame -> count},
// uncertaintyByFrame is {frame -> per-frame uncertainty score 0-100}.
func (v *Verifier) VerifyCounts(countsByFrame map[int]int, uncertaintyByFrame map[int]float64, meta *Metadata) Result {
	if len(countsByFrame) == 0 {
		return failureResult("No detections found")
	}

	frames := sortedKeys(countsByFrame)
	counts := make([]float64, len(frames))
	for i, f := range frames {
		counts[i] = float64(countsByFrame[f])
	}
	uncertainties := make([]float64, 0, len(uncertaintyByFrame))
	for _, f := range frames {
		if u, ok := uncertaintyByFrame[f]; ok {
			uncertainties = append(uncertainties, u)
		}
	}
	if len(uncertainties) == 0 {
		uncertainties = []float64{0}
	}

	var warnings, failureReasons []string

	meanCount := mean(counts)
	medianCount := median(counts)
	stdCount := stddev(counts, meanCount)
	cv := 1.0
	if meanCount > 0 {
		cv = stdCount / meanCount
	}

	peakCount := maxOf(counts)
	p95 := percentile(counts, 95)
	p90 := percentile(counts, 90)
	p25 := percentile(counts, 25)

	temporalStability := calculateTemporalStability(counts)
	if temporalStability < 50 {
		warnings = append(warnings, "High temporal instability detected - counts vary significantly across frames")
	}

	outliers := detectOutliers(counts)
	if float64(len(outliers)) > float64(len(counts))*0.2 {
		warnings = append(warnings, fmt.Sprintf("High outlier rate: %d frames with unusual counts", len(outliers)))
	}

	avgUncertainty := mean(uncertainties)

	if peakCount > 500 {
		warnings = append(warnings, "Extremely high count detected - may indicate detection errors")
	}
	if peakCount < 5 && meanCount > 0 {
		warnings = append(warnings, "Very low count - verify video contains goats")
	}

	suddenJumps := detectSuddenJumps(countsByFrame, frames)
	if float64(suddenJumps) > float64(len(counts))*0.1 {
		warnings = append(warnings, fmt.Sprintf("Detected %d sudden count changes - possible tracking errors", suddenJumps))
	}

	outlierRatio := 0.0
	if len(counts) > 0 {
		outlierRatio = float64(len(outliers)) / float64(len(counts))
	}
	confidence := calculateConfidence(cv, temporalStability, avgUncertainty, outlierRatio)

	var minCount, maxCount, likelyCount int
	switch {
	case cv < 0.05:
		likelyCount = int(p95)
		minCount = int(float64(likelyCount) * 0.95)
		maxCount = int(float64(likelyCount) * 1.05)
	case cv < 0.15:
		likelyCount = int(p90)
		minCount = int(float64(likelyCount) * 0.90)
		maxCount = int(peakCount * 1.05)
	default:
		likelyCount = int(medianCount)
		minCount = int(p25)
		maxCount = int(peakCount)
		warnings = append(warnings, "High variance in counts - wide range reported")
	}

	var level UncertaintyLevel
	switch {
	case avgUncertainty > 60 || confidence < 40:
		level = UncertaintyExtreme
		failureReasons = append(failureReasons, "Extreme occlusion or poor video quality")
	case avgUncertainty > 40 || confidence < 60:
		level = UncertaintyHigh
		failureReasons = append(failureReasons, "High occlusion detected")
	case avgUncertainty > 20 || confidence < 75:
		level = UncertaintyMedium
	default:
		level = UncertaintyLow
	}

	isReliable := confidence >= v.cfg.MinConfidenceThreshold
	if !isReliable {
		failureReasons = append(failureReasons, fmt.Sprintf("Confidence score (%.1f%%) below threshold (%.1f%%)", confidence, v.cfg.MinConfidenceThreshold))
	}

	var recommendation string
	if !isReliable {
		recommendation = generateRecommendation(avgUncertainty, cv, temporalStability, meta)
	}

	return Result{
		MinCount:          minCount,
		MaxCount:          maxCount,
		LikelyCount:       likelyCount,
		ConfidenceScore:   round1(confidence),
		UncertaintyLevel:  level,
		IsReliable:        isReliable,
		Warnings:          warnings,
		FailureReasons:    failureReasons,
		TemporalStability: round1(temporalStability),
		Recommendation:    recommendation,
	}
}

func failureResult(reason string) Result {
	return Result{
		UncertaintyLevel: UncertaintyExtreme,
		IsReliable:       false,
		FailureReasons:   []string{reason},
		Recommendation:   "Unable to process video - " + reason,
	}
}

// calculateTemporalStability returns 0-100, 100 = perfectly stable.
func calculateTemporalStability(counts []float64) float64 {
	if len(counts) < 2 {
		return 0
	}
	var changes []float64
	for i := 1; i < len(counts); i++ {
		if counts[i-1] > 0 {
			changes = append(changes, math.Abs(counts[i]-counts[i-1])/counts[i-1])
		}
	}
	if len(changes) == 0 {
		return 0
	}
	avgChange := mean(changes)
	return math.Max(0, 100*(1-math.Min(avgChange, 1.0)))
}

// detectOutliers uses the 1.5*IQR rule.
func detectOutliers(counts []float64) []float64 {
	if len(counts) < 4 {
		return nil
	}
	q1 := percentile(counts, 25)
	q3 := percentile(counts, 75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	var out []float64
	for _, c := range counts {
		if c < lower || c > upper {
			out = append(out, c)
		}
	}
	return out
}

func detectSuddenJumps(countsByFrame map[int]int, sortedFrames []int) int {
	jumps := 0
	for i := 1; i < len(sortedFrames); i++ {
		prev := countsByFrame[sortedFrames[i-1]]
		curr := countsByFrame[sortedFrames[i]]
		if prev > 0 {
			change := math.Abs(float64(curr-prev)) / float64(prev)
			if change > 0.5 {
				jumps++
			}
		}
	}
	return jumps
}

func calculateConfidence(cv, temporalStability, avgUncertainty, outlierRatio float64) float64 {
	cvScore := math.Max(0, 100*(1-math.Min(cv/0.5, 1.0)))
	stabilityScore := temporalStability
	uncertaintyScore := 100 - avgUncertainty
	outlierScore := math.Max(0, 100*(1-math.Min(outlierRatio/0.3, 1.0)))

	confidence := cvScore*0.30 + stabilityScore*0.30 + uncertaintyScore*0.25 + outlierScore*0.15
	return math.Min(100, math.Max(0, confidence))
}

func generateRecommendation(avgUncertainty, cv, temporalStability float64, meta *Metadata) string {
	var recs []string

	if avgUncertainty > 50 {
		recs = append(recs, "Extreme occlusion detected")
		recs = append(recs, "Recommendation: Use higher camera angle or multiple cameras")
	}
	if cv > 0.3 {
		recs = append(recs, "High count variance across frames")
		recs = append(recs, "Recommendation: Ensure goats are in stable group, not moving rapidly")
	}
	if temporalStability < 40 {
		recs = append(recs, "Unstable tracking detected")
		recs = append(recs, "Recommendation: Improve lighting and reduce motion blur")
	}
	if meta != nil && (meta.Width < 1280 || meta.Height < 720) {
		recs = append(recs, "Low resolution video")
		recs = append(recs, "Recommendation: Use HD or higher resolution camera (1080p minimum)")
	}
	if len(recs) == 0 {
		recs = append(recs, "General recommendation: Improve video quality, lighting, and camera angle")
	}

	out := recs[0]
	for _, r := range recs[1:] {
		out += " | " + r
	}
	return out
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func median(v []float64) float64 {
	return percentile(v, 50)
}

func stddev(v []float64, m float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(v)))
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// percentile uses linear interpolation between closest ranks, matching
// numpy.percentile's default ("linear") method.
func percentile(v []float64, p float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
