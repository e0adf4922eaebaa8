package evidence

import (
	"bytes"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/herdvision/internal/verifier"
)

func framesOfCounts(counts ...int) ([]FrameRecord, map[int]int) {
	var frames []FrameRecord
	byFrame := make(map[int]int)
	for i, c := range counts {
		frames = append(frames, FrameRecord{Frame: i})
		byFrame[i] = c
	}
	return frames, byFrame
}

func TestSelectKeyFrames_Empty(t *testing.T) {
	assert.Nil(t, SelectKeyFrames(nil, nil))
}

func TestSelectKeyFrames_AlwaysIncludesPeakAndMedian(t *testing.T) {
	frames, counts := framesOfCounts(1, 5, 2, 8, 3)
	selected := SelectKeyFrames(frames, counts)

	assert.Contains(t, selected, 3) // frame with count 8, the peak
	assert.Contains(t, selected, 4) // frame with count 3, the median
	assert.NotEmpty(t, selected)
}

func TestSelectKeyFrames_IncludesSparseWhenThreeDensityLevels(t *testing.T) {
	// counts: 0 (none), 2 (sparse), 6 (moderate), 15 (dense) -> 4 distinct levels
	frames, counts := framesOfCounts(0, 2, 6, 15)
	selected := SelectKeyFrames(frames, counts)
	assert.GreaterOrEqual(t, len(selected), 3)
}

func TestSelectKeyFrames_AddsTemporalSamplesWhenLong(t *testing.T) {
	counts := make([]int, 20)
	for i := range counts {
		counts[i] = 5 // flat, so peak/median collapse to one selection
	}
	frames, byFrame := framesOfCounts(counts...)
	selected := SelectKeyFrames(frames, byFrame)

	assert.Greater(t, len(selected), 1, "temporal sampling should add frames beyond the flat peak/median pick")
}

func TestDensityClass_Thresholds(t *testing.T) {
	assert.Equal(t, "none", densityClass(0))
	assert.Equal(t, "sparse", densityClass(3))
	assert.Equal(t, "moderate", densityClass(10))
	assert.Equal(t, "dense", densityClass(11))
}

func TestConfidenceColor_Tiers(t *testing.T) {
	assert.Equal(t, colorGreen, confidenceColor(0.9))
	assert.Equal(t, colorOrange, confidenceColor(0.5))
	assert.Equal(t, colorRed, confidenceColor(0.1))
}

func TestGenerate_WritesManifestAndReport(t *testing.T) {
	tmp := t.TempDir()
	g := New(tmp)

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	frames := []FrameRecord{
		{Frame: 0, Image: img, Detections: []Detection{{AnimalID: 1, Box: image.Rect(0, 0, 10, 10), Confidence: 0.9}}},
	}
	counts := map[int]int{0: 1}
	result := verifier.Result{LikelyCount: 1, IsReliable: true, UncertaintyLevel: verifier.UncertaintyLow}

	err := g.Generate(42, frames, counts, result)
	require.NoError(t, err)

	dir := g.JobDir(42)
	_, err = os.Stat(filepath.Join(dir, "manifest.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "expert_analysis.txt"))
	assert.NoError(t, err)
}

func TestSaveProfile_WritesTightCropAndGalleryManifest(t *testing.T) {
	tmp := t.TempDir()
	g := New(tmp)
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))

	path, err := g.SaveProfile(7, 1, frame, image.Rect(10, 10, 40, 50))
	require.NoError(t, err)
	assert.FileExists(t, path)

	decoded, err := os.ReadFile(path)
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(decoded))
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())

	manifestPath := filepath.Join(g.ProfileDir(7), "gallery_manifest.json")
	raw, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	var manifest GalleryManifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, int64(7), manifest.VideoID)
	require.Len(t, manifest.Animals, 1)
	assert.Equal(t, int64(1), manifest.Animals[0].AnimalID)
	assert.Equal(t, "goat_1.jpg", manifest.Animals[0].ProfileFile)
}

func TestSaveProfile_AppendsSecondEntryToExistingManifest(t *testing.T) {
	tmp := t.TempDir()
	g := New(tmp)
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))

	_, err := g.SaveProfile(7, 1, frame, image.Rect(0, 0, 20, 20))
	require.NoError(t, err)
	_, err = g.SaveProfile(7, 2, frame, image.Rect(0, 0, 20, 20))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(g.ProfileDir(7), "gallery_manifest.json"))
	require.NoError(t, err)
	var manifest GalleryManifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Len(t, manifest.Animals, 2)
}
