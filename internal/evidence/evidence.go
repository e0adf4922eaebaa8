// Package evidence selects representative frames from a finished job and
// writes the annotated/heatmap JPEGs, manifest, and plain-text expert
// report a human reviewer reads to sanity-check the pipeline's honesty
// about uncertainty.
package evidence

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/technosupport/herdvision/internal/verifier"
)

// Detection is the subset of a persisted detection evidence needs to draw.
type Detection struct {
	AnimalID   int64
	Box        image.Rectangle
	Confidence float64
}

// FrameRecord is one frame's detections plus its timestamp, an offset into
// the video (the pipeline sets it to one second per frame number), keyed by
// frame number in the caller's per-video map.
type FrameRecord struct {
	Frame      int
	Detections []Detection
	Timestamp  time.Duration
	Image      image.Image
}

type Manifest struct {
	VideoID     int64             `json:"video_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	KeyFrames   []KeyFrameEntry   `json:"key_frames"`
	Verifier    verifier.Result   `json:"verifier_result"`
}

type KeyFrameEntry struct {
	Frame         int    `json:"frame"`
	AnnotatedFile string `json:"annotated_file"`
	HeatmapFile   string `json:"heatmap_file"`
	Count         int    `json:"count"`
	Density       string `json:"density"`
}

// Generator writes the per-job diagnostic directory.
type Generator struct {
	OutputBaseDir string
	HeatmapCell   int
}

func New(outputBaseDir string) *Generator {
	return &Generator{OutputBaseDir: outputBaseDir, HeatmapCell: 32}
}

// JobDir is <base>/video_<id>_diagnostic/, matching the retrieval contract.
func (g *Generator) JobDir(videoID int64) string {
	return filepath.Join(g.OutputBaseDir, fmt.Sprintf("video_%d_diagnostic", videoID))
}

// Generate selects key frames from frames, renders their artifacts, and
// writes manifest.json + expert_analysis.txt. frames must be supplied in
// ascending frame-number order.
func (g *Generator) Generate(videoID int64, frames []FrameRecord, countsByFrame map[int]int, result verifier.Result) error {
	dir := g.JobDir(videoID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create evidence dir: %w", err)
	}

	selected := SelectKeyFrames(frames, countsByFrame)

	manifest := Manifest{
		VideoID:     videoID,
		GeneratedAt: time.Now().UTC(),
		Verifier:    result,
	}

	byFrame := make(map[int]FrameRecord, len(frames))
	for _, f := range frames {
		byFrame[f.Frame] = f
	}

	for _, frameNum := range selected {
		fr, ok := byFrame[frameNum]
		if !ok || fr.Image == nil {
			continue
		}
		count := countsByFrame[frameNum]
		annotatedName := fmt.Sprintf("frame_%d_annotated.jpg", frameNum)
		heatmapName := fmt.Sprintf("frame_%d_heatmap.jpg", frameNum)

		annotated := annotate(fr, count)
		if err := saveJPEG(filepath.Join(dir, annotatedName), annotated); err != nil {
			return err
		}

		heat := heatmap(fr, g.HeatmapCell)
		if err := saveJPEG(filepath.Join(dir, heatmapName), heat); err != nil {
			return err
		}

		manifest.KeyFrames = append(manifest.KeyFrames, KeyFrameEntry{
			Frame:         frameNum,
			AnnotatedFile: annotatedName,
			HeatmapFile:   heatmapName,
			Count:         count,
			Density:       densityClass(count),
		})
	}

	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifestBytes, 0640); err != nil {
		return err
	}

	report := RenderExpertReport(videoID, manifest, result)
	return os.WriteFile(filepath.Join(dir, "expert_analysis.txt"), []byte(report), 0640)
}

// GalleryEntry is one animal's profile crop, recorded in a job's
// gallery_manifest.json.
type GalleryEntry struct {
	AnimalID     int64     `json:"animal_id"`
	ProfileFile  string    `json:"profile_file"`
	RegisteredAt time.Time `json:"registered_at"`
}

// GalleryManifest indexes every profile crop written for one video job.
type GalleryManifest struct {
	VideoID int64          `json:"video_id"`
	Animals []GalleryEntry `json:"animals"`
}

// ProfileDir is <base>/video_<id>_profiles/, matching the retrieval contract.
func (g *Generator) ProfileDir(videoID int64) string {
	return filepath.Join(g.OutputBaseDir, fmt.Sprintf("video_%d_profiles", videoID))
}

// SaveProfile crops frame tight to box (margin 0, no padding) and writes it
// as goat_<animalID>.jpg under the job's profile directory, then appends an
// entry to that directory's gallery_manifest.json (creating it on first
// write), per spec §4.7 step 3 / §6.
func (g *Generator) SaveProfile(videoID, animalID int64, frame image.Image, box image.Rectangle) (string, error) {
	dir := g.ProfileDir(videoID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}

	fileName := fmt.Sprintf("goat_%d.jpg", animalID)
	path := filepath.Join(dir, fileName)
	if err := saveJPEG(path, cropTight(frame, box)); err != nil {
		return "", fmt.Errorf("save profile crop: %w", err)
	}

	if err := appendGalleryManifest(dir, videoID, GalleryEntry{
		AnimalID:     animalID,
		ProfileFile:  fileName,
		RegisteredAt: time.Now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("update gallery manifest: %w", err)
	}
	return path, nil
}

// cropTight extracts box from frame with no padding, clamping to frame's
// bounds. Falls back to the full frame if box doesn't overlap it.
func cropTight(frame image.Image, box image.Rectangle) image.Image {
	r := box.Intersect(frame.Bounds())
	if r.Dx() <= 0 || r.Dy() <= 0 {
		r = frame.Bounds()
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.Set(x-r.Min.X, y-r.Min.Y, frame.At(x, y))
		}
	}
	return out
}

func appendGalleryManifest(dir string, videoID int64, entry GalleryEntry) error {
	path := filepath.Join(dir, "gallery_manifest.json")
	manifest := GalleryManifest{VideoID: videoID}
	if existing, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(existing, &manifest)
	}
	manifest.Animals = append(manifest.Animals, entry)

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0640)
}

func densityClass(count int) string {
	switch {
	case count == 0:
		return "none"
	case count <= 3:
		return "sparse"
	case count <= 10:
		return "moderate"
	default:
		return "dense"
	}
}

func saveJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

// SelectKeyFrames implements the dedup'd selection rule: peak, median,
// sparse (if ≥3 distinct density levels), and 10/50/90% temporal samples
// when the job exceeds 10 frames.
func SelectKeyFrames(frames []FrameRecord, countsByFrame map[int]int) []int {
	if len(frames) == 0 {
		return nil
	}

	type fc struct {
		frame, count int
	}
	var series []fc
	for _, f := range frames {
		series = append(series, fc{f.Frame, countsByFrame[f.Frame]})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].frame < series[j].frame })

	selected := make(map[int]bool)

	peak := series[0]
	for _, s := range series {
		if s.count > peak.count {
			peak = s
		}
	}
	selected[peak.frame] = true

	sortedByCount := append([]fc(nil), series...)
	sort.Slice(sortedByCount, func(i, j int) bool { return sortedByCount[i].count < sortedByCount[j].count })
	medianEntry := sortedByCount[len(sortedByCount)/2]
	selected[medianEntry.frame] = true

	distinctDensities := make(map[string]bool)
	for _, s := range series {
		distinctDensities[densityClass(s.count)] = true
	}
	if len(distinctDensities) >= 3 {
		sparse := sortedByCount[0]
		for _, s := range sortedByCount {
			if s.count > 0 {
				sparse = s
				break
			}
		}
		selected[sparse.frame] = true
	}

	if len(series) > 10 {
		for _, pct := range []float64{0.10, 0.50, 0.90} {
			idx := int(pct * float64(len(series)-1))
			selected[series[idx].frame] = true
		}
	}

	out := make([]int, 0, len(selected))
	for f := range selected {
		out = append(out, f)
	}
	sort.Ints(out)
	return out
}

var (
	colorGreen  = color.RGBA{40, 200, 80, 255}
	colorOrange = color.RGBA{240, 150, 30, 255}
	colorRed    = color.RGBA{220, 40, 40, 255}
)

func confidenceColor(conf float64) color.RGBA {
	switch {
	case conf >= 0.7:
		return colorGreen
	case conf >= 0.4:
		return colorOrange
	default:
		return colorRed
	}
}
