// Package pipeline is the single entry point per video job: it drives the
// frame loop, fans detections through Tracker -> Feature Extractor -> Re-ID,
// then runs the Verifier and Evidence Generator, and finalizes persisted
// state and audit records. Grounded on the teacher's health.Scheduler
// worker-pool pattern, generalized from a fixed poll-job shape to a
// variable-length per-video frame loop.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/herdvision/internal/audit"
	"github.com/technosupport/herdvision/internal/data"
	"github.com/technosupport/herdvision/internal/detector"
	"github.com/technosupport/herdvision/internal/evidence"
	"github.com/technosupport/herdvision/internal/features"
	"github.com/technosupport/herdvision/internal/metrics"
	"github.com/technosupport/herdvision/internal/reid"
	"github.com/technosupport/herdvision/internal/tracker"
	"github.com/technosupport/herdvision/internal/verifier"
)

type Status string

const (
	StatusSuccess             Status = "success"
	StatusFailed              Status = "failed"
	StatusCompletedWithWarnings Status = "completed_with_warnings"
)

// Result is the full outcome of Process, matching spec §4.7's contract.
type Result struct {
	Status               Status
	TotalFrames          int
	ProcessedFrames      int
	UniqueGoatsDetected  int
	UniqueGoatsMatched   int
	UniqueGoatsRegistered int
	ProcessingTime       time.Duration
	Errors               []string
	Warnings             []string
	Verifier             verifier.Result
}

// Config holds the orchestrator's own tunables; detector/tracker/reid get
// their own sub-configs via the Orchestrator's constructor arguments.
type Config struct {
	FrameSkip           int
	ProgressUpdateEvery int // spec §4.7 step 5, reference 50
	MaxEvidenceFrames   int // cap on in-memory high-density frames retained
	MaxEvidenceBytes    int // cap on the evidence buffer's total estimated decoded size
}

func DefaultConfig() Config {
	return Config{FrameSkip: 1, ProgressUpdateEvery: 50, MaxEvidenceFrames: 5, MaxEvidenceBytes: defaultMaxEvidenceBytes}
}

// Publisher abstracts the NATS sighting/status event sink so tests can
// substitute a no-op without a live broker, mirroring the teacher's
// nil-safe nc *nats.Conn pattern in cmd/ai-service.
type Publisher interface {
	Publish(subject string, payload []byte) error
}

type Orchestrator struct {
	cfg Config

	videoJobs   data.VideoJobModel
	animals     data.AnimalModel
	biometrics  data.BiometricModel
	detections  data.DetectionModel
	events      data.EventModel
	auditSvc    *audit.Service

	detectorStore *detector.Store
	trackerCfg    tracker.Config
	reidCfg       reid.Config
	reidLocker    *reid.Locker
	verifierSvc   *verifier.Verifier
	evidenceGen   *evidence.Generator

	pub          Publisher
	frameSource  func() FrameSource
}

type Deps struct {
	Config        Config
	VideoJobs     data.VideoJobModel
	Animals       data.AnimalModel
	Biometrics    data.BiometricModel
	Detections    data.DetectionModel
	Events        data.EventModel
	Audit         *audit.Service
	DetectorStore *detector.Store
	TrackerConfig tracker.Config
	ReidConfig    reid.Config
	ReidLocker    *reid.Locker
	Verifier      *verifier.Verifier
	Evidence      *evidence.Generator
	Publisher     Publisher
	NewFrameSource func() FrameSource
}

func New(d Deps) *Orchestrator {
	cfg := d.Config
	if cfg.ProgressUpdateEvery == 0 {
		cfg = DefaultConfig()
	}
	if d.NewFrameSource == nil {
		d.NewFrameSource = func() FrameSource { return NewDirFrameSource() }
	}
	if d.ReidLocker == nil {
		d.ReidLocker = reid.NewLocker(nil)
	}
	return &Orchestrator{
		cfg:           cfg,
		videoJobs:     d.VideoJobs,
		animals:       d.Animals,
		biometrics:    d.Biometrics,
		detections:    d.Detections,
		events:        d.Events,
		auditSvc:      d.Audit,
		detectorStore: d.DetectorStore,
		trackerCfg:    d.TrackerConfig,
		reidCfg:       d.ReidConfig,
		reidLocker:    d.ReidLocker,
		verifierSvc:   d.Verifier,
		evidenceGen:   d.Evidence,
		pub:           d.Publisher,
		frameSource:   d.NewFrameSource,
	}
}

// Process runs one video job end to end: the spec §4.7 protocol.
func (o *Orchestrator) Process(ctx context.Context, videoID int64, path string) Result {
	start := time.Now()

	if err := o.videoJobs.AdvanceProgress(ctx, videoID, data.JobProcessing, 0); err != nil {
		log.Printf("[Pipeline] failed to persist Processing status for video %d: %v", videoID, err)
	}
	o.auditJobEvent(ctx, videoID, audit.ActionJobStarted, nil)

	fs := o.frameSource()
	total, err := fs.Open(path)
	if err != nil {
		return o.fail(ctx, videoID, start, classify(err), err)
	}
	defer fs.Close()

	run := newJobRun(videoID, o.trackerCfg, o.reidCfg, o.cfg.MaxEvidenceFrames, o.cfg.MaxEvidenceBytes)

	biometrics, err := o.biometrics.LoadAll(ctx)
	if err != nil {
		return o.fail(ctx, videoID, start, ErrSystemFault, err)
	}
	seed := make([]*reid.Identity, 0, len(biometrics))
	for _, b := range biometrics {
		seed = append(seed, &reid.Identity{AnimalID: b.AnimalID, Embedding: b.Vector, LastUpdated: b.LastUpdated, ModelVersion: b.ModelVersion})
	}
	run.reidEngine = reid.New(o.reidCfg, seed, "herdvision-features-v1")

	processed := 0
	for {
		img, frameNum, ok, ferr := fs.Next()
		if ferr != nil {
			return o.fail(ctx, videoID, start, classify(ferr), ferr)
		}
		if !ok {
			break
		}
		processed++

		if o.cfg.FrameSkip > 1 && frameNum%o.cfg.FrameSkip != 0 {
			metrics.RecordFramesSkipped(1)
			continue
		}

		if err := o.processFrame(ctx, run, img, frameNum); err != nil {
			return o.fail(ctx, videoID, start, classify(err), err)
		}
		metrics.RecordFrameProcessed("analyzed")

		if processed%o.cfg.ProgressUpdateEvery == 0 {
			progress := progressFor(processed, total)
			_ = o.videoJobs.IncrementFramesProcessed(ctx, videoID, o.cfg.ProgressUpdateEvery)
			_ = o.videoJobs.AdvanceProgress(ctx, videoID, data.JobProcessing, progress)
		}
	}

	result := o.finalize(ctx, videoID, run, processed, total, start)
	return result
}

func progressFor(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 99 {
		p = 99 // 100 is reserved for the terminal Finish call
	}
	return p
}

// processFrame runs Detector -> Tracker -> {Feature Extractor, Re-ID} for
// one frame and records the results into run's in-memory state.
func (o *Orchestrator) processFrame(ctx context.Context, run *jobRun, img image.Image, frameNum int) error {
	if run.frameWidth == 0 && run.frameHeight == 0 {
		b := img.Bounds()
		run.frameWidth, run.frameHeight = b.Dx(), b.Dy()
	}

	det := o.detectorStore.Get()
	dets := det.Detect(img)

	tracks := run.tracker.Update(dets)
	run.countsByFrame[frameNum] = run.tracker.ConfirmedCount()
	run.uncertaintyByFrame[frameNum] = estimateFrameUncertainty(dets)

	var evidenceDets []evidence.Detection

	for _, t := range tracks {
		if t.State != tracker.StateConfirmed {
			continue
		}

		box := t.StableBox()
		var prevBox *features.BBox
		if len(t.Boxes) >= 2 {
			pb := t.Boxes[len(t.Boxes)-2]
			prevBox = &features.BBox{X: pb.X, Y: pb.Y, W: pb.W, H: pb.H}
		}

		embedding := features.Extract(img, features.BBox{X: box.X, Y: box.Y, W: box.W, H: box.H}, prevBox)
		result := run.reidEngine.Observe(t.ID, embedding)
		metrics.RecordReidDecision(string(result.Decision), result.Similarity)

		rect := image.Rect(int(box.X), int(box.Y), int(box.X+box.W), int(box.Y+box.H))
		animalID, err := o.resolveAnimal(ctx, run, t.ID, result, embedding, img, rect)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIdentityEngineFault, err)
		}
		run.trackToAnimal[t.ID] = animalID

		d := &data.Detection{
			VideoID:    run.videoID,
			TrackID:    t.ID,
			Frame:      frameNum,
			Box:        data.BBox{X: box.X, Y: box.Y, W: box.W, H: box.H},
			Confidence: t.Confidence,
			Timestamp:  time.Now().UTC(),
		}
		if animalID > 0 {
			d.AnimalID.Int64, d.AnimalID.Valid = animalID, true
		}
		if _, err := o.detections.Insert(ctx, d); err != nil {
			return fmt.Errorf("%w: %v", ErrSystemFault, err)
		}

		evidenceDets = append(evidenceDets, evidence.Detection{
			AnimalID:   animalID,
			Box:        rect,
			Confidence: t.Confidence,
		})
	}

	run.trackFrame(frameNum, img, evidenceDets, run.countsByFrame[frameNum])
	return nil
}

// resolveAnimal maps a Re-ID decision to a persisted Animal row, creating
// one on DecisionNew and recording the appropriate audit/event rows. frame
// and box are the current detection's source image and pixel box, used only
// to save the new-identity profile crop; unused on a match.
func (o *Orchestrator) resolveAnimal(ctx context.Context, run *jobRun, trackID int, result reid.Result, embedding []float32, frame image.Image, box image.Rectangle) (int64, error) {
	switch result.Decision {
	case reid.DecisionPending:
		// Not enough accumulated observations yet; no identity side effects.
		return 0, nil

	case reid.DecisionNew:
		if existing, ok := run.trackToAnimal[trackID]; ok {
			return existing, nil
		}
		tag := uuid.New().String()[:8]
		animal, err := o.animals.Create(ctx, tag, time.Now().UTC())
		if err != nil {
			return 0, err
		}

		unlock, err := o.reidLocker.Lock(ctx, animal.ID)
		if err != nil {
			return 0, err
		}
		err = o.biometrics.Upsert(ctx, &data.BiometricRecord{
			AnimalID: animal.ID, Vector: embedding, LastUpdated: time.Now().UTC(), ModelVersion: run.reidEngine.ModelVersion(),
		})
		unlock()
		if err != nil {
			return 0, err
		}
		run.reidEngine.RegisterNew(&reid.Identity{AnimalID: animal.ID, Embedding: embedding, LastUpdated: time.Now().UTC(), ModelVersion: run.reidEngine.ModelVersion()})
		run.registeredCount++

		if frame != nil {
			if _, err := o.evidenceGen.SaveProfile(run.videoID, animal.ID, frame, box); err != nil {
				log.Printf("[Pipeline] profile crop failed for animal %d: %v", animal.ID, err)
			}
		}

		o.auditJobEvent(ctx, run.videoID, audit.ActionIdentityNew, map[string]any{"animal_id": animal.ID, "track_id": trackID})
		o.publishEvent(run.videoID, "identity.new", map[string]any{"animal_id": animal.ID})
		return animal.ID, nil

	default: // StrongMatch, WeakMatch
		if err := o.animals.TouchLastSeen(ctx, result.AnimalID, time.Now().UTC()); err != nil {
			return 0, err
		}
		if id, ok := run.reidEngine.Get(result.AnimalID); ok {
			unlock, lockErr := o.reidLocker.Lock(ctx, result.AnimalID)
			if lockErr == nil {
				_ = o.biometrics.Upsert(ctx, &data.BiometricRecord{
					AnimalID: id.AnimalID, Vector: id.Embedding, LastUpdated: id.LastUpdated, ModelVersion: id.ModelVersion,
				})
				unlock()
			}
		}
		run.matchedCount++

		if _, err := o.events.Insert(ctx, &data.SightingEvent{
			AnimalID:  sql.NullInt64{Int64: result.AnimalID, Valid: true},
			VideoID:   sql.NullInt64{Int64: run.videoID, Valid: true},
			Type:      data.EventIdentityMatched,
			Severity:  data.SeverityInfo,
			Title:     fmt.Sprintf("Matched animal %d", result.AnimalID),
			Timestamp: time.Now().UTC(),
		}); err != nil {
			return 0, err
		}
		o.auditJobEvent(ctx, run.videoID, audit.ActionIdentityMatched, map[string]any{"animal_id": result.AnimalID, "decision": result.Decision})
		return result.AnimalID, nil
	}
}

// finalize runs the Verifier and Evidence Generator, persists final state,
// and returns the public Result.
func (o *Orchestrator) finalize(ctx context.Context, videoID int64, run *jobRun, processed, total int, start time.Time) Result {
	var meta *verifier.Metadata
	if run.frameWidth > 0 || run.frameHeight > 0 {
		meta = &verifier.Metadata{Width: run.frameWidth, Height: run.frameHeight}
	}
	verifierResult := o.verifierSvc.VerifyCounts(run.countsByFrame, run.uncertaintyByFrame, meta)
	metrics.RecordCountUncertainty(string(verifierResult.UncertaintyLevel))

	if err := o.evidenceGen.Generate(videoID, run.evidenceFrames, run.countsByFrame, verifierResult); err != nil {
		log.Printf("[Pipeline] evidence generation failed for video %d: %v", videoID, err)
	}

	verifierResult.Warnings = append(verifierResult.Warnings,
		"detector operating in fallback (non-neural) mode: confidences are edge/contour-density estimates, not model scores")

	status := data.JobCompleted
	pubStatus := StatusSuccess
	if !verifierResult.IsReliable {
		status = data.JobCompletedWithWarnings
		pubStatus = StatusCompletedWithWarnings
	}

	metaBytes, _ := json.Marshal(map[string]any{"verifier": verifierResult})
	if err := o.videoJobs.Finish(ctx, videoID, status, verifierResult.LikelyCount, "", metaBytes); err != nil {
		log.Printf("[Pipeline] failed to persist final job state for video %d: %v", videoID, err)
	}

	duration := time.Since(start)
	metrics.RecordJobTerminal(string(pubStatus), duration.Seconds())
	o.auditJobEvent(ctx, videoID, audit.ActionJobCompleted, map[string]any{"likely_count": verifierResult.LikelyCount, "reliable": verifierResult.IsReliable})
	o.publishEvent(videoID, "job.completed", map[string]any{"status": pubStatus, "likely_count": verifierResult.LikelyCount})

	return Result{
		Status:                pubStatus,
		TotalFrames:           total,
		ProcessedFrames:       processed,
		UniqueGoatsDetected:   len(run.trackToAnimal),
		UniqueGoatsMatched:    run.matchedCount,
		UniqueGoatsRegistered: run.registeredCount,
		ProcessingTime:        duration,
		Warnings:              verifierResult.Warnings,
		Verifier:              verifierResult,
	}
}

func (o *Orchestrator) fail(ctx context.Context, videoID int64, start time.Time, code, cause error) Result {
	msg := fmt.Sprintf("%s: %v", code, cause)
	_ = o.videoJobs.Finish(ctx, videoID, data.JobFailed, 0, msg, nil)
	duration := time.Since(start)
	metrics.RecordJobTerminal(string(StatusFailed), duration.Seconds())
	o.auditJobEvent(ctx, videoID, audit.ActionJobFailed, map[string]any{"error": msg})
	o.publishEvent(videoID, "job.failed", map[string]any{"error": msg})
	return Result{Status: StatusFailed, Errors: []string{msg}, ProcessingTime: duration}
}

func (o *Orchestrator) auditJobEvent(ctx context.Context, videoID int64, action audit.Action, details map[string]any) {
	if o.auditSvc == nil {
		return
	}
	var detailsJSON json.RawMessage
	if details != nil {
		detailsJSON, _ = json.Marshal(details)
	}
	entry := audit.Entry{
		EntityType: audit.EntityVideo,
		EntityID:   fmt.Sprintf("%d", videoID),
		Action:     action,
		Details:    string(detailsJSON),
	}
	if err := o.auditSvc.Write(ctx, entry); err != nil {
		log.Printf("[Pipeline] audit write failed for video %d action %s: %v", videoID, action, err)
	}
}

func (o *Orchestrator) publishEvent(videoID int64, subject string, payload map[string]any) {
	if o.pub == nil {
		return
	}
	payload["video_id"] = videoID
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := o.pub.Publish("herdvision."+subject, body); err != nil {
		log.Printf("[Pipeline] publish failed for %s: %v", subject, err)
	}
}

// estimateFrameUncertainty derives a per-frame uncertainty score (0-100)
// from how close detection confidences are to the decision boundary: a
// frame full of high-confidence boxes is well-understood, a frame full of
// marginal ones is not.
func estimateFrameUncertainty(dets []detector.Detection) float64 {
	if len(dets) == 0 {
		return 50 // no detections at all is itself uncertain, not "confident zero"
	}
	var sum float64
	for _, d := range dets {
		sum += 1 - d.Confidence
	}
	avg := sum / float64(len(dets))
	return avg * 100
}
