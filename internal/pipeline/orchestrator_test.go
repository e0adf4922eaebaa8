package pipeline

import (
	"context"
	"database/sql"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/herdvision/internal/audit"
	"github.com/technosupport/herdvision/internal/data"
	"github.com/technosupport/herdvision/internal/detector"
	"github.com/technosupport/herdvision/internal/evidence"
	"github.com/technosupport/herdvision/internal/reid"
	"github.com/technosupport/herdvision/internal/tracker"
	"github.com/technosupport/herdvision/internal/verifier"
)

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(subject string, payload []byte) error {
	f.published = append(f.published, subject)
	return nil
}

func newTestOrchestrator(t *testing.T, db *sql.DB, pub *fakePublisher) *Orchestrator {
	t.Helper()
	return New(Deps{
		Config:        DefaultConfig(),
		VideoJobs:     data.VideoJobModel{DB: db},
		Animals:       data.AnimalModel{DB: db},
		Biometrics:    data.BiometricModel{DB: db},
		Detections:    data.DetectionModel{DB: db},
		Events:        data.EventModel{DB: db},
		Audit:         audit.NewService(db),
		DetectorStore: detector.NewStore(detector.DefaultConfig(), nil),
		TrackerConfig: tracker.DefaultConfig(),
		ReidConfig:    reid.DefaultConfig(),
		ReidLocker:    reid.NewLocker(nil),
		Verifier:      verifier.New(verifier.DefaultConfig()),
		Evidence:      evidence.New(t.TempDir()),
		Publisher:     pub,
	})
}

func TestProgressFor_CapsAt99(t *testing.T) {
	assert.Equal(t, 50, progressFor(50, 100))
	assert.Equal(t, 99, progressFor(100, 100))
	assert.Equal(t, 0, progressFor(5, 0))
}

func TestEstimateFrameUncertainty_EmptyIsFiftyPercent(t *testing.T) {
	assert.Equal(t, 50.0, estimateFrameUncertainty(nil))
}

func TestEstimateFrameUncertainty_HighConfidenceIsLowUncertainty(t *testing.T) {
	dets := []detector.Detection{{Confidence: 0.95}, {Confidence: 0.9}}
	u := estimateFrameUncertainty(dets)
	assert.InDelta(t, 7.5, u, 0.01)
}

func TestResolveAnimal_NewDecision_CreatesAnimalAndRegisters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	pub := &fakePublisher{}
	o := newTestOrchestrator(t, db, pub)
	run := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 5, 0)
	run.reidEngine = reid.New(reid.DefaultConfig(), nil, "v1")

	mock.ExpectQuery("INSERT INTO animals").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO biometrics").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit").WillReturnResult(sqlmock.NewResult(0, 1))

	embedding := make([]float32, 256)
	embedding[0] = 1
	frame := image.NewRGBA(image.Rect(0, 0, 50, 50))
	box := image.Rect(5, 5, 40, 40)
	animalID, err := o.resolveAnimal(context.Background(), run, 7, reid.Result{Decision: reid.DecisionNew}, embedding, frame, box)

	require.NoError(t, err)
	assert.Equal(t, int64(1), animalID)
	assert.Equal(t, 1, run.registeredCount)

	_, ok := run.reidEngine.Get(1)
	assert.True(t, ok)
	assert.Contains(t, pub.published, "herdvision.identity.new")

	profilePath := filepath.Join(o.evidenceGen.ProfileDir(1), "goat_1.jpg")
	assert.FileExists(t, profilePath)
	assert.FileExists(t, filepath.Join(o.evidenceGen.ProfileDir(1), "gallery_manifest.json"))
}

func TestResolveAnimal_NewDecision_ReusesAlreadyResolvedTrack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	o := newTestOrchestrator(t, db, &fakePublisher{})
	run := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 5, 0)
	run.reidEngine = reid.New(reid.DefaultConfig(), nil, "v1")
	run.trackToAnimal[7] = 99

	animalID, err := o.resolveAnimal(context.Background(), run, 7, reid.Result{Decision: reid.DecisionNew}, make([]float32, 256), nil, image.Rectangle{})
	require.NoError(t, err)
	assert.Equal(t, int64(99), animalID)
	assert.NoError(t, mock.ExpectationsWereMet()) // no DB calls expected or made
}

func TestResolveAnimal_StrongMatch_TouchesAndRecordsSighting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	pub := &fakePublisher{}
	o := newTestOrchestrator(t, db, pub)
	run := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 5, 0)
	run.reidEngine = reid.New(reid.DefaultConfig(), []*reid.Identity{
		{AnimalID: 42, Embedding: make([]float32, 256), LastUpdated: time.Now()},
	}, "v1")

	mock.ExpectExec("UPDATE animals SET last_seen").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO biometrics").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO events").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec("INSERT INTO audit").WillReturnResult(sqlmock.NewResult(0, 1))

	animalID, err := o.resolveAnimal(context.Background(), run, 3, reid.Result{Decision: reid.DecisionStrongMatch, AnimalID: 42, Similarity: 0.95}, make([]float32, 256), nil, image.Rectangle{})

	require.NoError(t, err)
	assert.Equal(t, int64(42), animalID)
	assert.Equal(t, 1, run.matchedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAnimal_Pending_NoSideEffects(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	o := newTestOrchestrator(t, db, &fakePublisher{})
	run := newJobRun(1, tracker.DefaultConfig(), reid.DefaultConfig(), 5, 0)
	run.reidEngine = reid.New(reid.DefaultConfig(), nil, "v1")

	animalID, err := o.resolveAnimal(context.Background(), run, 7, reid.Result{Decision: reid.DecisionPending}, make([]float32, 256), nil, image.Rectangle{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), animalID)
	assert.Equal(t, 0, run.registeredCount)
	assert.Equal(t, 0, run.matchedCount)
	assert.NoError(t, mock.ExpectationsWereMet()) // no DB calls expected or made
}

func TestFail_PersistsFailedStatusAndPublishes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	pub := &fakePublisher{}
	o := newTestOrchestrator(t, db, pub)

	mock.ExpectExec("UPDATE video_jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit").WillReturnResult(sqlmock.NewResult(0, 1))

	result := o.fail(context.Background(), 1, time.Now(), ErrCodecDecodeFailed, ErrCodecDecodeFailed)

	assert.Equal(t, StatusFailed, result.Status)
	assert.NotEmpty(t, result.Errors)
	assert.Contains(t, pub.published, "herdvision.job.failed")
}

func TestAuditJobEvent_NoopWhenAuditNil(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	o := New(Deps{
		VideoJobs: data.VideoJobModel{DB: db},
	})
	// Must not panic despite auditSvc being nil.
	o.auditJobEvent(context.Background(), 1, audit.ActionJobStarted, nil)
}

func TestPublishEvent_NoopWhenPublisherNil(t *testing.T) {
	o := New(Deps{})
	// Must not panic despite pub being nil.
	o.publishEvent(1, "job.completed", map[string]any{"status": "ok"})
}
