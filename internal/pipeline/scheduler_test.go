package pipeline

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/herdvision/internal/data"
)

func TestDispatchPending_QueuesEveryPendingJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "path", "status", "progress", "error", "frames_processed", "unique_goats_detected", "metadata_json", "created_at", "updated_at"}).
		AddRow(int64(1), "/a.mp4", data.JobPending, 0, nil, 0, 0, nil, time.Now(), time.Now()).
		AddRow(int64(2), "/b.mp4", data.JobPending, 0, nil, 0, 0, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM video_jobs WHERE status").WillReturnRows(rows)

	s := &Scheduler{cfg: DefaultSchedulerConfig(), jobs: data.VideoJobModel{DB: db}}
	queue := make(chan dispatchedJob, 10)
	s.dispatchPending(queue)
	close(queue)

	var got []dispatchedJob
	for j := range queue {
		got = append(got, j)
	}
	assert.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].id)
	assert.Equal(t, int64(2), got[1].id)
}

func TestDispatchPending_StopsWhenQueueFull(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "path", "status", "progress", "error", "frames_processed", "unique_goats_detected", "metadata_json", "created_at", "updated_at"}).
		AddRow(int64(1), "/a.mp4", data.JobPending, 0, nil, 0, 0, nil, time.Now(), time.Now()).
		AddRow(int64(2), "/b.mp4", data.JobPending, 0, nil, 0, 0, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM video_jobs WHERE status").WillReturnRows(rows)

	s := &Scheduler{cfg: DefaultSchedulerConfig(), jobs: data.VideoJobModel{DB: db}}
	queue := make(chan dispatchedJob, 1) // room for only 1 of the 2 pending jobs
	s.dispatchPending(queue)
	close(queue)

	var got []dispatchedJob
	for j := range queue {
		got = append(got, j)
	}
	assert.Len(t, got, 1, "only the jobs that fit this tick should be queued; the rest retry next poll")
}

func TestNewScheduler_AppliesDefaultsWhenPollIntervalZero(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil, data.VideoJobModel{})
	assert.Equal(t, DefaultSchedulerConfig().PollInterval, s.cfg.PollInterval)
	assert.Equal(t, DefaultSchedulerConfig().WorkerPoolSize, s.cfg.WorkerPoolSize)
}
