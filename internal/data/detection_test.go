package data_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/herdvision/internal/data"
)

func TestDetectionModel_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.DetectionModel{DB: db}
	mock.ExpectQuery("INSERT INTO detections").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	d := &data.Detection{
		VideoID:    1,
		TrackID:    2,
		Frame:      10,
		Box:        data.BBox{X: 1, Y: 2, W: 3, H: 4},
		Confidence: 0.9,
		Timestamp:  time.Now().UTC(),
	}
	id, err := m.Insert(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestDetectionModel_LinkAnimal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.DetectionModel{DB: db}
	mock.ExpectExec("UPDATE detections SET animal_id").
		WithArgs(int64(1), 2, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err = m.LinkAnimal(context.Background(), 1, 2, 9)
	require.NoError(t, err)
}

func TestDetectionModel_CountByFrame(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.DetectionModel{DB: db}
	rows := sqlmock.NewRows([]string{"frame", "count"}).AddRow(1, 3).AddRow(2, 5)
	mock.ExpectQuery("SELECT frame, COUNT").WillReturnRows(rows)

	out, err := m.CountByFrame(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, out[1])
	assert.Equal(t, 5, out[2])
}

func TestDetectionModel_ListByVideo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.DetectionModel{DB: db}
	rows := sqlmock.NewRows([]string{"id", "video_id", "animal_id", "track_id", "frame", "box_x", "box_y", "box_w", "box_h", "confidence", "metadata_json", "timestamp"}).
		AddRow(int64(1), int64(1), sql.NullInt64{Int64: 9, Valid: true}, 2, 10, 1.0, 2.0, 3.0, 4.0, 0.9, nil, time.Now().UTC())

	mock.ExpectQuery("SELECT (.+) FROM detections WHERE video_id").WithArgs(int64(1)).WillReturnRows(rows)

	out, err := m.ListByVideo(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.True(t, out[0].AnimalID.Valid)
}
