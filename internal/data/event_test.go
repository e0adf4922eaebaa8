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

func TestEventModel_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.EventModel{DB: db}
	mock.ExpectQuery("INSERT INTO events").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

	e := &data.SightingEvent{
		AnimalID:  sql.NullInt64{Int64: 1, Valid: true},
		VideoID:   sql.NullInt64{Int64: 2, Valid: true},
		Type:      data.EventIdentityMatched,
		Severity:  data.SeverityInfo,
		Title:     "matched",
		Timestamp: time.Now().UTC(),
	}
	id, err := m.Insert(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestEventModel_ListByAnimal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := data.EventModel{DB: db}
	rows := sqlmock.NewRows([]string{"id", "animal_id", "video_id", "type", "severity", "title", "description", "details", "metadata_json", "timestamp"}).
		AddRow(int64(1), sql.NullInt64{Int64: 1, Valid: true}, sql.NullInt64{Int64: 2, Valid: true}, data.EventHealthFlag, data.SeverityWarning, "t", "d", nil, nil, time.Now().UTC())

	mock.ExpectQuery("SELECT (.+) FROM events WHERE animal_id").WithArgs(int64(1), 100).WillReturnRows(rows)

	out, err := m.ListByAnimal(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, data.EventHealthFlag, out[0].Type)
}
