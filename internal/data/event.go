package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

type EventType string

const (
	EventIdentityNew      EventType = "IdentityNew"
	EventIdentityMatched  EventType = "IdentityMatched"
	EventHealthFlag       EventType = "HealthFlag"
	EventCountUncertain   EventType = "CountUncertain"
)

type EventSeverity string

const (
	SeverityInfo    EventSeverity = "Info"
	SeverityWarning EventSeverity = "Warning"
	SeverityCritical EventSeverity = "Critical"
)

// SightingEvent is a human-facing record of something notable the pipeline
// observed about an animal or a job, distinct from the append-only audit
// trail: events are domain facts, audit entries are process facts.
type SightingEvent struct {
	ID          int64
	AnimalID    sql.NullInt64
	VideoID     sql.NullInt64
	Type        EventType
	Severity    EventSeverity
	Title       string
	Description string
	Details     json.RawMessage
	Metadata    json.RawMessage
	Timestamp   time.Time
}

type EventModel struct {
	DB DBTX
}

func (m EventModel) Insert(ctx context.Context, e *SightingEvent) (int64, error) {
	details := e.Details
	if details == nil {
		details = json.RawMessage("{}")
	}
	meta := e.Metadata
	if meta == nil {
		meta = json.RawMessage("{}")
	}
	query := `
		INSERT INTO events (animal_id, video_id, type, severity, title, description, details, metadata_json, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	var id int64
	err := m.DB.QueryRowContext(ctx, query,
		e.AnimalID, e.VideoID, e.Type, e.Severity, e.Title, e.Description, []byte(details), []byte(meta), e.Timestamp,
	).Scan(&id)
	return id, err
}

func (m EventModel) ListByAnimal(ctx context.Context, animalID int64, limit int) ([]*SightingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, animal_id, video_id, type, severity, title, description, details, metadata_json, timestamp
		FROM events WHERE animal_id = $1 ORDER BY timestamp DESC LIMIT $2`
	rows, err := m.DB.QueryContext(ctx, query, animalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (m EventModel) ListByVideo(ctx context.Context, videoID int64) ([]*SightingEvent, error) {
	query := `
		SELECT id, animal_id, video_id, type, severity, title, description, details, metadata_json, timestamp
		FROM events WHERE video_id = $1 ORDER BY timestamp ASC`
	rows, err := m.DB.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*SightingEvent, error) {
	var out []*SightingEvent
	for rows.Next() {
		e := &SightingEvent{}
		var details, meta []byte
		if err := rows.Scan(
			&e.ID, &e.AnimalID, &e.VideoID, &e.Type, &e.Severity, &e.Title, &e.Description, &details, &meta, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		if len(meta) > 0 {
			e.Metadata = json.RawMessage(meta)
		}
		out = append(out, e)
	}
	return out, nil
}
