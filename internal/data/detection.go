package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// BBox is an axis-aligned pixel-space bounding box, top-left origin.
type BBox struct {
	X, Y, W, H float64
}

// Detection is one tracked bounding box observed in one frame of one video,
// optionally resolved to a persistent Animal identity.
type Detection struct {
	ID         int64
	VideoID    int64
	AnimalID   sql.NullInt64
	TrackID    int
	Frame      int
	Box        BBox
	Confidence float64
	Metadata   json.RawMessage
	Timestamp  time.Time
}

type DetectionModel struct {
	DB DBTX
}

func (m DetectionModel) Insert(ctx context.Context, d *Detection) (int64, error) {
	meta := d.Metadata
	if meta == nil {
		meta = json.RawMessage("{}")
	}
	query := `
		INSERT INTO detections (video_id, animal_id, track_id, frame, box_x, box_y, box_w, box_h, confidence, metadata_json, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	var id int64
	err := m.DB.QueryRowContext(ctx, query,
		d.VideoID, d.AnimalID, d.TrackID, d.Frame,
		d.Box.X, d.Box.Y, d.Box.W, d.Box.H, d.Confidence, []byte(meta), d.Timestamp,
	).Scan(&id)
	return id, err
}

// LinkAnimal resolves a detection's previously-nullable animal_id once the
// Re-ID engine reaches a decision for its track.
func (m DetectionModel) LinkAnimal(ctx context.Context, videoID int64, trackID int, animalID int64) error {
	query := `UPDATE detections SET animal_id = $3 WHERE video_id = $1 AND track_id = $2`
	_, err := m.DB.ExecContext(ctx, query, videoID, trackID, animalID)
	return err
}

func (m DetectionModel) ListByVideo(ctx context.Context, videoID int64) ([]*Detection, error) {
	query := `
		SELECT id, video_id, animal_id, track_id, frame, box_x, box_y, box_w, box_h, confidence, metadata_json, timestamp
		FROM detections WHERE video_id = $1 ORDER BY frame ASC`
	rows, err := m.DB.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Detection
	for rows.Next() {
		d := &Detection{}
		var meta []byte
		if err := rows.Scan(
			&d.ID, &d.VideoID, &d.AnimalID, &d.TrackID, &d.Frame,
			&d.Box.X, &d.Box.Y, &d.Box.W, &d.Box.H, &d.Confidence, &meta, &d.Timestamp,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			d.Metadata = json.RawMessage(meta)
		}
		out = append(out, d)
	}
	return out, nil
}

// CountByFrame returns the number of distinct tracks observed in each frame,
// the raw input the Count Verifier's per-frame series is built from.
func (m DetectionModel) CountByFrame(ctx context.Context, videoID int64) (map[int]int, error) {
	query := `SELECT frame, COUNT(DISTINCT track_id) FROM detections WHERE video_id = $1 GROUP BY frame`
	rows, err := m.DB.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var frame, count int
		if err := rows.Scan(&frame, &count); err != nil {
			return nil, err
		}
		out[frame] = count
	}
	return out, nil
}
