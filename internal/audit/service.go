package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Write appends an entry to the audit log. On DB failure it fails over to
// the local spool rather than losing the decision.
func (s *Service) Write(ctx context.Context, e Entry) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit (event_id, event_type, entity_type, entity_id, action, details, metadata_json, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.DB.ExecContext(ctx, query,
		e.EventID, e.EventType, e.EntityType, e.EntityID, e.Action, e.Details, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		log.Printf("[Audit] DB write failed: %v. Spooling event %s", err, e.EventID)
		if spoolErr := SpoolEntry(e); spoolErr != nil {
			log.Printf("[Audit] CRITICAL: spool also failed for event %s: %v", e.EventID, spoolErr)
			return fmt.Errorf("audit critical failure: %w", spoolErr)
		}
		return nil // swallowed: spooled for replay
	}
	return nil
}

// Append-only enforcement: no Update or Delete method is exposed.

// QueryEvents implements filters and cursor pagination over the audit log.
func (s *Service) QueryEvents(ctx context.Context, f Filter) ([]Entry, string, error) {
	q := `SELECT id, event_id, event_type, entity_type, entity_id, action, details, metadata_json, timestamp
	      FROM audit WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.EntityType != "" {
		q += fmt.Sprintf(" AND entity_type = $%d", idx)
		args = append(args, f.EntityType)
		idx++
	}
	if f.EntityID != "" {
		q += fmt.Sprintf(" AND entity_id = $%d", idx)
		args = append(args, f.EntityID)
		idx++
	}
	if f.Action != "" {
		q += fmt.Sprintf(" AND action = $%d", idx)
		args = append(args, f.Action)
		idx++
	}
	if f.Cursor != "" {
		cursorID, err := strconv.ParseInt(f.Cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", f.Cursor, err)
		}
		q += fmt.Sprintf(" AND id < $%d", idx)
		args = append(args, cursorID)
		idx++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += fmt.Sprintf(" ORDER BY timestamp DESC, id DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var entries []Entry
	var lastID string
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.EntityType, &e.EntityID, &e.Action, &e.Details, &meta, &e.CreatedAt); err != nil {
			return nil, "", err
		}
		if len(meta) > 0 {
			e.Metadata = json.RawMessage(meta)
		}
		entries = append(entries, e)
		lastID = strconv.FormatInt(e.ID, 10)
	}
	return entries, lastID, nil
}
