package audit

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action is the vocabulary of audited orchestrator decisions.
type Action string

const (
	ActionJobStarted      Action = "job.started"
	ActionJobCompleted    Action = "job.completed"
	ActionJobFailed       Action = "job.failed"
	ActionIdentityNew     Action = "identity.new"
	ActionIdentityMatched Action = "identity.matched"
)

// EntityType names what an audit entry's EntityID refers to.
type EntityType string

const (
	EntityVideo  EntityType = "video"
	EntityAnimal EntityType = "animal"
)

// Entry is a single append-only audit log row.
type Entry struct {
	ID         int64           `json:"id"`
	EventID    uuid.UUID       `json:"event_id"` // idempotency key
	EventType  string          `json:"event_type"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     Action          `json:"action"`
	Details    string          `json:"details,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Filter restricts QueryEvents.
type Filter struct {
	EntityType EntityType
	EntityID   string
	Action     Action
	Limit      int
	Cursor     string
}

// Service is the audit log writer/reader. No Update or Delete methods are
// exposed: append-only enforcement.
type Service struct {
	DB *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}
