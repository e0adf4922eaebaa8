package data

import (
	"context"
	"database/sql"
	"time"
)

type AnimalStatus string

const (
	AnimalActive     AnimalStatus = "Active"
	AnimalSick       AnimalStatus = "Sick"
	AnimalQuarantine AnimalStatus = "Quarantine"
	AnimalSold       AnimalStatus = "Sold"
	AnimalDeceased   AnimalStatus = "Deceased"
)

// Animal is a stable biometric identity. Created only by the Re-ID engine
// on a "new" decision; never deleted by the core. Status transitions are
// external (not performed by the pipeline).
type Animal struct {
	ID        int64
	Tag       string
	Status    AnimalStatus
	FirstSeen time.Time
	LastSeen  time.Time
}

type AnimalModel struct {
	DB DBTX
}

// Create inserts a new animal with a generated external tag and returns its
// assigned id.
func (m AnimalModel) Create(ctx context.Context, tag string, seenAt time.Time) (*Animal, error) {
	a := &Animal{Tag: tag, Status: AnimalActive, FirstSeen: seenAt, LastSeen: seenAt}
	query := `
		INSERT INTO animals (tag, status, first_seen, last_seen)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := m.DB.QueryRowContext(ctx, query, tag, a.Status, a.FirstSeen, a.LastSeen).Scan(&a.ID); err != nil {
		return nil, err
	}
	return a, nil
}

func (m AnimalModel) Get(ctx context.Context, id int64) (*Animal, error) {
	query := `SELECT id, tag, status, first_seen, last_seen FROM animals WHERE id = $1`
	a := &Animal{}
	err := m.DB.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Tag, &a.Status, &a.FirstSeen, &a.LastSeen)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// TouchLastSeen advances LastSeen for an animal. Never moves it backwards.
func (m AnimalModel) TouchLastSeen(ctx context.Context, id int64, seenAt time.Time) error {
	query := `UPDATE animals SET last_seen = $2 WHERE id = $1 AND last_seen < $2`
	_, err := m.DB.ExecContext(ctx, query, id, seenAt)
	return err
}

func (m AnimalModel) Count(ctx context.Context) (int, error) {
	var n int
	err := m.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM animals`).Scan(&n)
	return n, err
}
