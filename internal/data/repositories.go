// Package data is the persistence layer: typed repository structs over
// Postgres, one per entity in the schema described in spec §6. Every
// repository accepts a DBTX so it works identically against *sql.DB or a
// *sql.Tx, following the teacher's single shared-connection-interface idiom.
package data

import (
	"context"
	"database/sql"
	"errors"
)

var ErrRecordNotFound = errors.New("record not found")

// DBTX is a common interface for *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
