package data

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorDim is the deployment-wide fixed embedding dimension (spec §4.3).
const VectorDim = 256

// EncodeVector serializes a float32 vector as little-endian bytes for the
// vector_blob column.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes a vector_blob column back into a float32 slice.
// Returns a plain error on a malformed blob (length not a multiple of 4);
// the error carries no pipeline fault code, and the pipeline fails a job
// whose biometric load errors with SYSTEM_FAULT.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("corrupt biometric blob: length %d not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	r := bytes.NewReader(blob)
	for i := range v {
		var bits uint32
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}
		v[i] = math.Float32frombits(bits)
	}
	return v, nil
}

// BiometricRecord holds exactly one normalized embedding per Animal.
type BiometricRecord struct {
	AnimalID     int64
	Vector       []float32
	LastUpdated  time.Time
	ModelVersion string
}

type BiometricModel struct {
	DB DBTX
}

// Upsert writes through the single biometric row for an animal. Callers
// must have already L2-normalized Vector (or it be exactly zero).
func (m BiometricModel) Upsert(ctx context.Context, r *BiometricRecord) error {
	if len(r.Vector) != VectorDim {
		return fmt.Errorf("biometric vector dimension %d != %d", len(r.Vector), VectorDim)
	}
	query := `
		INSERT INTO biometrics (animal_id, vector_blob, last_updated, model_version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (animal_id) DO UPDATE SET
			vector_blob = EXCLUDED.vector_blob,
			last_updated = EXCLUDED.last_updated,
			model_version = EXCLUDED.model_version`
	_, err := m.DB.ExecContext(ctx, query, r.AnimalID, EncodeVector(r.Vector), r.LastUpdated, r.ModelVersion)
	return err
}

func (m BiometricModel) Get(ctx context.Context, animalID int64) (*BiometricRecord, error) {
	query := `SELECT animal_id, vector_blob, last_updated, model_version FROM biometrics WHERE animal_id = $1`
	var blob []byte
	r := &BiometricRecord{}
	err := m.DB.QueryRowContext(ctx, query, animalID).Scan(&r.AnimalID, &blob, &r.LastUpdated, &r.ModelVersion)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	v, err := DecodeVector(blob)
	if err != nil {
		return nil, err
	}
	r.Vector = v
	return r, nil
}

// LoadAll loads every biometric record; the Re-ID engine's cache is seeded
// once at construction with this.
func (m BiometricModel) LoadAll(ctx context.Context) ([]*BiometricRecord, error) {
	query := `SELECT animal_id, vector_blob, last_updated, model_version FROM biometrics`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BiometricRecord
	for rows.Next() {
		var blob []byte
		r := &BiometricRecord{}
		if err := rows.Scan(&r.AnimalID, &blob, &r.LastUpdated, &r.ModelVersion); err != nil {
			return nil, err
		}
		v, err := DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		r.Vector = v
		out = append(out, r)
	}
	return out, nil
}
