package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/buildwarden/buildwarden/internal/domain/model"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PendingActionStore = (*PendingActionRepo)(nil)

// PendingActionRepo is the SQLite implementation of the PendingActionStore
// port. Action sets are stored as a JSON payload keyed by id; the schema
// never needs to know the action shapes.
type PendingActionRepo struct {
	db *DB
}

// NewPendingActionRepo creates a PendingActionRepo backed by the given DB.
func NewPendingActionRepo(db *DB) *PendingActionRepo {
	return &PendingActionRepo{db: db}
}

// Save stores the action set, replacing any existing row with the same id.
func (r *PendingActionRepo) Save(ctx context.Context, set model.ActionSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal action set %s: %w", set.ID, err)
	}

	const query = `
		INSERT INTO pending_action_sets (id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`
	_, err = r.db.Writer.ExecContext(ctx, query, set.ID, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save action set %s: %w", set.ID, err)
	}
	return nil
}

// Load returns the action set for the id, or nil when unknown.
func (r *PendingActionRepo) Load(ctx context.Context, id string) (*model.ActionSet, error) {
	const query = `SELECT payload FROM pending_action_sets WHERE id = ?`

	var payload string
	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load action set %s: %w", id, err)
	}

	var set model.ActionSet
	if err := json.Unmarshal([]byte(payload), &set); err != nil {
		return nil, fmt.Errorf("unmarshal action set %s: %w", id, err)
	}
	return &set, nil
}

// Delete removes the action set. Deleting an unknown id is not an error.
func (r *PendingActionRepo) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM pending_action_sets WHERE id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete action set %s: %w", id, err)
	}
	return nil
}
