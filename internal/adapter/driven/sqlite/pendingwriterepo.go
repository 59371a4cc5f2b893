package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/notevault/internal/domain/model"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PendingWriteStore = (*PendingWriteRepo)(nil)

// PendingWriteRepo is the SQLite implementation of the PendingWriteStore port.
type PendingWriteRepo struct {
	db *DB
}

// NewPendingWriteRepo creates a new PendingWriteRepo backed by the given DB.
func NewPendingWriteRepo(db *DB) *PendingWriteRepo {
	return &PendingWriteRepo{db: db}
}

// Save stores or replaces the pending write for pw.Path.
func (r *PendingWriteRepo) Save(ctx context.Context, pw model.PendingWrite) error {
	const query = `
		INSERT INTO pending_writes (path, payload, base_version, reason, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			payload = excluded.payload,
			base_version = excluded.base_version,
			reason = excluded.reason,
			saved_at = excluded.saved_at`

	savedAt := pw.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		pw.Path, pw.Payload, pw.BaseVersion, pw.Reason, savedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save pending write %s: %w", pw.Path, err)
	}
	return nil
}

// Get returns the pending write for path, or (nil, nil) if there is none.
func (r *PendingWriteRepo) Get(ctx context.Context, path string) (*model.PendingWrite, error) {
	const query = `SELECT path, payload, base_version, reason, saved_at FROM pending_writes WHERE path = ?`

	var pw model.PendingWrite
	var savedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, path).Scan(&pw.Path, &pw.Payload, &pw.BaseVersion, &pw.Reason, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending write %s: %w", path, err)
	}

	pw.SavedAt, err = parseTime(savedAt)
	if err != nil {
		return nil, fmt.Errorf("parse saved_at for pending write %s: %w", path, err)
	}
	return &pw, nil
}

// Delete removes the pending write for path.
func (r *PendingWriteRepo) Delete(ctx context.Context, path string) error {
	const query = `DELETE FROM pending_writes WHERE path = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, path); err != nil {
		return fmt.Errorf("delete pending write %s: %w", path, err)
	}
	return nil
}
