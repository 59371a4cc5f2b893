package sqlite

import (
	"context"
	"crypto/sha1" //nolint:gosec // git object ids are SHA-1; not used for security.
	"database/sql"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/ericfisherdev/notevault/internal/domain/model"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DocumentStore = (*DocumentRepo)(nil)

// DocumentRepo is an offline DocumentStore backed by the documents table.
// Versions are git blob ids of the content, so a document moved between this
// store and a GitHub repository keeps the same version token.
type DocumentRepo struct {
	db *DB
}

// NewDocumentRepo creates a new DocumentRepo backed by the given DB.
func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Read returns the document at path, or (nil, nil) when nothing is stored.
func (r *DocumentRepo) Read(ctx context.Context, path string) (*model.RemoteDocument, error) {
	const query = `SELECT content, version FROM documents WHERE path = ?`

	var doc model.RemoteDocument
	err := r.db.Reader.QueryRowContext(ctx, query, path).Scan(&doc.Content, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &driven.TransportError{Op: "read", Path: path, Err: err}
	}
	if doc.Content == nil {
		doc.Content = []byte{}
	}
	return &doc, nil
}

// Replace writes content at path guarded by expectedVersion.
func (r *DocumentRepo) Replace(ctx context.Context, path string, content []byte, _ string, expectedVersion string) (string, error) {
	if content == nil {
		content = []byte{}
	}
	version := BlobVersion(content)

	var (
		res sql.Result
		err error
	)
	if expectedVersion == "" {
		const query = `
			INSERT INTO documents (path, content, version, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(path) DO NOTHING`
		res, err = r.db.Writer.ExecContext(ctx, query, path, content, version)
	} else {
		const query = `
			UPDATE documents SET content = ?, version = ?, updated_at = CURRENT_TIMESTAMP
			WHERE path = ? AND version = ?`
		res, err = r.db.Writer.ExecContext(ctx, query, content, version, path, expectedVersion)
	}
	if err != nil {
		return "", &driven.TransportError{Op: "replace", Path: path, Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", &driven.TransportError{Op: "replace", Path: path, Err: err}
	}
	if n == 0 {
		return "", driven.ErrVersionConflict
	}
	return version, nil
}

// Delete removes the document at path if it still carries expectedVersion.
func (r *DocumentRepo) Delete(ctx context.Context, path, _ string, expectedVersion string) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return &driven.TransportError{Op: "delete", Path: path, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE path = ?`, path).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return driven.ErrDocumentNotFound
	}
	if err != nil {
		return &driven.TransportError{Op: "delete", Path: path, Err: err}
	}
	if current != expectedVersion {
		return driven.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return &driven.TransportError{Op: "delete", Path: path, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &driven.TransportError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// BlobVersion returns the git blob object id of content.
func BlobVersion(content []byte) string {
	h := sha1.New() //nolint:gosec // see import
	h.Write([]byte("blob " + strconv.Itoa(len(content)) + "\x00"))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
