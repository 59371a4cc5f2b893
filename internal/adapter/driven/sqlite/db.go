// Package sqlite implements the local persistence ports on SQLite: the PIN
// gate state, pending writes, encrypted credentials and an offline
// DocumentStore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Connection pool sizes. SQLite allows one writer at a time, so the writer
// pool is pinned to one connection to avoid "database is locked" errors.
const (
	maxWriterConns = 1
	maxReaderConns = 4
)

// filePragmas apply to on-disk databases. In-memory databases skip WAL.
var filePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"cache_size(-64000)",
}

// DB pairs a single-connection writer pool with a small reader pool over the
// same database file.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// NewDB opens dbPath in WAL mode with separate writer and reader pools.
func NewDB(ctx context.Context, dbPath string) (*DB, error) {
	return openDB(ctx, dbPath, dsn(dbPath, nil, filePragmas))
}

// openDB opens and pings both pools for dataSource.
func openDB(ctx context.Context, path, dataSource string) (*DB, error) {
	writer, err := openPool(ctx, dataSource, maxWriterConns)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	reader, err := openPool(ctx, dataSource, maxReaderConns)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	return &DB{Writer: writer, Reader: reader, path: path}, nil
}

func openPool(ctx context.Context, dataSource string, maxConns int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxConns)
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// uriEscaper encodes the characters that would end the path part of a SQLite
// URI filename. SQLite decodes %HH escapes when opening.
var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dsn builds a modernc.org/sqlite URI filename.
func dsn(name string, params url.Values, pragmas []string) string {
	q := make([]string, 0, len(params)+len(pragmas))
	for k, vs := range params {
		for _, v := range vs {
			q = append(q, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	for _, p := range pragmas {
		q = append(q, "_pragma="+p)
	}
	return "file:" + uriEscaper.Replace(name) + "?" + strings.Join(q, "&")
}

// Path returns the database file path the DB was opened with.
func (db *DB) Path() string {
	return db.path
}

// Close closes both pools and reports every failure.
func (db *DB) Close() error {
	var errs []error
	if err := db.Reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close reader: %w", err))
	}
	if err := db.Writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close writer: %w", err))
	}
	return errors.Join(errs...)
}

// timeLayouts covers CURRENT_TIMESTAMP and the RFC 3339 strings written by
// the repos.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
