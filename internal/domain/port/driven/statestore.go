package driven

import (
	"context"

	"github.com/ericfisherdev/notevault/internal/domain/model"
)

// StateStore defines the driven port for the small persistent key/value
// state of the PIN gate: the credential digest, the attempt counter, the
// lockout deadline and the reset challenge.
type StateStore interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores or replaces the value under key.
	Set(ctx context.Context, key, value string) error

	// SetMany stores all pairs atomically.
	SetMany(ctx context.Context, values map[string]string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// PendingWriteStore defines the driven port for the local record of a remote
// write that could not be confirmed. At most one record is kept per document
// path.
type PendingWriteStore interface {
	// Save stores or replaces the pending write for pw.Path.
	Save(ctx context.Context, pw model.PendingWrite) error

	// Get returns the pending write for path, or (nil, nil) if there is none.
	Get(ctx context.Context, path string) (*model.PendingWrite, error)

	// Delete removes the pending write for path. Missing records are ignored.
	Delete(ctx context.Context, path string) error
}
