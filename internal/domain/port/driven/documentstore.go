package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/notevault/internal/domain/model"
)

// ErrVersionConflict is returned by DocumentStore writes when the stored
// document no longer carries the version the caller based the write on, or
// when a create finds a document already present.
var ErrVersionConflict = errors.New("remote document version conflict")

// ErrDocumentNotFound is returned by DocumentStore.Delete when there is no
// document at the path.
var ErrDocumentNotFound = errors.New("remote document not found")

// TransportError wraps any failure to complete a DocumentStore round trip
// that is not a version conflict or a missing document: network errors,
// authentication failures, rate limits, malformed responses.
type TransportError struct {
	Op         string
	Path       string
	StatusCode int // 0 when no HTTP response was received.
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.Path, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DocumentStore defines the driven port for a remote store that only offers
// whole-document read, replace and delete guarded by a version token. Every
// call is a single round trip and is never partially applied.
type DocumentStore interface {
	// Read returns the document at path. Returns (nil, nil) when no document
	// exists, which is distinct from an empty document.
	Read(ctx context.Context, path string) (*model.RemoteDocument, error)

	// Replace writes content at path and returns the new version. A non-empty
	// expectedVersion must match the stored version or ErrVersionConflict is
	// returned. An empty expectedVersion creates the document and fails with
	// ErrVersionConflict if one already exists.
	Replace(ctx context.Context, path string, content []byte, message, expectedVersion string) (string, error)

	// Delete removes the document at path if its version still equals
	// expectedVersion. Returns ErrDocumentNotFound when nothing is stored.
	Delete(ctx context.Context, path, message, expectedVersion string) error
}
