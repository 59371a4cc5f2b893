package application

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports a malformed input. Operations that return it have
// not changed any state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validation sentinels. Match with errors.Is for the specific case or
// errors.As with *ValidationError for the category.
var (
	ErrInvalidPasswordFormat = &ValidationError{Field: "password", Message: "must be a fixed-length string of digits"}
	ErrNoResetChallenge      = &ValidationError{Field: "code", Message: "no reset code has been requested"}
	ErrResetCodeExpired      = &ValidationError{Field: "code", Message: "reset code has expired"}
	ErrInvalidResetCode      = &ValidationError{Field: "code", Message: "reset code does not match"}
	ErrEmptyNoteID           = &ValidationError{Field: "id", Message: "must not be empty"}
)

// AuthFailure is returned by an unlock attempt with the wrong PIN. Remaining
// is the number of attempts left before lockout.
type AuthFailure struct {
	Remaining int
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("incorrect PIN: %d attempts remaining", e.Remaining)
}

// LockedOutError is returned while the gate is locked out.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts: locked for %s", e.Remaining)
}

var (
	// ErrNoCredential is returned when unlocking a vault that has no PIN set.
	ErrNoCredential = errors.New("no PIN has been configured")

	// ErrCredentialExists is returned by first-time setup when a PIN is already set.
	ErrCredentialExists = errors.New("a PIN is already configured")

	// ErrNoteNotFound is returned when a note ID is not in the collection.
	ErrNoteNotFound = errors.New("note not found")

	// ErrSessionRequired is returned when a session token is missing, unknown
	// or has been ended.
	ErrSessionRequired = errors.New("vault is locked")

	// ErrStoreUnavailable is returned when no DocumentStore has been configured.
	ErrStoreUnavailable = errors.New("remote store is not configured")

	// ErrNoPendingWrite is returned when retrying with nothing pending.
	ErrNoPendingWrite = errors.New("no pending write")
)
