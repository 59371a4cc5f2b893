package application

import (
	"context"
	"time"
)

// VaultStatus is a point-in-time view of the gate, the session and the store.
type VaultStatus struct {
	Configured        bool
	Unlocked          bool
	LockedOut         bool
	LockoutRemaining  time.Duration
	RemainingAttempts int
	PasswordLength    int
	StoreConfigured   bool
	StoreBackend      string
	HasPendingWrite   bool
	// RemoteVersion is the document version the note cache was last synced
	// with. Empty while the notes are not loaded.
	RemoteVersion string
}

// StatusService assembles VaultStatus for the API and the CLI. It depends
// only on other services and ports.
type StatusService struct {
	gate     *AccessGate
	sessions *SessionService
	stores   *StoreProvider
	notes    *NoteService
}

// NewStatusService creates a new StatusService with the required dependencies.
func NewStatusService(gate *AccessGate, sessions *SessionService, stores *StoreProvider, notes *NoteService) *StatusService {
	return &StatusService{
		gate:     gate,
		sessions: sessions,
		stores:   stores,
		notes:    notes,
	}
}

// Status reads the current state. Querying the gate applies lazy lockout
// expiry like any other gate call.
func (s *StatusService) Status(ctx context.Context) (*VaultStatus, error) {
	configured, err := s.gate.HasCredential(ctx)
	if err != nil {
		return nil, err
	}
	lockedOut, err := s.gate.IsLockedOut(ctx)
	if err != nil {
		return nil, err
	}
	remaining, err := s.gate.LockoutRemaining(ctx)
	if err != nil {
		return nil, err
	}
	attempts, err := s.gate.RemainingAttempts(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.notes.Pending(ctx)
	if err != nil {
		return nil, err
	}

	return &VaultStatus{
		Configured:        configured,
		Unlocked:          s.sessions.IsUnlocked(),
		LockedOut:         lockedOut,
		LockoutRemaining:  remaining,
		RemainingAttempts: attempts,
		PasswordLength:    s.gate.Policy().PasswordLength,
		StoreConfigured:   s.stores.HasStore(),
		StoreBackend:      s.stores.Backend(),
		HasPendingWrite:   pending != nil,
		RemoteVersion:     s.notes.Version(),
	}, nil
}
