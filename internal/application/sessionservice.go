package application

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session is an unlocked vault. It carries the verified PIN so note content
// can be encrypted and decrypted without asking again.
type Session struct {
	Token     string
	StartedAt time.Time
	password  string
}

// Password returns the PIN the session was unlocked with.
func (s *Session) Password() string {
	return s.password
}

// SessionService runs the unlock protocol against an AccessGate and keeps at
// most one unlocked session. Unlocking again replaces the previous session.
type SessionService struct {
	gate *AccessGate
	now  func() time.Time

	mu      sync.Mutex
	current *Session
	onLock  []func(ctx context.Context)
}

// NewSessionService creates a SessionService. now may be nil.
func NewSessionService(gate *AccessGate, now func() time.Time) *SessionService {
	if now == nil {
		now = time.Now
	}
	return &SessionService{gate: gate, now: now}
}

// OnLock registers fn to run whenever a session ends, either explicitly or
// because a new unlock replaced it. Hooks run in registration order.
func (s *SessionService) OnLock(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLock = append(s.onLock, fn)
}

// Unlock checks the lockout state, verifies password and opens a session.
// It returns ErrNoCredential when no PIN is configured, *LockedOutError
// while locked out and *AuthFailure for a wrong PIN.
func (s *SessionService) Unlock(ctx context.Context, password string) (*Session, error) {
	has, err := s.gate.HasCredential(ctx)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrNoCredential
	}

	locked, err := s.gate.IsLockedOut(ctx)
	if err != nil {
		return nil, err
	}
	if locked {
		remaining, err := s.gate.LockoutRemaining(ctx)
		if err != nil {
			return nil, err
		}
		return nil, &LockedOutError{Remaining: remaining}
	}

	ok, err := s.gate.Verify(ctx, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		remaining, err := s.gate.RecordFailure(ctx)
		if err != nil {
			return nil, err
		}
		slog.Warn("unlock failed", "remaining_attempts", remaining)
		return nil, &AuthFailure{Remaining: remaining}
	}

	if err := s.gate.ClearAttempts(ctx); err != nil {
		return nil, err
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	sess := &Session{Token: token, StartedAt: s.now(), password: password}

	s.mu.Lock()
	previous := s.current
	s.current = sess
	hooks := append([]func(context.Context){}, s.onLock...)
	s.mu.Unlock()

	if previous != nil {
		runHooks(ctx, hooks)
	}

	slog.Info("vault unlocked")
	return sess, nil
}

// Authorize returns the session identified by token.
func (s *SessionService) Authorize(token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || token == "" {
		return nil, ErrSessionRequired
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.current.Token)) != 1 {
		return nil, ErrSessionRequired
	}
	return s.current, nil
}

// Lock ends the session identified by token and runs the lock hooks.
func (s *SessionService) Lock(ctx context.Context, token string) error {
	if _, err := s.Authorize(token); err != nil {
		return err
	}
	s.LockAll(ctx)
	return nil
}

// LockAll ends any open session. It is used on shutdown and after a PIN reset.
func (s *SessionService) LockAll(ctx context.Context) {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	hooks := append([]func(context.Context){}, s.onLock...)
	s.mu.Unlock()

	if had {
		runHooks(ctx, hooks)
		slog.Info("vault locked")
	}
}

// IsUnlocked reports whether a session is open.
func (s *SessionService) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func runHooks(ctx context.Context, hooks []func(context.Context)) {
	for _, fn := range hooks {
		fn(ctx)
	}
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
