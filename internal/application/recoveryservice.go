package application

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/notevault/internal/domain/model"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

const (
	// ResetCodeTTL is how long a generated reset code stays valid.
	ResetCodeTTL = 15 * time.Minute

	resetCodeLength   = 10
	resetCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// RecoveryService lets the owner replace a forgotten PIN by proving access
// to an out-of-band channel. A one-time code is stored locally and delivered
// through the Notifier; presenting it before expiry installs a new PIN.
type RecoveryService struct {
	gate        *AccessGate
	state       driven.StateStore
	notifier    driven.Notifier
	destination string
	now         func() time.Time
}

// NewRecoveryService creates a RecoveryService. destination is passed to
// the notifier unchanged (an email address for EmailJS). now may be nil.
func NewRecoveryService(gate *AccessGate, state driven.StateStore, notifier driven.Notifier, destination string, now func() time.Time) *RecoveryService {
	if now == nil {
		now = time.Now
	}
	return &RecoveryService{
		gate:        gate,
		state:       state,
		notifier:    notifier,
		destination: destination,
		now:         now,
	}
}

// GenerateChallenge creates a new reset code, replacing any earlier one, and
// hands it to the notifier. The code is returned for callers that deliver it
// themselves; HTTP handlers must not echo it. If delivery fails the stored
// challenge is kept and the error is returned.
func (s *RecoveryService) GenerateChallenge(ctx context.Context) (string, error) {
	code, err := newResetCode()
	if err != nil {
		return "", err
	}

	expiresAt := s.now().Add(ResetCodeTTL)
	if err := s.state.SetMany(ctx, map[string]string{
		keyResetCode:   code,
		keyResetExpiry: strconv.FormatInt(expiresAt.UnixMilli(), 10),
	}); err != nil {
		return "", fmt.Errorf("store reset challenge: %w", err)
	}

	if err := s.notifier.Send(ctx, s.destination, code); err != nil {
		return "", fmt.Errorf("deliver reset code: %w", err)
	}

	slog.Info("reset code issued", "expires_at", expiresAt.UTC().Format(time.RFC3339))
	return code, nil
}

// Consume checks code against the live challenge and, when it matches,
// installs newPassword and clears both the challenge and the attempt state.
// The comparison ignores case. An expired challenge is removed.
func (s *RecoveryService) Consume(ctx context.Context, code, newPassword string) error {
	if err := s.gate.ValidatePassword(newPassword); err != nil {
		return err
	}

	challenge, err := s.loadChallenge(ctx)
	if err != nil {
		return err
	}
	if challenge == nil {
		return ErrNoResetChallenge
	}
	if challenge.Expired(s.now()) {
		if err := s.ClearChallenge(ctx); err != nil {
			return err
		}
		return ErrResetCodeExpired
	}

	given := strings.ToUpper(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(given), []byte(challenge.Code)) != 1 {
		return ErrInvalidResetCode
	}

	if err := s.gate.SetCredential(ctx, newPassword); err != nil {
		return err
	}
	if err := s.ClearChallenge(ctx); err != nil {
		return err
	}

	slog.Info("PIN reset via recovery code")
	return nil
}

// ClearChallenge removes any stored reset challenge.
func (s *RecoveryService) ClearChallenge(ctx context.Context) error {
	if err := s.state.Delete(ctx, keyResetCode, keyResetExpiry); err != nil {
		return fmt.Errorf("clear reset challenge: %w", err)
	}
	return nil
}

// loadChallenge returns the stored challenge, or nil if either half is missing.
func (s *RecoveryService) loadChallenge(ctx context.Context) (*model.ResetChallenge, error) {
	code, ok, err := s.state.Get(ctx, keyResetCode)
	if err != nil {
		return nil, fmt.Errorf("get reset code: %w", err)
	}
	if !ok {
		return nil, nil
	}

	raw, ok, err := s.state.Get(ctx, keyResetExpiry)
	if err != nil {
		return nil, fmt.Errorf("get reset expiry: %w", err)
	}
	if !ok {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset expiry %q: %w", raw, err)
	}

	return &model.ResetChallenge{Code: code, ExpiresAt: time.UnixMilli(ms)}, nil
}

// newResetCode draws resetCodeLength characters uniformly from
// resetCodeAlphabet using crypto/rand.
func newResetCode() (string, error) {
	// 252 is the largest multiple of 36 below 256; higher bytes are rejected
	// to keep the distribution uniform.
	const limit = 256 - 256%len(resetCodeAlphabet)

	out := make([]byte, 0, resetCodeLength)
	buf := make([]byte, resetCodeLength*2)
	for len(out) < resetCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate reset code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, resetCodeAlphabet[int(b)%len(resetCodeAlphabet)])
			if len(out) == resetCodeLength {
				break
			}
		}
	}
	return string(out), nil
}
