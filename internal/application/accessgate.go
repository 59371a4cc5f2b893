package application

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ericfisherdev/notevault/internal/domain/model"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// State store keys used by the PIN gate and the recovery flow.
const (
	keyPasswordHash = "password_hash"
	keyAttempts     = "attempts"
	keyLockoutUntil = "lockout_until"
	keyResetCode    = "reset_code"
	keyResetExpiry  = "reset_expiry"
)

// credentialContext is appended to the PIN before hashing. It is fixed so
// digests written by earlier installs keep verifying.
const credentialContext = "notepad_salt_2024"

// AccessGate owns the stored PIN digest and the failed-attempt state machine.
// Lockout expiry is evaluated lazily: every query compares the stored
// deadline against the clock and clears it once passed. No timers run.
type AccessGate struct {
	state  driven.StateStore
	policy model.SecurityPolicy
	now    func() time.Time
}

// NewAccessGate creates an AccessGate over the given state store. now may be
// nil, in which case time.Now is used.
func NewAccessGate(state driven.StateStore, policy model.SecurityPolicy, now func() time.Time) *AccessGate {
	if now == nil {
		now = time.Now
	}
	return &AccessGate{state: state, policy: policy, now: now}
}

// Policy returns the security policy the gate enforces.
func (g *AccessGate) Policy() model.SecurityPolicy {
	return g.policy
}

// HasCredential reports whether a PIN has been configured.
func (g *AccessGate) HasCredential(ctx context.Context) (bool, error) {
	_, ok, err := g.state.Get(ctx, keyPasswordHash)
	if err != nil {
		return false, fmt.Errorf("get credential: %w", err)
	}
	return ok, nil
}

// SetCredential validates password and replaces the stored digest. A
// successful change also clears the attempt state.
func (g *AccessGate) SetCredential(ctx context.Context, password string) error {
	if err := g.ValidatePassword(password); err != nil {
		return err
	}

	if err := g.state.Set(ctx, keyPasswordHash, digest(password)); err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	return g.ClearAttempts(ctx)
}

// SetInitialCredential installs the first PIN. It returns
// ErrCredentialExists if one is already configured; changing an existing PIN
// goes through the recovery flow.
func (g *AccessGate) SetInitialCredential(ctx context.Context, password string) error {
	if err := g.ValidatePassword(password); err != nil {
		return err
	}
	has, err := g.HasCredential(ctx)
	if err != nil {
		return err
	}
	if has {
		return ErrCredentialExists
	}
	return g.SetCredential(ctx, password)
}

// ValidatePassword checks that password is exactly PasswordLength ASCII digits.
func (g *AccessGate) ValidatePassword(password string) error {
	if len(password) != g.policy.PasswordLength {
		return ErrInvalidPasswordFormat
	}
	for i := 0; i < len(password); i++ {
		if password[i] < '0' || password[i] > '9' {
			return ErrInvalidPasswordFormat
		}
	}
	return nil
}

// Verify reports whether password matches the stored digest. It returns
// false without error when no PIN is configured. Verify does not touch the
// attempt state; callers record the outcome.
func (g *AccessGate) Verify(ctx context.Context, password string) (bool, error) {
	stored, ok, err := g.state.Get(ctx, keyPasswordHash)
	if err != nil {
		return false, fmt.Errorf("get credential: %w", err)
	}
	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(digest(password))) == 1, nil
}

// RecordFailure counts a failed attempt and returns how many remain. When
// the count reaches MaxAttempts the lockout deadline is set. While a lockout
// is active further failures change nothing and report zero remaining.
func (g *AccessGate) RecordFailure(ctx context.Context) (int, error) {
	now := g.now()
	st, err := g.currentAttempts(ctx, now)
	if err != nil {
		return 0, err
	}
	if st.LockedAt(now) {
		return 0, nil
	}

	st.FailureCount++
	values := map[string]string{keyAttempts: strconv.Itoa(st.FailureCount)}
	if st.FailureCount >= g.policy.MaxAttempts {
		until := now.Add(g.policy.LockoutDuration)
		values[keyLockoutUntil] = strconv.FormatInt(until.UnixMilli(), 10)
	}
	if err := g.state.SetMany(ctx, values); err != nil {
		return 0, fmt.Errorf("record failed attempt: %w", err)
	}

	return max(0, g.policy.MaxAttempts-st.FailureCount), nil
}

// RemainingAttempts returns how many failures are left before lockout.
func (g *AccessGate) RemainingAttempts(ctx context.Context) (int, error) {
	st, err := g.currentAttempts(ctx, g.now())
	if err != nil {
		return 0, err
	}
	return max(0, g.policy.MaxAttempts-st.FailureCount), nil
}

// IsLockedOut reports whether the lockout deadline is in the future. A
// deadline that has passed is cleared together with the failure count.
func (g *AccessGate) IsLockedOut(ctx context.Context) (bool, error) {
	now := g.now()
	st, err := g.currentAttempts(ctx, now)
	if err != nil {
		return false, err
	}
	return st.LockedAt(now), nil
}

// LockoutRemaining returns the time left in the current lockout rounded up
// to whole seconds, or zero when not locked out.
func (g *AccessGate) LockoutRemaining(ctx context.Context) (time.Duration, error) {
	now := g.now()
	st, err := g.currentAttempts(ctx, now)
	if err != nil {
		return 0, err
	}
	if !st.LockedAt(now) {
		return 0, nil
	}
	left := st.LockoutUntil.Sub(now)
	return (left + time.Second - 1) / time.Second * time.Second, nil
}

// ClearAttempts resets the failure count and any lockout deadline.
func (g *AccessGate) ClearAttempts(ctx context.Context) error {
	if err := g.state.Delete(ctx, keyAttempts, keyLockoutUntil); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}

// currentAttempts loads the attempt state and applies lazy expiry.
func (g *AccessGate) currentAttempts(ctx context.Context, now time.Time) (model.AttemptState, error) {
	st, err := g.loadAttempts(ctx)
	if err != nil {
		return model.AttemptState{}, err
	}
	if st.LockoutUntil != nil && !now.Before(*st.LockoutUntil) {
		if err := g.ClearAttempts(ctx); err != nil {
			return model.AttemptState{}, err
		}
		return model.AttemptState{}, nil
	}
	return st, nil
}

func (g *AccessGate) loadAttempts(ctx context.Context) (model.AttemptState, error) {
	var st model.AttemptState

	raw, ok, err := g.state.Get(ctx, keyAttempts)
	if err != nil {
		return st, fmt.Errorf("get attempts: %w", err)
	}
	if ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return st, fmt.Errorf("parse attempts %q: %w", raw, err)
		}
		st.FailureCount = n
	}

	raw, ok, err = g.state.Get(ctx, keyLockoutUntil)
	if err != nil {
		return st, fmt.Errorf("get lockout deadline: %w", err)
	}
	if ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return st, fmt.Errorf("parse lockout deadline %q: %w", raw, err)
		}
		until := time.UnixMilli(ms)
		st.LockoutUntil = &until
	}

	return st, nil
}

func digest(password string) string {
	sum := sha256.Sum256([]byte(password + credentialContext))
	return hex.EncodeToString(sum[:])
}
