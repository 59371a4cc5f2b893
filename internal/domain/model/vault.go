package model

import "time"

// SecurityPolicy holds the tunable limits of the PIN gate and editor.
type SecurityPolicy struct {
	MaxAttempts      int
	LockoutDuration  time.Duration
	PasswordLength   int
	KDFIterations    int
	AutosaveDebounce time.Duration
}

// DefaultSecurityPolicy returns the policy used when nothing is configured.
func DefaultSecurityPolicy() SecurityPolicy {
	return SecurityPolicy{
		MaxAttempts:      3,
		LockoutDuration:  time.Hour,
		PasswordLength:   6,
		KDFIterations:    100000,
		AutosaveDebounce: 2 * time.Second,
	}
}

// AttemptState tracks consecutive failed unlock attempts. LockoutUntil is
// non-nil only once FailureCount has reached the policy's MaxAttempts.
type AttemptState struct {
	FailureCount int
	LockoutUntil *time.Time
}

// LockedAt reports whether a lockout deadline is set and still in the future
// relative to now.
func (s AttemptState) LockedAt(now time.Time) bool {
	return s.LockoutUntil != nil && now.Before(*s.LockoutUntil)
}

// ResetChallenge is a one-time code delivered out of band to authorize a PIN
// reset.
type ResetChallenge struct {
	Code      string
	ExpiresAt time.Time
}

// Expired reports whether the challenge can no longer be used at now.
func (c ResetChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
