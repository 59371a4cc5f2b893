package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notevault/internal/application"
	"github.com/ericfisherdev/notevault/internal/domain/model"
)

func newTestSessions(t *testing.T) (*application.SessionService, *application.AccessGate, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	gate := application.NewAccessGate(newMemoryStateStore(), model.DefaultSecurityPolicy(), clock.Now)
	return application.NewSessionService(gate, clock.Now), gate, clock
}

func TestSessionService_UnlockWithoutCredential(t *testing.T) {
	sessions, _, _ := newTestSessions(t)

	_, err := sessions.Unlock(context.Background(), "123456")
	assert.ErrorIs(t, err, application.ErrNoCredential)
}

func TestSessionService_UnlockSuccess(t *testing.T) {
	sessions, gate, _ := newTestSessions(t)
	ctx := context.Background()
	require.NoError(t, gate.SetCredential(ctx, "123456"))
	_, err := gate.RecordFailure(ctx)
	require.NoError(t, err)

	sess, err := sessions.Unlock(ctx, "123456")
	require.NoError(t, err)
	assert.Len(t, sess.Token, 64)
	assert.Equal(t, "123456", sess.Password())
	assert.True(t, sessions.IsUnlocked())

	remaining, err := gate.RemainingAttempts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining, "success clears failures")

	got, err := sessions.Authorize(sess.Token)
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestSessionService_WrongPinThenLockout(t *testing.T) {
	sessions, gate, clock := newTestSessions(t)
	ctx := context.Background()
	require.NoError(t, gate.SetCredential(ctx, "123456"))

	for want := 2; want >= 0; want-- {
		_, err := sessions.Unlock(ctx, "000000")
		var af *application.AuthFailure
		require.ErrorAs(t, err, &af)
		assert.Equal(t, want, af.Remaining)
	}

	_, err := sessions.Unlock(ctx, "123456")
	var lo *application.LockedOutError
	require.ErrorAs(t, err, &lo, "correct PIN is rejected while locked out")
	assert.Equal(t, time.Hour, lo.Remaining)

	clock.Advance(time.Hour)
	_, err = sessions.Unlock(ctx, "123456")
	require.NoError(t, err)
}

func TestSessionService_AuthorizeRejectsUnknownToken(t *testing.T) {
	sessions, gate, _ := newTestSessions(t)
	ctx := context.Background()
	require.NoError(t, gate.SetCredential(ctx, "123456"))

	_, err := sessions.Authorize("nope")
	assert.ErrorIs(t, err, application.ErrSessionRequired)

	_, err = sessions.Unlock(ctx, "123456")
	require.NoError(t, err)

	_, err = sessions.Authorize("nope")
	assert.ErrorIs(t, err, application.ErrSessionRequired)
	_, err = sessions.Authorize("")
	assert.ErrorIs(t, err, application.ErrSessionRequired)
}

func TestSessionService_LockRunsHooks(t *testing.T) {
	sessions, gate, _ := newTestSessions(t)
	ctx := context.Background()
	require.NoError(t, gate.SetCredential(ctx, "123456"))

	var calls []string
	sessions.OnLock(func(context.Context) { calls = append(calls, "first") })
	sessions.OnLock(func(context.Context) { calls = append(calls, "second") })

	sess, err := sessions.Unlock(ctx, "123456")
	require.NoError(t, err)
	assert.Empty(t, calls)

	require.NoError(t, sessions.Lock(ctx, sess.Token))
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.False(t, sessions.IsUnlocked())

	_, err = sessions.Authorize(sess.Token)
	assert.ErrorIs(t, err, application.ErrSessionRequired)

	assert.ErrorIs(t, sessions.Lock(ctx, sess.Token), application.ErrSessionRequired)
}

func TestSessionService_UnlockReplacesSession(t *testing.T) {
	sessions, gate, _ := newTestSessions(t)
	ctx := context.Background()
	require.NoError(t, gate.SetCredential(ctx, "123456"))

	locks := 0
	sessions.OnLock(func(context.Context) { locks++ })

	first, err := sessions.Unlock(ctx, "123456")
	require.NoError(t, err)
	second, err := sessions.Unlock(ctx, "123456")
	require.NoError(t, err)

	assert.Equal(t, 1, locks)
	assert.NotEqual(t, first.Token, second.Token)
	_, err = sessions.Authorize(first.Token)
	assert.ErrorIs(t, err, application.ErrSessionRequired)
}

func TestSessionService_LockAllWithoutSessionIsNoop(t *testing.T) {
	sessions, _, _ := newTestSessions(t)

	locks := 0
	sessions.OnLock(func(context.Context) { locks++ })
	sessions.LockAll(context.Background())

	assert.Zero(t, locks)
}
