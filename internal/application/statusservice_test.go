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

func TestStatusService_Status(t *testing.T) {
	clock := newFakeClock()
	gate := application.NewAccessGate(newMemoryStateStore(), model.DefaultSecurityPolicy(), clock.Now)
	sessions := application.NewSessionService(gate, clock.Now)
	stores := application.NewStoreProvider(newMemoryStore(), "sqlite")
	notes := application.NewNoteService(stores, nil, newMemoryPendingStore(), application.NoteServiceConfig{})
	svc := application.NewStatusService(gate, sessions, stores, notes)
	ctx := context.Background()

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Configured)
	assert.False(t, st.Unlocked)
	assert.Equal(t, 3, st.RemainingAttempts)
	assert.Equal(t, 6, st.PasswordLength)
	assert.True(t, st.StoreConfigured)
	assert.Equal(t, "sqlite", st.StoreBackend)
	assert.False(t, st.HasPendingWrite)
	assert.Empty(t, st.RemoteVersion, "nothing loaded yet")

	require.NoError(t, gate.SetCredential(ctx, "123456"))
	for range 3 {
		_, _ = sessions.Unlock(ctx, "000000")
	}
	clock.Advance(30 * time.Minute)

	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.True(t, st.LockedOut)
	assert.Equal(t, 30*time.Minute, st.LockoutRemaining)
	assert.Zero(t, st.RemainingAttempts)
}

func TestStatusService_RemoteVersion(t *testing.T) {
	f := newNoteFixture(t, false)
	gate := application.NewAccessGate(newMemoryStateStore(), model.DefaultSecurityPolicy(), nil)
	svc := application.NewStatusService(gate, application.NewSessionService(gate, nil), application.NewStoreProvider(f.store, "memory"), f.svc)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.sess, "A", "one")
	require.NoError(t, err)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", st.RemoteVersion)

	f.svc.Forget()
	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.RemoteVersion)
}
