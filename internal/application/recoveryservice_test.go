package application_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notevault/internal/application"
	"github.com/ericfisherdev/notevault/internal/domain/model"
)

type recoveryFixture struct {
	gate     *application.AccessGate
	svc      *application.RecoveryService
	state    *memoryStateStore
	notifier *recordingNotifier
	clock    *fakeClock
}

func newRecoveryFixture(t *testing.T) *recoveryFixture {
	t.Helper()
	state := newMemoryStateStore()
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	gate := application.NewAccessGate(state, model.DefaultSecurityPolicy(), clock.Now)
	svc := application.NewRecoveryService(gate, state, notifier, "owner@example.com", clock.Now)
	return &recoveryFixture{gate: gate, svc: svc, state: state, notifier: notifier, clock: clock}
}

func TestRecoveryService_GenerateChallengeDeliversCode(t *testing.T) {
	f := newRecoveryFixture(t)

	code, err := f.svc.GenerateChallenge(context.Background())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{10}$`), code)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "owner@example.com", f.notifier.sent[0].Destination)
	assert.Equal(t, code, f.notifier.sent[0].Payload)
	assert.Equal(t, code, f.state.snapshot()["reset_code"])
}

func TestRecoveryService_NewChallengeSupersedesOld(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	first, err := f.svc.GenerateChallenge(ctx)
	require.NoError(t, err)
	second, err := f.svc.GenerateChallenge(ctx)
	require.NoError(t, err)
	if first == second {
		t.Skip("codes collided")
	}

	err = f.svc.Consume(ctx, first, "654321")
	assert.ErrorIs(t, err, application.ErrInvalidResetCode)

	require.NoError(t, f.svc.Consume(ctx, second, "654321"))
}

func TestRecoveryService_ConsumeInstallsPassword(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.gate.SetCredential(ctx, "111111"))
	for range 3 {
		_, err := f.gate.RecordFailure(ctx)
		require.NoError(t, err)
	}

	code, err := f.svc.GenerateChallenge(ctx)
	require.NoError(t, err)

	f.clock.Advance(14 * time.Minute)
	require.NoError(t, f.svc.Consume(ctx, strings.ToLower(code), "654321"))

	ok, err := f.gate.Verify(ctx, "654321")
	require.NoError(t, err)
	assert.True(t, ok)

	locked, err := f.gate.IsLockedOut(ctx)
	require.NoError(t, err)
	assert.False(t, locked, "recovery clears the lockout")

	assert.NotContains(t, f.state.snapshot(), "reset_code")
	assert.ErrorIs(t, f.svc.Consume(ctx, code, "999999"), application.ErrNoResetChallenge, "codes are single use")
}

func TestRecoveryService_ConsumeExpired(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()
	require.NoError(t, f.gate.SetCredential(ctx, "111111"))

	code, err := f.svc.GenerateChallenge(ctx)
	require.NoError(t, err)

	f.clock.Advance(application.ResetCodeTTL)
	err = f.svc.Consume(ctx, code, "654321")
	assert.ErrorIs(t, err, application.ErrResetCodeExpired)

	ok, err := f.gate.Verify(ctx, "111111")
	require.NoError(t, err)
	assert.True(t, ok, "credential unchanged")
	assert.NotContains(t, f.state.snapshot(), "reset_code", "expired challenge cleared")
}

func TestRecoveryService_ConsumeMismatch(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateChallenge(ctx)
	require.NoError(t, err)

	err = f.svc.Consume(ctx, "WRONGCODE0", "654321")
	var ve *application.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ErrorIs(t, err, application.ErrInvalidResetCode)
	assert.Contains(t, f.state.snapshot(), "reset_code", "mismatch keeps the challenge")
}

func TestRecoveryService_ConsumeWithoutChallenge(t *testing.T) {
	f := newRecoveryFixture(t)

	err := f.svc.Consume(context.Background(), "ANYTHING", "654321")
	assert.ErrorIs(t, err, application.ErrNoResetChallenge)
}

func TestRecoveryService_ConsumeRejectsBadPasswordFirst(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	code, err := f.svc.GenerateChallenge(ctx)
	require.NoError(t, err)
	before := f.state.snapshot()

	err = f.svc.Consume(ctx, code, "12")
	assert.ErrorIs(t, err, application.ErrInvalidPasswordFormat)
	assert.Equal(t, before, f.state.snapshot())
}

func TestRecoveryService_DeliveryFailure(t *testing.T) {
	f := newRecoveryFixture(t)
	f.notifier.err = errors.New("smtp down")

	_, err := f.svc.GenerateChallenge(context.Background())
	assert.ErrorContains(t, err, "smtp down")
}

func TestRecoveryService_ClearChallenge(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()

	_, err := f.svc.GenerateChallenge(ctx)
	require.NoError(t, err)
	require.NoError(t, f.svc.ClearChallenge(ctx))

	assert.NotContains(t, f.state.snapshot(), "reset_code")
	assert.NotContains(t, f.state.snapshot(), "reset_expiry")
}
