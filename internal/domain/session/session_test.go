package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	a, b := uuid.New(), uuid.New()
	earner := b
	return &Session{
		SessionID:      uuid.New(),
		ParticipantA:   a,
		ParticipantB:   b,
		PayerID:        a,
		EarnerID:       &earner,
		State:          StateInitializing,
		FreeRemainingA: 3,
		FreeRemainingB: 3,
		BucketWords:    40,
	}
}

func TestSessionTransitions(t *testing.T) {
	t.Run("full lifecycle", func(t *testing.T) {
		s := newTestSession()
		require.NoError(t, s.EnterFreePhase())
		require.NoError(t, s.RequireDeposit())
		require.NoError(t, s.EnterPaidPhase())

		// Escrow exhaustion parks the session again, deposit resumes it.
		require.NoError(t, s.RequireDeposit())
		require.NoError(t, s.EnterPaidPhase())

		require.NoError(t, s.Close(CloseReasonUser, time.Now().UTC()))
		assert.True(t, s.IsClosed())
		require.NotNil(t, s.CloseReason)
		assert.Equal(t, CloseReasonUser, *s.CloseReason)
	})

	t.Run("no return to free phase", func(t *testing.T) {
		s := newTestSession()
		require.NoError(t, s.EnterFreePhase())
		require.NoError(t, s.RequireDeposit())
		assert.ErrorIs(t, s.EnterFreePhase(), ErrInvalidTransition)
	})

	t.Run("closed is terminal", func(t *testing.T) {
		s := newTestSession()
		require.NoError(t, s.EnterFreePhase())
		require.NoError(t, s.Close(CloseReasonTimeout, time.Now().UTC()))
		assert.ErrorIs(t, s.EnterPaidPhase(), ErrInvalidTransition)
		assert.ErrorIs(t, s.RequireDeposit(), ErrInvalidTransition)
		assert.ErrorIs(t, s.Close(CloseReasonUser, time.Now().UTC()), ErrInvalidTransition)
	})

	t.Run("closable from every live state", func(t *testing.T) {
		for _, state := range []State{StateInitializing, StateFreePhase, StateAwaitingDeposit, StatePaidPhase} {
			s := newTestSession()
			s.State = state
			assert.NoError(t, s.Close(CloseReasonModeration, time.Now().UTC()), "state %s", state)
		}
	})

	t.Run("paid phase requires a deposit first", func(t *testing.T) {
		s := newTestSession()
		require.NoError(t, s.EnterFreePhase())
		assert.ErrorIs(t, s.EnterPaidPhase(), ErrInvalidTransition)
	})
}

func TestConsumeFree(t *testing.T) {
	s := newTestSession()
	s.FreeRemainingA = 2
	s.FreeRemainingB = 1

	assert.True(t, s.ConsumeFree(s.ParticipantA))
	assert.True(t, s.ConsumeFree(s.ParticipantA))
	assert.False(t, s.ConsumeFree(s.ParticipantA), "counter exhausted")
	assert.Equal(t, 0, s.FreeRemaining(s.ParticipantA))

	// Counters are per participant.
	assert.True(t, s.ConsumeFree(s.ParticipantB))
	assert.False(t, s.ConsumeFree(s.ParticipantB))
}

func TestMeteredAuthor(t *testing.T) {
	s := newTestSession()
	assert.Equal(t, *s.EarnerID, s.MeteredAuthor())

	// Platform earns: the payer's counterparty is metered.
	s.EarnerID = nil
	assert.Equal(t, s.ParticipantB, s.MeteredAuthor())

	s.PayerID = s.ParticipantB
	assert.Equal(t, s.ParticipantA, s.MeteredAuthor())
}

func TestHasParticipantAndCounterparty(t *testing.T) {
	s := newTestSession()
	assert.True(t, s.HasParticipant(s.ParticipantA))
	assert.True(t, s.HasParticipant(s.ParticipantB))
	assert.False(t, s.HasParticipant(uuid.New()))
	assert.Equal(t, s.ParticipantB, s.Counterparty(s.ParticipantA))
	assert.Equal(t, s.ParticipantA, s.Counterparty(s.ParticipantB))
}
