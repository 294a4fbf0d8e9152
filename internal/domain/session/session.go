package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/paire/chat-billing/internal/domain/billing"
)

// State represents chat session state.
type State string

const (
	StateInitializing    State = "INITIALIZING"
	StateFreePhase       State = "FREE_PHASE"
	StateAwaitingDeposit State = "AWAITING_DEPOSIT"
	StatePaidPhase       State = "PAID_PHASE"
	StateClosed          State = "CLOSED"
)

// CloseReason records what terminated a session.
type CloseReason string

const (
	CloseReasonUser       CloseReason = "USER"
	CloseReasonTimeout    CloseReason = "TIMEOUT"
	CloseReasonModeration CloseReason = "MODERATION"
)

var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrClosed            = errors.New("session is closed")
	ErrNotParticipant    = errors.New("user is not a session participant")
	ErrVersionConflict   = errors.New("session version conflict")
)

// Session is one paid-chat conversation. ParticipantA is the sender of the
// first message. Roles, free-pool policy, and the bucket quota are resolved
// once at creation and never change for the session's lifetime.
type Session struct {
	ID           int64     `json:"id"`
	SessionID    uuid.UUID `json:"sessionId"`
	ParticipantA uuid.UUID `json:"participantA"`
	ParticipantB uuid.UUID `json:"participantB"`

	PayerID      uuid.UUID       `json:"payerId"`
	EarnerID     *uuid.UUID      `json:"earnerId,omitempty"`
	ResolvedRule billing.RuleTag `json:"resolvedRule"`

	State               State `json:"state"`
	PolicyUnlimitedFree bool  `json:"policyUnlimitedFree"`
	FreeRemainingA      int   `json:"freeRemainingA"`
	FreeRemainingB      int   `json:"freeRemainingB"`

	BucketWords      int `json:"bucketWords"`
	WordsAccumulated int `json:"wordsAccumulated"`
	// PendingBuckets are full buckets already carved out of the accumulator
	// but not yet settled against escrow.
	PendingBuckets int `json:"pendingBuckets"`

	CreatedAt     time.Time    `json:"createdAt"`
	LastMessageAt time.Time    `json:"lastMessageAt"`
	ClosedAt      *time.Time   `json:"closedAt,omitempty"`
	CloseReason   *CloseReason `json:"closeReason,omitempty"`

	// Version implements optimistic concurrency on session updates.
	Version int64 `json:"version"`
}

// CanTransitionTo validates session state transitions. Transitions are
// monotonic except for the AwaitingDeposit/PaidPhase pair; a session that has
// left FreePhase never returns to it.
func (s *Session) CanTransitionTo(target State) bool {
	transitions := map[State][]State{
		StateInitializing:    {StateFreePhase, StateClosed},
		StateFreePhase:       {StateAwaitingDeposit, StateClosed},
		StateAwaitingDeposit: {StatePaidPhase, StateClosed},
		StatePaidPhase:       {StateAwaitingDeposit, StateClosed},
		StateClosed:          {},
	}
	for _, allowed := range transitions[s.State] {
		if allowed == target {
			return true
		}
	}
	return false
}

// EnterFreePhase completes initialization.
func (s *Session) EnterFreePhase() error {
	if !s.CanTransitionTo(StateFreePhase) {
		return ErrInvalidTransition
	}
	s.State = StateFreePhase
	return nil
}

// RequireDeposit parks the session until the payer funds escrow.
func (s *Session) RequireDeposit() error {
	if !s.CanTransitionTo(StateAwaitingDeposit) {
		return ErrInvalidTransition
	}
	s.State = StateAwaitingDeposit
	return nil
}

// EnterPaidPhase resumes billing after a successful deposit.
func (s *Session) EnterPaidPhase() error {
	if !s.CanTransitionTo(StatePaidPhase) {
		return ErrInvalidTransition
	}
	s.State = StatePaidPhase
	return nil
}

// Close terminates the session. Terminal: closed sessions are retained for
// audit but never mutated again.
func (s *Session) Close(reason CloseReason, now time.Time) error {
	if !s.CanTransitionTo(StateClosed) {
		return ErrInvalidTransition
	}
	s.State = StateClosed
	s.ClosedAt = &now
	s.CloseReason = &reason
	return nil
}

func (s *Session) IsClosed() bool {
	return s.State == StateClosed
}

// HasParticipant reports whether userID is one of the two participants.
func (s *Session) HasParticipant(userID uuid.UUID) bool {
	return userID == s.ParticipantA || userID == s.ParticipantB
}

// Counterparty returns the other participant.
func (s *Session) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == s.ParticipantA {
		return s.ParticipantB
	}
	return s.ParticipantA
}

// MeteredAuthor is the participant whose words feed the bucket meter: the
// resolved earner, or the payer's counterparty when the platform earns.
func (s *Session) MeteredAuthor() uuid.UUID {
	if s.EarnerID != nil {
		return *s.EarnerID
	}
	return s.Counterparty(s.PayerID)
}

// FreeRemaining returns the free-message counter for one participant.
func (s *Session) FreeRemaining(userID uuid.UUID) int {
	if userID == s.ParticipantA {
		return s.FreeRemainingA
	}
	return s.FreeRemainingB
}

// ConsumeFree decrements a participant's free counter. Counters only ever
// decrease; once zero the session never re-enters the free phase.
func (s *Session) ConsumeFree(userID uuid.UUID) bool {
	if userID == s.ParticipantA {
		if s.FreeRemainingA <= 0 {
			return false
		}
		s.FreeRemainingA--
		return true
	}
	if s.FreeRemainingB <= 0 {
		return false
	}
	s.FreeRemainingB--
	return true
}
