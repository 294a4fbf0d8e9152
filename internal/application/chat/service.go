package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appledger "github.com/paire/chat-billing/internal/application/ledger"
	"github.com/paire/chat-billing/internal/domain/billing"
	"github.com/paire/chat-billing/internal/domain/event"
	"github.com/paire/chat-billing/internal/domain/session"
	"github.com/paire/chat-billing/internal/domain/wallet"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSameParticipant    = errors.New("a session needs two distinct participants")
	ErrDepositRequired    = errors.New("deposit required to continue")
	ErrModerationRejected = errors.New("message rejected by moderation")
	ErrNotPayer           = errors.New("only the payer can fund the session")
	ErrDepositNotAllowed  = errors.New("session does not accept deposits in its current state")
)

// MessageResult reports what one accepted message did.
type MessageResult struct {
	SessionID     uuid.UUID     `json:"sessionId"`
	State         session.State `json:"state"`
	Billed        bool          `json:"billed"`
	BucketsBilled int           `json:"bucketsBilled"`
	WordsMetered  int           `json:"wordsMetered"`
	FreeRemaining int           `json:"freeRemaining"`
}

// DepositResult reports a funded deposit and any buckets it settled.
type DepositResult struct {
	Session        *session.Session    `json:"session"`
	Transaction    *wallet.Transaction `json:"transaction"`
	BucketsSettled int                 `json:"bucketsSettled"`
}

// Service drives the chat session state machine. It is the only component
// that translates ledger errors into state transitions, and it never
// advances state ahead of the ledger: transitions persist only after the
// corresponding monetary operation has committed.
//
// Work on one session serializes on an in-process key lock; the session
// version CAS backstops concurrent writers on other instances.
type Service struct {
	sessions   session.Repository
	ledger     *appledger.Service
	profiles   billing.ProfileStore
	moderation ModerationClient
	topup      TopUpClient
	hub        appledger.Publisher
	pricing    billing.Pricing
	keys       *keyMutex
	logger     zerolog.Logger
}

func NewService(
	sessions session.Repository,
	ledgerSvc *appledger.Service,
	profiles billing.ProfileStore,
	moderation ModerationClient,
	topup TopUpClient,
	hub appledger.Publisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sessions:   sessions,
		ledger:     ledgerSvc,
		profiles:   profiles,
		moderation: moderation,
		topup:      topup,
		hub:        hub,
		pricing:    ledgerSvc.Pricing(),
		keys:       newKeyMutex(),
		logger:     logger.With().Str("service", "chat").Logger(),
	}
}

// OpenSession creates the session for a first message from sender to
// receiver, resolving roles and the free pool exactly once. An existing open
// session between the pair is returned instead of creating a duplicate.
func (s *Service) OpenSession(ctx context.Context, senderID, receiverID uuid.UUID) (*session.Session, error) {
	if senderID == receiverID {
		return nil, ErrSameParticipant
	}
	if existing, err := s.sessions.FindOpenBetween(ctx, senderID, receiverID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	senderProfile, err := s.profiles.GetBillingProfile(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("sender profile: %w", err)
	}
	receiverProfile, err := s.profiles.GetBillingProfile(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("receiver profile: %w", err)
	}

	resolution, err := billing.ResolveRoles(senderProfile, receiverProfile)
	if err != nil {
		// Fail closed: no session, no billing.
		return nil, err
	}

	earningSide := senderProfile
	meteredID := resolution.PayerID
	if resolution.EarnerID != nil {
		meteredID = *resolution.EarnerID
	} else if resolution.PayerID == senderID {
		meteredID = receiverID
	} else {
		meteredID = senderID
	}
	if meteredID == receiverID {
		earningSide = receiverProfile
	}

	policy := billing.ClassifyFreePool(senderProfile, receiverProfile, earningSide, s.pricing)
	if !policy.UnlimitedFree && s.pricing.FreePoolOverrideExpr != "" {
		forced, err := billing.EvaluateFreePoolOverride(s.pricing.FreePoolOverrideExpr, senderProfile, receiverProfile)
		if err != nil {
			s.logger.Warn().Err(err).Msg("free-pool override expression failed, ignoring")
		} else if forced {
			policy = billing.FreePoolPolicy{UnlimitedFree: true}
		}
	}

	now := time.Now().UTC()
	sess := &session.Session{
		SessionID:           uuid.New(),
		ParticipantA:        senderID,
		ParticipantB:        receiverID,
		PayerID:             resolution.PayerID,
		EarnerID:            resolution.EarnerID,
		ResolvedRule:        resolution.Rule,
		State:               session.StateInitializing,
		PolicyUnlimitedFree: policy.UnlimitedFree,
		FreeRemainingA:      policy.FreeMessagesPerParticipant,
		FreeRemainingB:      policy.FreeMessagesPerParticipant,
		BucketWords:         s.pricing.BucketWordsFor(earningSide.RoyalTier),
		CreatedAt:           now,
		LastMessageAt:       now,
	}
	if err := sess.EnterFreePhase(); err != nil {
		return nil, err
	}

	if _, err := s.ledger.EnsureAccount(ctx, sess.PayerID); err != nil {
		return nil, fmt.Errorf("payer wallet: %w", err)
	}
	if sess.EarnerID != nil {
		if _, err := s.ledger.EnsureAccount(ctx, *sess.EarnerID); err != nil {
			return nil, fmt.Errorf("earner wallet: %w", err)
		}
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("sessionId", sess.SessionID.String()).
		Str("payer", sess.PayerID.String()).
		Str("rule", string(sess.ResolvedRule)).
		Bool("unlimitedFree", sess.PolicyUnlimitedFree).
		Msg("session opened")
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// RecordMessage runs one inbound message through the billing pipeline:
// moderation gate, free-pool counters, word metering, and bucket settlement.
func (s *Service) RecordMessage(ctx context.Context, sessionID, authorID uuid.UUID, text string) (*MessageResult, error) {
	unlock := s.keys.Lock(sessionID)
	defer unlock()

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsClosed() {
		return nil, session.ErrClosed
	}
	if !sess.HasParticipant(authorID) {
		return nil, session.ErrNotParticipant
	}

	allowed, err := s.moderation.IsMessageAllowed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}
	if !allowed {
		return nil, ErrModerationRejected
	}

	now := time.Now().UTC()
	switch sess.State {
	case session.StateFreePhase:
		if sess.PolicyUnlimitedFree {
			sess.LastMessageAt = now
			if err := s.sessions.Update(ctx, sess); err != nil {
				return nil, err
			}
			return &MessageResult{SessionID: sessionID, State: sess.State}, nil
		}
		if sess.ConsumeFree(authorID) {
			sess.LastMessageAt = now
			if err := s.sessions.Update(ctx, sess); err != nil {
				return nil, err
			}
			return &MessageResult{
				SessionID:     sessionID,
				State:         sess.State,
				FreeRemaining: sess.FreeRemaining(authorID),
			}, nil
		}
		if err := sess.RequireDeposit(); err != nil {
			return nil, err
		}
		if err := s.sessions.Update(ctx, sess); err != nil {
			return nil, err
		}
		return nil, ErrDepositRequired

	case session.StateAwaitingDeposit:
		return nil, ErrDepositRequired

	case session.StatePaidPhase:
		if authorID != sess.MeteredAuthor() {
			// The paying side always messages for free.
			sess.LastMessageAt = now
			if err := s.sessions.Update(ctx, sess); err != nil {
				return nil, err
			}
			return &MessageResult{SessionID: sessionID, State: sess.State}, nil
		}
		words := billing.BillableWords(text)
		outcome := billing.MeterWords(sess.WordsAccumulated, words, sess.BucketWords)
		sess.WordsAccumulated = outcome.Remainder
		sess.PendingBuckets += outcome.BucketsCompleted
		sess.LastMessageAt = now
		if err := s.sessions.Update(ctx, sess); err != nil {
			return nil, err
		}

		billed, err := s.settleDue(ctx, sess)
		result := &MessageResult{
			SessionID:     sessionID,
			State:         sess.State,
			Billed:        billed > 0,
			BucketsBilled: billed,
			WordsMetered:  words,
		}
		if err != nil {
			if errors.Is(err, wallet.ErrEscrowExhausted) {
				return result, ErrDepositRequired
			}
			return result, err
		}
		return result, nil

	default:
		return nil, session.ErrInvalidTransition
	}
}

// Deposit funds the session's escrow from the payer's wallet and settles any
// buckets that accrued while the session awaited funds. A deposit failing on
// available balance triggers one external top-up attempt before giving up.
func (s *Service) Deposit(ctx context.Context, sessionID, userID uuid.UUID, amount int64) (*DepositResult, error) {
	unlock := s.keys.Lock(sessionID)
	defer unlock()

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsClosed() {
		return nil, session.ErrClosed
	}
	if userID != sess.PayerID {
		return nil, ErrNotPayer
	}
	if sess.State != session.StateAwaitingDeposit && sess.State != session.StatePaidPhase {
		return nil, ErrDepositNotAllowed
	}

	tx, err := s.ledger.Deposit(ctx, sessionID, sess.PayerID, amount)
	if errors.Is(err, wallet.ErrInsufficientBalance) {
		funded, topupErr := s.topup.RequestTopUp(ctx, sess.PayerID, amount)
		if topupErr != nil {
			s.logger.Warn().Err(topupErr).Str("payer", sess.PayerID.String()).Msg("top-up request failed")
			return nil, err
		}
		if !funded {
			return nil, err
		}
		tx, err = s.ledger.Deposit(ctx, sessionID, sess.PayerID, amount)
	}
	if err != nil {
		return nil, err
	}

	if sess.State == session.StateAwaitingDeposit {
		if err := sess.EnterPaidPhase(); err != nil {
			return nil, err
		}
		if err := s.sessions.Update(ctx, sess); err != nil {
			return nil, err
		}
	}

	settled, err := s.settleDue(ctx, sess)
	result := &DepositResult{Session: sess, Transaction: tx, BucketsSettled: settled}
	if err != nil {
		if errors.Is(err, wallet.ErrEscrowExhausted) {
			return result, ErrDepositRequired
		}
		return result, err
	}
	return result, nil
}

// CloseSession terminates the session and refunds unconsumed escrow. Calling
// it on an already-closed session re-runs only the idempotent refund, so a
// close interrupted between persist and refund self-heals on retry.
func (s *Service) CloseSession(ctx context.Context, sessionID uuid.UUID, reason session.CloseReason) (*session.Session, error) {
	unlock := s.keys.Lock(sessionID)
	defer unlock()

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsClosed() {
		if _, err := s.ledger.RefundUnused(ctx, sessionID); err != nil {
			return nil, err
		}
		return sess, nil
	}

	// Buckets already carved out of the accumulator settle before any refund,
	// so a close never returns tokens that covered consumed words.
	if sess.PendingBuckets > 0 {
		if _, err := s.settleDue(ctx, sess); err != nil && !errors.Is(err, wallet.ErrEscrowExhausted) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if err := sess.Close(reason, now); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	if _, err := s.ledger.RefundUnused(ctx, sessionID); err != nil {
		return nil, err
	}

	s.hub.Publish(event.New(event.TypeSessionClosed, nil, &sessionID, map[string]string{
		"reason": string(reason),
	}))
	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Str("reason", string(reason)).
		Msg("session closed")
	return sess, nil
}

// SweepIdle closes open sessions whose last message predates the idle TTL.
func (s *Service) SweepIdle(ctx context.Context, idleTTL time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-idleTTL)
	idle, err := s.sessions.ListOpenIdleSince(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, sess := range idle {
		if _, err := s.CloseSession(ctx, sess.SessionID, session.CloseReasonTimeout); err != nil {
			s.logger.Warn().Err(err).Str("sessionId", sess.SessionID.String()).Msg("idle close failed")
			continue
		}
		closed++
	}
	return closed, nil
}

// settleDue bills the session's pending buckets one at a time, in order,
// persisting the claim after each commit. On escrow exhaustion the unsettled
// buckets stay pending and the session parks in AwaitingDeposit; they settle
// after the next successful deposit.
func (s *Service) settleDue(ctx context.Context, sess *session.Session) (int, error) {
	billed := 0
	for sess.PendingBuckets > 0 {
		if _, err := s.ledger.BillBucket(ctx, sess.SessionID, sess.EarnerID); err != nil {
			if errors.Is(err, wallet.ErrEscrowExhausted) && sess.State == session.StatePaidPhase {
				if terr := sess.RequireDeposit(); terr != nil {
					return billed, terr
				}
				if uerr := s.sessions.Update(ctx, sess); uerr != nil {
					return billed, uerr
				}
			}
			return billed, err
		}
		sess.PendingBuckets--
		billed++
		if err := s.sessions.Update(ctx, sess); err != nil {
			return billed, err
		}
	}
	return billed, nil
}
