package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appaudit "github.com/paire/chat-billing/internal/application/audit"
	"github.com/paire/chat-billing/internal/domain/audit"
	"github.com/paire/chat-billing/internal/domain/billing"
	"github.com/paire/chat-billing/internal/domain/event"
	"github.com/paire/chat-billing/internal/domain/wallet"
)

// Publisher delivers engine events. Implementations must not block.
type Publisher interface {
	Publish(ev *event.Event)
}

// Service is the application face of the wallet ledger. It wraps the storage
// contract with a bounded conflict retry, and mirrors every committed
// transaction to the event hub and the audit log after commit.
type Service struct {
	store      wallet.Ledger
	hub        Publisher
	audit      *appaudit.Service
	pricing    billing.Pricing
	maxRetries int
	retryBase  time.Duration
	logger     zerolog.Logger
}

// NewService creates a ledger service. audit may be nil.
func NewService(store wallet.Ledger, hub Publisher, auditSvc *appaudit.Service, pricing billing.Pricing, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		hub:        hub,
		audit:      auditSvc,
		pricing:    pricing,
		maxRetries: 4,
		retryBase:  10 * time.Millisecond,
		logger:     logger.With().Str("service", "ledger").Logger(),
	}
}

// Pricing exposes the parameters this service bills with.
func (s *Service) Pricing() billing.Pricing {
	return s.pricing
}

// EnsureAccount opens the wallet if it does not exist yet.
func (s *Service) EnsureAccount(ctx context.Context, userID uuid.UUID) (*wallet.Account, error) {
	return s.store.CreateAccount(ctx, userID)
}

// Account returns the wallet for one user.
func (s *Service) Account(ctx context.Context, userID uuid.UUID) (*wallet.Account, error) {
	return s.store.GetAccount(ctx, userID)
}

// Credit adds externally settled tokens to a user's available balance.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int64) (*wallet.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive")
	}
	var acct *wallet.Account
	err := s.withRetry(ctx, func() error {
		var err error
		acct, err = s.store.Credit(ctx, userID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Deposit moves amount from the payer's available balance into the session's
// escrow. Emits LowBalanceWarning when the deposit leaves the payer within
// one bucket cost of an empty wallet.
func (s *Service) Deposit(ctx context.Context, sessionID, payerID uuid.UUID, amount int64) (*wallet.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive")
	}
	var tx *wallet.Transaction
	err := s.withRetry(ctx, func() error {
		var err error
		tx, err = s.store.Deposit(ctx, sessionID, payerID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emitTx(tx, audit.ActionDeposit)

	if acct, err := s.store.GetAccount(ctx, payerID); err == nil {
		if acct.AvailableBalance < s.pricing.BucketCostTokens {
			s.hub.Publish(event.New(event.TypeLowBalanceWarning, &payerID, &sessionID, map[string]int64{
				"availableBalance": acct.AvailableBalance,
				"bucketCost":       s.pricing.BucketCostTokens,
			}))
		}
	}
	return tx, nil
}

// BillBucket settles one bucket against the session's escrow and splits it
// between the platform and the earner.
func (s *Service) BillBucket(ctx context.Context, sessionID uuid.UUID, earnerID *uuid.UUID) (*wallet.BucketBill, error) {
	var bill *wallet.BucketBill
	err := s.withRetry(ctx, func() error {
		var err error
		bill, err = s.store.BillBucket(ctx, sessionID, earnerID,
			s.pricing.BucketCostTokens, s.pricing.FeeNumerator, s.pricing.FeeDenominator)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emitTx(bill.Bill, audit.ActionBill)
	s.emitTx(bill.Fee, audit.ActionBill)
	if bill.Credit != nil {
		s.emitTx(bill.Credit, audit.ActionBill)
	}
	return bill, nil
}

// RefundUnused returns remaining escrow to the payer. Idempotent.
func (s *Service) RefundUnused(ctx context.Context, sessionID uuid.UUID) (*wallet.Transaction, error) {
	var tx *wallet.Transaction
	err := s.withRetry(ctx, func() error {
		var err error
		tx, err = s.store.RefundUnused(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if tx != nil {
		s.emitTx(tx, audit.ActionRefund)
	}
	return tx, nil
}

// EscrowBalance returns tokens currently held against a session.
func (s *Service) EscrowBalance(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	return s.store.EscrowBalance(ctx, sessionID)
}

// Transactions lists a session's ledger.
func (s *Service) Transactions(ctx context.Context, sessionID uuid.UUID, limit int) ([]*wallet.Transaction, error) {
	return s.store.ListTransactions(ctx, sessionID, limit)
}

// Totals aggregates a session's ledger.
func (s *Service) Totals(ctx context.Context, sessionID uuid.UUID) (*wallet.SessionTotals, error) {
	return s.store.SessionTotals(ctx, sessionID)
}

// withRetry retries per-key conflicts with exponential backoff and jitter.
// The budget is small: a persistently contended key surfaces
// ErrConcurrentConflict to the caller instead of stalling message handling.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.retryBase << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(s.retryBase)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err = fn()
		if err == nil || !errors.Is(err, wallet.ErrConcurrentConflict) {
			return err
		}
		s.logger.Debug().Int("attempt", attempt+1).Msg("ledger conflict, retrying")
	}
	return err
}

// emitTx publishes a committed transaction to the event hub and audit log.
// Fire-and-forget: failures are logged, never returned.
func (s *Service) emitTx(tx *wallet.Transaction, action audit.Action) {
	if tx == nil {
		return
	}
	sessionID := tx.SessionID
	s.hub.Publish(event.New(event.TypeLedgerRecorded, nil, &sessionID, tx))
	if s.audit != nil {
		detail, _ := json.Marshal(tx)
		s.audit.Log(&audit.Entry{
			EntityType: audit.EntityTypeTransaction,
			EntityID:   tx.TxID.String(),
			Action:     action,
			Detail:     detail,
		})
	}
}
