package wallet

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_ledger.go -package=mocks . Ledger

import (
	"context"

	"github.com/google/uuid"
)

// Ledger is the storage contract for monetary state. Every write is atomic
// and serialized against other writes touching the same wallet or the same
// session's escrow; writes on unrelated keys proceed in parallel. A write
// that loses a per-key race returns ErrConcurrentConflict and may be retried
// by the caller.
type Ledger interface {
	// CreateAccount opens a wallet with a zero balance. Idempotent: an
	// existing account is returned unchanged.
	CreateAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)

	// Credit adds externally settled tokens (top-up processor payout) to a
	// user's available balance. Not part of any session's ledger.
	Credit(ctx context.Context, userID uuid.UUID, amount int64) (*Account, error)

	// Deposit moves amount from the payer's available balance into the
	// session's escrow. Fails with ErrInsufficientBalance (not clamped)
	// when the balance cannot cover it.
	Deposit(ctx context.Context, sessionID, payerID uuid.UUID, amount int64) (*Transaction, error)

	// BillBucket consumes cost tokens from the session escrow and splits
	// them into a platform fee and, when earnerID is non-nil, an earner
	// credit applied immediately to the earner's available balance. Fails
	// with ErrEscrowExhausted when the escrow cannot cover a full bucket.
	BillBucket(ctx context.Context, sessionID uuid.UUID, earnerID *uuid.UUID, cost, feeNumerator, feeDenominator int64) (*BucketBill, error)

	// RefundUnused returns the remaining escrow to the payer as a single
	// REFUND transaction. Idempotent: a session with nothing held returns
	// (nil, nil).
	RefundUnused(ctx context.Context, sessionID uuid.UUID) (*Transaction, error)

	EscrowBalance(ctx context.Context, sessionID uuid.UUID) (int64, error)
	ListTransactions(ctx context.Context, sessionID uuid.UUID, limit int) ([]*Transaction, error)
	SessionTotals(ctx context.Context, sessionID uuid.UUID) (*SessionTotals, error)
}
