package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PlatformAccountID is the reserved counterparty for platform fees and
// escrow legs. It never maps to a user wallet.
var PlatformAccountID = uuid.Nil

// Typed ledger errors. The session state machine is the only component that
// translates these into state transitions.
var (
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrEscrowExhausted     = errors.New("session escrow exhausted")
	ErrConcurrentConflict  = errors.New("concurrent wallet mutation conflict")
	ErrAccountNotFound     = errors.New("wallet account not found")
	ErrEscrowNotFound      = errors.New("session escrow not found")
)

// Account is a user's token wallet. AvailableBalance never goes negative: a
// debit that would violate that is rejected, never clamped.
type Account struct {
	ID               int64     `json:"id"`
	UserID           uuid.UUID `json:"userId"`
	AvailableBalance int64     `json:"availableBalance"`
	EscrowOut        int64     `json:"escrowOut"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TxKind classifies a ledger transaction.
type TxKind string

const (
	KindDeposit      TxKind = "DEPOSIT"
	KindBucketBill   TxKind = "BUCKET_BILL"
	KindRefund       TxKind = "REFUND"
	KindPlatformFee  TxKind = "PLATFORM_FEE"
	KindEarnerCredit TxKind = "EARNER_CREDIT"
)

// Transaction is one append-only ledger record. For every session the
// conservation law holds exactly:
//
//	sum(DEPOSIT) == sum(BUCKET_BILL) + sum(REFUND)
//	sum(BUCKET_BILL) == sum(PLATFORM_FEE) + sum(EARNER_CREDIT)
type Transaction struct {
	ID           int64     `json:"id"`
	TxID         uuid.UUID `json:"txId"`
	SessionID    uuid.UUID `json:"sessionId"`
	Kind         TxKind    `json:"kind"`
	FromUserID   uuid.UUID `json:"fromUserId"`
	ToUserID     uuid.UUID `json:"toUserId"`
	AmountTokens int64     `json:"amountTokens"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EscrowHold is the tokens a payer has locked against one session.
type EscrowHold struct {
	SessionID  uuid.UUID `json:"sessionId"`
	PayerID    uuid.UUID `json:"payerId"`
	HeldTokens int64     `json:"heldTokens"`
	Refunded   bool      `json:"refunded"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SplitBucket divides one bucket's value into the platform fee and the earner
// credit using exact integer arithmetic: the fee truncates, the earner takes
// the remainder, so fee+credit == amount for every amount and ratio.
func SplitBucket(amount, feeNumerator, feeDenominator int64) (fee, credit int64) {
	fee = amount * feeNumerator / feeDenominator
	credit = amount - fee
	return fee, credit
}

// BucketBill is the committed result of billing one bucket. Credit is nil
// when the platform earns.
type BucketBill struct {
	Bill            *Transaction
	Fee             *Transaction
	Credit          *Transaction
	EscrowRemaining int64
}

// SessionTotals aggregates a session's ledger, used to check conservation.
type SessionTotals struct {
	Deposits      int64 `json:"deposits"`
	BucketBills   int64 `json:"bucketBills"`
	PlatformFees  int64 `json:"platformFees"`
	EarnerCredits int64 `json:"earnerCredits"`
	Refunds       int64 `json:"refunds"`
}
