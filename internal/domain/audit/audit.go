package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType represents the type of entity being audited.
type EntityType string

const (
	EntityTypeSession     EntityType = "SESSION"
	EntityTypeWallet      EntityType = "WALLET"
	EntityTypeTransaction EntityType = "TRANSACTION"
)

// Action represents the audited action.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionDeposit Action = "DEPOSIT"
	ActionBill    Action = "BILL"
	ActionRefund  Action = "REFUND"
	ActionClose   Action = "CLOSE"
)

// Entry is one immutable audit record. Ledger transactions are mirrored here
// with an HMAC signature so downstream reporting can detect tampering.
type Entry struct {
	ID         int64           `json:"id"`
	AuditID    uuid.UUID       `json:"auditId"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Action     Action          `json:"action"`
	Actor      string          `json:"actor"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Signature  []byte          `json:"signature,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Repository defines persistence for audit entries. Append-only.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID string, limit int) ([]*Entry, error)
}
