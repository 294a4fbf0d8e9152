package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/paire/chat-billing/internal/domain/wallet"
	"github.com/paire/chat-billing/internal/infrastructure/memory"
	"github.com/paire/chat-billing/internal/replicated/protocol"
)

// Machine is the deterministic ledger state machine replicated through the
// consensus log. It applies already-validated commands; ordering and
// durability are the log's job. Applied tx IDs are tracked so a replayed log
// entry is a no-op instead of a double bill.
type Machine struct {
	mu      sync.Mutex
	store   *memory.Store
	applied map[string]struct{}
}

func NewMachine() *Machine {
	return &Machine{
		store:   memory.NewStore(),
		applied: make(map[string]struct{}),
	}
}

// ApplyTx applies one signed command. Deterministic: identical logs yield
// identical ledgers on every node.
func (m *Machine) ApplyTx(tx protocol.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.applied[tx.TxID]; seen {
		return nil
	}

	// Every write carries the command's identity and timestamp, so replicas
	// applying the same log mint identical transaction rows.
	ctx := wallet.WithTxStamp(context.Background(), wallet.TxStamp{
		BaseID: stampBase(tx.TxID),
		At:     tx.Timestamp,
	})
	var err error
	switch tx.Op {
	case protocol.OpAccountCreate:
		var p protocol.AccountCreatePayload
		if p, err = protocol.DecodePayload[protocol.AccountCreatePayload](tx.Payload); err == nil {
			_, err = m.store.CreateAccount(ctx, p.UserID)
		}
	case protocol.OpAccountCredit:
		var p protocol.AccountCreditPayload
		if p, err = protocol.DecodePayload[protocol.AccountCreditPayload](tx.Payload); err == nil {
			if _, cErr := m.store.CreateAccount(ctx, p.UserID); cErr != nil {
				err = cErr
			} else {
				_, err = m.store.Credit(ctx, p.UserID, p.AmountTokens)
			}
		}
	case protocol.OpEscrowDeposit:
		var p protocol.EscrowDepositPayload
		if p, err = protocol.DecodePayload[protocol.EscrowDepositPayload](tx.Payload); err == nil {
			_, err = m.store.Deposit(ctx, p.SessionID, p.PayerID, p.AmountTokens)
		}
	case protocol.OpBucketBill:
		var p protocol.BucketBillPayload
		if p, err = protocol.DecodePayload[protocol.BucketBillPayload](tx.Payload); err == nil {
			_, err = m.store.BillBucket(ctx, p.SessionID, p.EarnerID, p.CostTokens, p.FeeNumerator, p.FeeDenominator)
		}
	case protocol.OpEscrowRefund:
		var p protocol.EscrowRefundPayload
		if p, err = protocol.DecodePayload[protocol.EscrowRefundPayload](tx.Payload); err == nil {
			_, err = m.store.RefundUnused(ctx, p.SessionID)
		}
	default:
		err = fmt.Errorf("unsupported op: %s", tx.Op)
	}
	if err != nil {
		return err
	}
	m.applied[tx.TxID] = struct{}{}
	return nil
}

// Account reads one wallet.
func (m *Machine) Account(userID string) (*wallet.Account, error) {
	id, err := parseUUID(userID)
	if err != nil {
		return nil, err
	}
	return m.store.GetAccount(context.Background(), id)
}

// EscrowBalance reads one session's held tokens.
func (m *Machine) EscrowBalance(sessionID string) (int64, error) {
	id, err := parseUUID(sessionID)
	if err != nil {
		return 0, err
	}
	return m.store.EscrowBalance(context.Background(), id)
}

// Transactions lists one session's ledger.
func (m *Machine) Transactions(sessionID string, limit int) ([]*wallet.Transaction, error) {
	id, err := parseUUID(sessionID)
	if err != nil {
		return nil, err
	}
	return m.store.ListTransactions(context.Background(), id, limit)
}

// Totals aggregates one session's ledger.
func (m *Machine) Totals(sessionID string) (*wallet.SessionTotals, error) {
	id, err := parseUUID(sessionID)
	if err != nil {
		return nil, err
	}
	return m.store.SessionTotals(context.Background(), id)
}

// Stats summarizes the machine for the status endpoint.
func (m *Machine) Stats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]interface{}{
		"applied_txs": len(m.applied),
	}
}

func parseUUID(raw string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(raw))
}

// stampBase maps a command's tx_id onto the UUID space per-leg transaction
// IDs derive from.
func stampBase(txID string) uuid.UUID {
	if id, err := uuid.Parse(strings.TrimSpace(txID)); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(txID))
}

type machineSnapshot struct {
	Ledger  json.RawMessage `json:"ledger"`
	Applied []string        `json:"applied"`
}

// Marshal serializes the full machine for a consensus snapshot.
func (m *Machine) Marshal() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger, err := m.store.SnapshotLedger()
	if err != nil {
		return nil, err
	}
	applied := make([]string, 0, len(m.applied))
	for id := range m.applied {
		applied = append(applied, id)
	}
	return json.Marshal(machineSnapshot{Ledger: ledger, Applied: applied})
}

// Unmarshal replaces the machine's state from a consensus snapshot.
func (m *Machine) Unmarshal(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snap machineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	store := memory.NewStore()
	if len(snap.Ledger) > 0 {
		if err := store.RestoreLedger(snap.Ledger); err != nil {
			return err
		}
	}
	applied := make(map[string]struct{}, len(snap.Applied))
	for _, id := range snap.Applied {
		applied[id] = struct{}{}
	}
	m.store = store
	m.applied = applied
	return nil
}
