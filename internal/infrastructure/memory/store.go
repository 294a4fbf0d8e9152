package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paire/chat-billing/internal/domain/audit"
	"github.com/paire/chat-billing/internal/domain/billing"
	"github.com/paire/chat-billing/internal/domain/session"
	"github.com/paire/chat-billing/internal/domain/wallet"
)

// Store is an in-process implementation of the engine's storage contracts:
// wallet.Ledger, session.Repository, billing.ProfileStore, and
// audit.Repository. Monetary writes serialize on per-key mutexes (one per
// wallet, one per session escrow), never on a store-wide lock, so two
// sessions' wallets mutate fully in parallel. It backs tests and the
// replicated ledger node's state machine.
type Store struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*wallet.Account
	accountLocks map[uuid.UUID]*sync.Mutex
	escrows      map[uuid.UUID]*wallet.EscrowHold
	escrowLocks  map[uuid.UUID]*sync.Mutex
	nextAccID    int64

	txMu   sync.Mutex
	txs    []*wallet.Transaction
	nextTx int64

	sessMu   sync.Mutex
	sessions map[uuid.UUID]*session.Session
	nextSess int64

	profMu   sync.RWMutex
	profiles map[uuid.UUID]*billing.Profile

	auditMu   sync.Mutex
	audits    []*audit.Entry
	nextAudit int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*wallet.Account),
		accountLocks: make(map[uuid.UUID]*sync.Mutex),
		escrows:      make(map[uuid.UUID]*wallet.EscrowHold),
		escrowLocks:  make(map[uuid.UUID]*sync.Mutex),
		sessions:     make(map[uuid.UUID]*session.Session),
		profiles:     make(map[uuid.UUID]*billing.Profile),
	}
}

func (s *Store) accountLock(userID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.accountLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.accountLocks[userID] = l
	}
	return l
}

func (s *Store) escrowLock(sessionID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.escrowLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.escrowLocks[sessionID] = l
	}
	return l
}

// lockAccounts acquires account locks in a stable order so concurrent bills
// touching the same payer/earner pair cannot deadlock. Escrow locks are
// always taken before account locks for the same reason.
func (s *Store) lockAccounts(ids ...uuid.UUID) func() {
	uniq := make([]uuid.UUID, 0, len(ids))
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Slice(uniq, func(i, j int) bool {
		return strings.Compare(uniq[i].String(), uniq[j].String()) < 0
	})
	locks := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		l := s.accountLock(id)
		l.Lock()
		locks = append(locks, l)
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (s *Store) getAccount(userID uuid.UUID) *wallet.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[userID]
}

func (s *Store) putAccount(a *wallet.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.UserID] = a
}

func copyAccount(a *wallet.Account) *wallet.Account {
	cp := *a
	return &cp
}

func copyTx(t *wallet.Transaction) *wallet.Transaction {
	cp := *t
	return &cp
}

// writeStamp resolves the identity source for one monetary write: the replay
// stamp from ctx when the store is driven by the replicated log, fresh UUIDs
// and wall time otherwise.
func writeStamp(ctx context.Context) (legID func(string) uuid.UUID, now time.Time) {
	if st, ok := wallet.TxStampFromContext(ctx); ok {
		return st.Leg, st.At.UTC()
	}
	return func(string) uuid.UUID { return uuid.New() }, time.Now().UTC()
}

func (s *Store) appendTx(t *wallet.Transaction) *wallet.Transaction {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.nextTx++
	t.ID = s.nextTx
	s.txs = append(s.txs, t)
	return copyTx(t)
}

// CreateAccount implements wallet.Ledger.
func (s *Store) CreateAccount(ctx context.Context, userID uuid.UUID) (*wallet.Account, error) {
	unlock := s.lockAccounts(userID)
	defer unlock()
	if a := s.getAccount(userID); a != nil {
		return copyAccount(a), nil
	}
	_, now := writeStamp(ctx)
	s.mu.Lock()
	s.nextAccID++
	id := s.nextAccID
	s.mu.Unlock()
	a := &wallet.Account{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.putAccount(a)
	return copyAccount(a), nil
}

// GetAccount implements wallet.Ledger.
func (s *Store) GetAccount(ctx context.Context, userID uuid.UUID) (*wallet.Account, error) {
	a := s.getAccount(userID)
	if a == nil {
		return nil, wallet.ErrAccountNotFound
	}
	unlock := s.lockAccounts(userID)
	defer unlock()
	return copyAccount(s.getAccount(userID)), nil
}

// Credit implements wallet.Ledger.
func (s *Store) Credit(ctx context.Context, userID uuid.UUID, amount int64) (*wallet.Account, error) {
	unlock := s.lockAccounts(userID)
	defer unlock()
	a := s.getAccount(userID)
	if a == nil {
		return nil, wallet.ErrAccountNotFound
	}
	_, now := writeStamp(ctx)
	a.AvailableBalance += amount
	a.UpdatedAt = now
	return copyAccount(a), nil
}

// Deposit implements wallet.Ledger.
func (s *Store) Deposit(ctx context.Context, sessionID, payerID uuid.UUID, amount int64) (*wallet.Transaction, error) {
	el := s.escrowLock(sessionID)
	el.Lock()
	defer el.Unlock()
	unlock := s.lockAccounts(payerID)
	defer unlock()

	a := s.getAccount(payerID)
	if a == nil {
		return nil, wallet.ErrAccountNotFound
	}
	if a.AvailableBalance < amount {
		return nil, wallet.ErrInsufficientBalance
	}
	legID, now := writeStamp(ctx)
	a.AvailableBalance -= amount
	a.EscrowOut += amount
	a.UpdatedAt = now

	s.mu.Lock()
	hold, ok := s.escrows[sessionID]
	if !ok {
		hold = &wallet.EscrowHold{SessionID: sessionID, PayerID: payerID}
		s.escrows[sessionID] = hold
	}
	hold.HeldTokens += amount
	hold.Refunded = false
	hold.UpdatedAt = now
	s.mu.Unlock()

	return s.appendTx(&wallet.Transaction{
		TxID:         legID("deposit"),
		SessionID:    sessionID,
		Kind:         wallet.KindDeposit,
		FromUserID:   payerID,
		ToUserID:     wallet.PlatformAccountID,
		AmountTokens: amount,
		CreatedAt:    now,
	}), nil
}

// BillBucket implements wallet.Ledger.
func (s *Store) BillBucket(ctx context.Context, sessionID uuid.UUID, earnerID *uuid.UUID, cost, feeNumerator, feeDenominator int64) (*wallet.BucketBill, error) {
	el := s.escrowLock(sessionID)
	el.Lock()
	defer el.Unlock()

	s.mu.Lock()
	hold := s.escrows[sessionID]
	s.mu.Unlock()
	if hold == nil {
		return nil, wallet.ErrEscrowNotFound
	}
	if hold.HeldTokens < cost {
		return nil, wallet.ErrEscrowExhausted
	}

	ids := []uuid.UUID{hold.PayerID}
	if earnerID != nil {
		ids = append(ids, *earnerID)
	}
	unlock := s.lockAccounts(ids...)
	defer unlock()

	payer := s.getAccount(hold.PayerID)
	if payer == nil {
		return nil, wallet.ErrAccountNotFound
	}
	var earner *wallet.Account
	if earnerID != nil {
		earner = s.getAccount(*earnerID)
		if earner == nil {
			return nil, wallet.ErrAccountNotFound
		}
	}

	legID, now := writeStamp(ctx)
	fee, credit := wallet.SplitBucket(cost, feeNumerator, feeDenominator)
	if earnerID == nil {
		fee, credit = cost, 0
	}

	hold.HeldTokens -= cost
	hold.UpdatedAt = now
	payer.EscrowOut -= cost
	payer.UpdatedAt = now
	if earner != nil {
		earner.AvailableBalance += credit
		earner.UpdatedAt = now
	}

	result := &wallet.BucketBill{EscrowRemaining: hold.HeldTokens}
	result.Bill = s.appendTx(&wallet.Transaction{
		TxID: legID("bill"), SessionID: sessionID, Kind: wallet.KindBucketBill,
		FromUserID: hold.PayerID, ToUserID: wallet.PlatformAccountID,
		AmountTokens: cost, CreatedAt: now,
	})
	result.Fee = s.appendTx(&wallet.Transaction{
		TxID: legID("fee"), SessionID: sessionID, Kind: wallet.KindPlatformFee,
		FromUserID: hold.PayerID, ToUserID: wallet.PlatformAccountID,
		AmountTokens: fee, CreatedAt: now,
	})
	if earnerID != nil {
		result.Credit = s.appendTx(&wallet.Transaction{
			TxID: legID("credit"), SessionID: sessionID, Kind: wallet.KindEarnerCredit,
			FromUserID: hold.PayerID, ToUserID: *earnerID,
			AmountTokens: credit, CreatedAt: now,
		})
	}
	return result, nil
}

// RefundUnused implements wallet.Ledger.
func (s *Store) RefundUnused(ctx context.Context, sessionID uuid.UUID) (*wallet.Transaction, error) {
	el := s.escrowLock(sessionID)
	el.Lock()
	defer el.Unlock()

	s.mu.Lock()
	hold := s.escrows[sessionID]
	s.mu.Unlock()
	if hold == nil || hold.Refunded || hold.HeldTokens == 0 {
		return nil, nil
	}

	unlock := s.lockAccounts(hold.PayerID)
	defer unlock()
	payer := s.getAccount(hold.PayerID)
	if payer == nil {
		return nil, wallet.ErrAccountNotFound
	}

	legID, now := writeStamp(ctx)
	amount := hold.HeldTokens
	hold.HeldTokens = 0
	hold.Refunded = true
	hold.UpdatedAt = now
	payer.AvailableBalance += amount
	payer.EscrowOut -= amount
	payer.UpdatedAt = now

	return s.appendTx(&wallet.Transaction{
		TxID: legID("refund"), SessionID: sessionID, Kind: wallet.KindRefund,
		FromUserID: wallet.PlatformAccountID, ToUserID: hold.PayerID,
		AmountTokens: amount, CreatedAt: now,
	}), nil
}

// EscrowBalance implements wallet.Ledger.
func (s *Store) EscrowBalance(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	el := s.escrowLock(sessionID)
	el.Lock()
	defer el.Unlock()
	s.mu.Lock()
	hold := s.escrows[sessionID]
	s.mu.Unlock()
	if hold == nil {
		return 0, nil
	}
	return hold.HeldTokens, nil
}

// ListTransactions implements wallet.Ledger.
func (s *Store) ListTransactions(ctx context.Context, sessionID uuid.UUID, limit int) ([]*wallet.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	out := make([]*wallet.Transaction, 0)
	for _, t := range s.txs {
		if t.SessionID == sessionID {
			out = append(out, copyTx(t))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// SessionTotals implements wallet.Ledger.
func (s *Store) SessionTotals(ctx context.Context, sessionID uuid.UUID) (*wallet.SessionTotals, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	totals := &wallet.SessionTotals{}
	for _, t := range s.txs {
		if t.SessionID != sessionID {
			continue
		}
		switch t.Kind {
		case wallet.KindDeposit:
			totals.Deposits += t.AmountTokens
		case wallet.KindBucketBill:
			totals.BucketBills += t.AmountTokens
		case wallet.KindPlatformFee:
			totals.PlatformFees += t.AmountTokens
		case wallet.KindEarnerCredit:
			totals.EarnerCredits += t.AmountTokens
		case wallet.KindRefund:
			totals.Refunds += t.AmountTokens
		}
	}
	return totals, nil
}

// --- session.Repository ---

func copySession(in *session.Session) *session.Session {
	cp := *in
	if in.EarnerID != nil {
		id := *in.EarnerID
		cp.EarnerID = &id
	}
	if in.ClosedAt != nil {
		t := *in.ClosedAt
		cp.ClosedAt = &t
	}
	if in.CloseReason != nil {
		r := *in.CloseReason
		cp.CloseReason = &r
	}
	return &cp
}

// Create implements session.Repository.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	s.nextSess++
	sess.ID = s.nextSess
	s.sessions[sess.SessionID] = copySession(sess)
	return nil
}

// GetByID implements session.Repository.
func (s *Store) GetByID(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return copySession(stored), nil
}

// Update implements session.Repository with a version compare-and-swap.
func (s *Store) Update(ctx context.Context, sess *session.Session) error {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	stored, ok := s.sessions[sess.SessionID]
	if !ok {
		return session.ErrVersionConflict
	}
	if stored.Version != sess.Version {
		return session.ErrVersionConflict
	}
	sess.Version++
	s.sessions[sess.SessionID] = copySession(sess)
	return nil
}

// FindOpenBetween implements session.Repository.
func (s *Store) FindOpenBetween(ctx context.Context, a, b uuid.UUID) (*session.Session, error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	for _, stored := range s.sessions {
		if stored.IsClosed() {
			continue
		}
		if (stored.ParticipantA == a && stored.ParticipantB == b) ||
			(stored.ParticipantA == b && stored.ParticipantB == a) {
			return copySession(stored), nil
		}
	}
	return nil, nil
}

// ListOpenIdleSince implements session.Repository.
func (s *Store) ListOpenIdleSince(ctx context.Context, cutoff time.Time, limit int) ([]*session.Session, error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	out := make([]*session.Session, 0)
	for _, stored := range s.sessions {
		if stored.IsClosed() || !stored.LastMessageAt.Before(cutoff) {
			continue
		}
		out = append(out, copySession(stored))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- billing.ProfileStore ---

// SeedProfile registers a billing profile for lookup.
func (s *Store) SeedProfile(p *billing.Profile) {
	s.profMu.Lock()
	defer s.profMu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
}

// GetBillingProfile implements billing.ProfileStore.
func (s *Store) GetBillingProfile(ctx context.Context, userID uuid.UUID) (*billing.Profile, error) {
	s.profMu.RLock()
	defer s.profMu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, billing.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// --- audit.Repository ---

// CreateAuditEntry appends an audit entry.
func (s *Store) CreateAuditEntry(ctx context.Context, entry *audit.Entry) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.nextAudit++
	entry.ID = s.nextAudit
	cp := *entry
	s.audits = append(s.audits, &cp)
	return nil
}

// ListAuditByEntity lists audit entries for one entity, newest last.
func (s *Store) ListAuditByEntity(ctx context.Context, entityType audit.EntityType, entityID string, limit int) ([]*audit.Entry, error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	out := make([]*audit.Entry, 0)
	for _, e := range s.audits {
		if e.EntityType == entityType && e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- snapshot/restore for the replicated ledger node ---

type ledgerSnapshot struct {
	Accounts     []*wallet.Account     `json:"accounts"`
	Escrows      []*wallet.EscrowHold  `json:"escrows"`
	Transactions []*wallet.Transaction `json:"transactions"`
	NextAccount  int64                 `json:"nextAccount"`
	NextTx       int64                 `json:"nextTx"`
}

// SnapshotLedger serializes monetary state for Raft snapshots.
func (s *Store) SnapshotLedger() ([]byte, error) {
	s.mu.Lock()
	snap := ledgerSnapshot{NextAccount: s.nextAccID}
	for _, a := range s.accounts {
		snap.Accounts = append(snap.Accounts, copyAccount(a))
	}
	for _, h := range s.escrows {
		cp := *h
		snap.Escrows = append(snap.Escrows, &cp)
	}
	s.mu.Unlock()

	s.txMu.Lock()
	snap.NextTx = s.nextTx
	for _, t := range s.txs {
		snap.Transactions = append(snap.Transactions, copyTx(t))
	}
	s.txMu.Unlock()

	return json.Marshal(snap)
}

// RestoreLedger replaces monetary state from a Raft snapshot.
func (s *Store) RestoreLedger(data []byte) error {
	var snap ledgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.mu.Lock()
	s.accounts = make(map[uuid.UUID]*wallet.Account, len(snap.Accounts))
	for _, a := range snap.Accounts {
		s.accounts[a.UserID] = a
	}
	s.escrows = make(map[uuid.UUID]*wallet.EscrowHold, len(snap.Escrows))
	for _, h := range snap.Escrows {
		s.escrows[h.SessionID] = h
	}
	s.nextAccID = snap.NextAccount
	s.mu.Unlock()

	s.txMu.Lock()
	s.txs = snap.Transactions
	s.nextTx = snap.NextTx
	s.txMu.Unlock()
	return nil
}
