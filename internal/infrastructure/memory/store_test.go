package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paire/chat-billing/internal/domain/session"
	"github.com/paire/chat-billing/internal/domain/wallet"
)

func TestDepositAndEscrow(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	payer := uuid.New()
	sessionID := uuid.New()

	_, err := store.CreateAccount(ctx, payer)
	require.NoError(t, err)
	_, err = store.Credit(ctx, payer, 100)
	require.NoError(t, err)

	tx, err := store.Deposit(ctx, sessionID, payer, 30)
	require.NoError(t, err)
	assert.Equal(t, wallet.KindDeposit, tx.Kind)
	assert.Equal(t, int64(30), tx.AmountTokens)

	acct, err := store.GetAccount(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, int64(70), acct.AvailableBalance)
	assert.Equal(t, int64(30), acct.EscrowOut)

	held, err := store.EscrowBalance(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), held)

	// Overdraw is rejected, never clamped.
	_, err = store.Deposit(ctx, sessionID, payer, 1000)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
}

func TestBillBucketSplitsAndConserves(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	payer, earner := uuid.New(), uuid.New()
	sessionID := uuid.New()

	for _, id := range []uuid.UUID{payer, earner} {
		_, err := store.CreateAccount(ctx, id)
		require.NoError(t, err)
	}
	_, err := store.Credit(ctx, payer, 100)
	require.NoError(t, err)
	_, err = store.Deposit(ctx, sessionID, payer, 50)
	require.NoError(t, err)

	bill, err := store.BillBucket(ctx, sessionID, &earner, 10, 35, 100)
	require.NoError(t, err)
	require.NotNil(t, bill.Fee)
	require.NotNil(t, bill.Credit)
	assert.Equal(t, int64(3), bill.Fee.AmountTokens)
	assert.Equal(t, int64(7), bill.Credit.AmountTokens)
	assert.Equal(t, int64(40), bill.EscrowRemaining)

	earnerAcct, err := store.GetAccount(ctx, earner)
	require.NoError(t, err)
	assert.Equal(t, int64(7), earnerAcct.AvailableBalance)

	totals, err := store.SessionTotals(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, totals.BucketBills, totals.PlatformFees+totals.EarnerCredits)
}

func TestBillBucketPlatformEarns(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	payer := uuid.New()
	sessionID := uuid.New()

	_, err := store.CreateAccount(ctx, payer)
	require.NoError(t, err)
	_, err = store.Credit(ctx, payer, 20)
	require.NoError(t, err)
	_, err = store.Deposit(ctx, sessionID, payer, 20)
	require.NoError(t, err)

	bill, err := store.BillBucket(ctx, sessionID, nil, 10, 35, 100)
	require.NoError(t, err)
	require.NotNil(t, bill.Fee)
	assert.Nil(t, bill.Credit)
	assert.Equal(t, int64(10), bill.Fee.AmountTokens, "platform keeps the full bucket value")
}

func TestBillBucketEscrowExhausted(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	payer, earner := uuid.New(), uuid.New()
	sessionID := uuid.New()

	for _, id := range []uuid.UUID{payer, earner} {
		_, err := store.CreateAccount(ctx, id)
		require.NoError(t, err)
	}
	_, err := store.Credit(ctx, payer, 15)
	require.NoError(t, err)
	_, err = store.Deposit(ctx, sessionID, payer, 15)
	require.NoError(t, err)

	_, err = store.BillBucket(ctx, sessionID, &earner, 10, 35, 100)
	require.NoError(t, err)

	// Five tokens left, a full bucket costs ten: partial buckets never bill.
	_, err = store.BillBucket(ctx, sessionID, &earner, 10, 35, 100)
	assert.ErrorIs(t, err, wallet.ErrEscrowExhausted)

	held, err := store.EscrowBalance(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), held)
}

func TestRefundUnusedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	payer := uuid.New()
	sessionID := uuid.New()

	_, err := store.CreateAccount(ctx, payer)
	require.NoError(t, err)
	_, err = store.Credit(ctx, payer, 100)
	require.NoError(t, err)
	_, err = store.Deposit(ctx, sessionID, payer, 40)
	require.NoError(t, err)
	_, err = store.BillBucket(ctx, sessionID, nil, 10, 35, 100)
	require.NoError(t, err)

	tx, err := store.RefundUnused(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, wallet.KindRefund, tx.Kind)
	assert.Equal(t, int64(30), tx.AmountTokens)

	acct, err := store.GetAccount(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, int64(90), acct.AvailableBalance)
	assert.Equal(t, int64(0), acct.EscrowOut)

	// Second refund is a no-op, not a double credit.
	tx, err = store.RefundUnused(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, tx)

	acct, err = store.GetAccount(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, int64(90), acct.AvailableBalance)
}

func TestConcurrentBillingConservation(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	payer, earner := uuid.New(), uuid.New()
	sessionID := uuid.New()

	for _, id := range []uuid.UUID{payer, earner} {
		_, err := store.CreateAccount(ctx, id)
		require.NoError(t, err)
	}
	_, err := store.Credit(ctx, payer, 1000)
	require.NoError(t, err)
	_, err = store.Deposit(ctx, sessionID, payer, 500)
	require.NoError(t, err)

	// 60 workers race to bill against 50 buckets of escrow. Exactly 50 may
	// succeed and balances must never dip below zero.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, exhausted := 0, 0
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.BillBucket(ctx, sessionID, &earner, 10, 35, 100)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case err == wallet.ErrEscrowExhausted:
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, succeeded)
	assert.Equal(t, 10, exhausted)

	held, err := store.EscrowBalance(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), held)

	payerAcct, err := store.GetAccount(ctx, payer)
	require.NoError(t, err)
	earnerAcct, err := store.GetAccount(ctx, earner)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, payerAcct.AvailableBalance, int64(0))
	assert.Equal(t, int64(0), payerAcct.EscrowOut)

	// 50 buckets at 35/100: fee 3, credit 7 each.
	assert.Equal(t, int64(350), earnerAcct.AvailableBalance)

	totals, err := store.SessionTotals(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), totals.Deposits)
	assert.Equal(t, int64(500), totals.BucketBills)
	assert.Equal(t, totals.BucketBills, totals.PlatformFees+totals.EarnerCredits)
}

func TestConcurrentDepositsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	payer := uuid.New()

	_, err := store.CreateAccount(ctx, payer)
	require.NoError(t, err)
	_, err = store.Credit(ctx, payer, 100)
	require.NoError(t, err)

	// One wallet funds many sessions concurrently; only ten deposits of ten
	// can succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Deposit(ctx, uuid.New(), payer, 10)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if err != wallet.ErrInsufficientBalance {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	acct, err := store.GetAccount(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.AvailableBalance)
	assert.Equal(t, int64(100), acct.EscrowOut)
}

func TestSessionRepositoryCAS(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	sess := &session.Session{
		SessionID:     uuid.New(),
		ParticipantA:  uuid.New(),
		ParticipantB:  uuid.New(),
		PayerID:       uuid.New(),
		State:         session.StateFreePhase,
		CreatedAt:     time.Now().UTC(),
		LastMessageAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, sess))

	loaded, err := store.GetByID(ctx, sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	stale, err := store.GetByID(ctx, sess.SessionID)
	require.NoError(t, err)

	loaded.WordsAccumulated = 12
	require.NoError(t, store.Update(ctx, loaded))

	// The second writer holds the old version and must lose.
	stale.WordsAccumulated = 99
	assert.ErrorIs(t, store.Update(ctx, stale), session.ErrVersionConflict)

	fresh, err := store.GetByID(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 12, fresh.WordsAccumulated)
}

func TestFindOpenBetween(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	a, b := uuid.New(), uuid.New()

	sess := &session.Session{
		SessionID:     uuid.New(),
		ParticipantA:  a,
		ParticipantB:  b,
		PayerID:       a,
		State:         session.StateFreePhase,
		CreatedAt:     time.Now().UTC(),
		LastMessageAt: time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, sess))

	found, err := store.FindOpenBetween(ctx, b, a)
	require.NoError(t, err)
	require.NotNil(t, found, "pair lookup is direction independent")
	assert.Equal(t, sess.SessionID, found.SessionID)

	now := time.Now().UTC()
	found.State = session.StateClosed
	found.ClosedAt = &now
	require.NoError(t, store.Update(ctx, found))

	gone, err := store.FindOpenBetween(ctx, a, b)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	payer := uuid.New()
	sessionID := uuid.New()

	_, err := store.CreateAccount(ctx, payer)
	require.NoError(t, err)
	_, err = store.Credit(ctx, payer, 100)
	require.NoError(t, err)
	_, err = store.Deposit(ctx, sessionID, payer, 40)
	require.NoError(t, err)

	snap, err := store.SnapshotLedger()
	require.NoError(t, err)

	restored := NewStore()
	require.NoError(t, restored.RestoreLedger(snap))

	acct, err := restored.GetAccount(ctx, payer)
	require.NoError(t, err)
	assert.Equal(t, int64(60), acct.AvailableBalance)
	assert.Equal(t, int64(40), acct.EscrowOut)

	held, err := restored.EscrowBalance(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), held)
}
