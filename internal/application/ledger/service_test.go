package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/paire/chat-billing/internal/domain/billing"
	"github.com/paire/chat-billing/internal/domain/event"
	"github.com/paire/chat-billing/internal/domain/wallet"
	"github.com/paire/chat-billing/internal/domain/wallet/mocks"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (c *capturePublisher) Publish(ev *event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturePublisher) byType(t event.Type) []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*event.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *mocks.MockLedger, *capturePublisher) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockLedger(ctrl)
	hub := &capturePublisher{}
	svc := NewService(store, hub, nil, billing.DefaultPricing(), zerolog.Nop())
	svc.retryBase = time.Microsecond // keep retry tests fast
	return svc, store, hub
}

func TestDepositEmitsLedgerEvent(t *testing.T) {
	svc, store, hub := newTestService(t)
	sessionID, payer := uuid.New(), uuid.New()

	tx := &wallet.Transaction{TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindDeposit, AmountTokens: 50}
	store.EXPECT().Deposit(gomock.Any(), sessionID, payer, int64(50)).Return(tx, nil)
	store.EXPECT().GetAccount(gomock.Any(), payer).
		Return(&wallet.Account{UserID: payer, AvailableBalance: 200}, nil)

	got, err := svc.Deposit(context.Background(), sessionID, payer, 50)
	require.NoError(t, err)
	assert.Equal(t, tx, got)
	assert.Len(t, hub.byType(event.TypeLedgerRecorded), 1)
	assert.Empty(t, hub.byType(event.TypeLowBalanceWarning))
}

func TestDepositWarnsOnLowBalance(t *testing.T) {
	svc, store, hub := newTestService(t)
	sessionID, payer := uuid.New(), uuid.New()

	tx := &wallet.Transaction{TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindDeposit, AmountTokens: 50}
	store.EXPECT().Deposit(gomock.Any(), sessionID, payer, int64(50)).Return(tx, nil)
	// Post-deposit balance below one bucket cost triggers the warning.
	store.EXPECT().GetAccount(gomock.Any(), payer).
		Return(&wallet.Account{UserID: payer, AvailableBalance: 5}, nil)

	_, err := svc.Deposit(context.Background(), sessionID, payer, 50)
	require.NoError(t, err)

	warnings := hub.byType(event.TypeLowBalanceWarning)
	require.Len(t, warnings, 1)
	require.NotNil(t, warnings[0].UserID)
	assert.Equal(t, payer, *warnings[0].UserID)
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Deposit(context.Background(), uuid.New(), uuid.New(), 0)
	assert.Error(t, err)
	_, err = svc.Deposit(context.Background(), uuid.New(), uuid.New(), -10)
	assert.Error(t, err)
}

func TestBillBucketRetriesConflicts(t *testing.T) {
	svc, store, hub := newTestService(t)
	sessionID, earner := uuid.New(), uuid.New()

	bill := &wallet.BucketBill{
		Bill: &wallet.Transaction{TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindBucketBill, AmountTokens: 10},
		Fee:  &wallet.Transaction{TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindPlatformFee, AmountTokens: 3},
		Credit: &wallet.Transaction{
			TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindEarnerCredit, AmountTokens: 7,
		},
	}
	gomock.InOrder(
		store.EXPECT().BillBucket(gomock.Any(), sessionID, &earner, int64(10), int64(35), int64(100)).
			Return(nil, wallet.ErrConcurrentConflict),
		store.EXPECT().BillBucket(gomock.Any(), sessionID, &earner, int64(10), int64(35), int64(100)).
			Return(nil, wallet.ErrConcurrentConflict),
		store.EXPECT().BillBucket(gomock.Any(), sessionID, &earner, int64(10), int64(35), int64(100)).
			Return(bill, nil),
	)

	got, err := svc.BillBucket(context.Background(), sessionID, &earner)
	require.NoError(t, err)
	assert.Equal(t, bill, got)
	// Bill, fee and credit each mirror to the event hub.
	assert.Len(t, hub.byType(event.TypeLedgerRecorded), 3)
}

func TestBillBucketGivesUpAfterRetryBudget(t *testing.T) {
	svc, store, _ := newTestService(t)
	sessionID := uuid.New()

	store.EXPECT().BillBucket(gomock.Any(), sessionID, gomock.Nil(), int64(10), int64(35), int64(100)).
		Return(nil, wallet.ErrConcurrentConflict).
		Times(svc.maxRetries + 1)

	_, err := svc.BillBucket(context.Background(), sessionID, nil)
	assert.ErrorIs(t, err, wallet.ErrConcurrentConflict)
}

func TestBillBucketDoesNotRetryBusinessErrors(t *testing.T) {
	svc, store, _ := newTestService(t)
	sessionID := uuid.New()

	store.EXPECT().BillBucket(gomock.Any(), sessionID, gomock.Nil(), int64(10), int64(35), int64(100)).
		Return(nil, wallet.ErrEscrowExhausted)

	_, err := svc.BillBucket(context.Background(), sessionID, nil)
	assert.ErrorIs(t, err, wallet.ErrEscrowExhausted)
}

func TestRefundUnusedNoopEmitsNothing(t *testing.T) {
	svc, store, hub := newTestService(t)
	sessionID := uuid.New()

	store.EXPECT().RefundUnused(gomock.Any(), sessionID).Return(nil, nil)

	tx, err := svc.RefundUnused(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Empty(t, hub.events)
}
