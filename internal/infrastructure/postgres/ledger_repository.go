package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paire/chat-billing/internal/domain/wallet"
)

// LedgerRepository implements wallet.Ledger on postgres. Per-key
// serialization comes from row locks: every monetary write runs in one
// transaction that locks the touched wallet rows (in stable user-id order)
// and the session's escrow row, so writes on unrelated keys proceed in
// parallel while same-key writes queue on the row lock.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// mapConflict translates serialization and deadlock aborts into the engine's
// typed conflict error so callers can retry with backoff.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return wallet.ErrConcurrentConflict
		}
	}
	return err
}

func (r *LedgerRepository) CreateAccount(ctx context.Context, userID uuid.UUID) (*wallet.Account, error) {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO wallet_accounts (user_id, available_balance, escrow_out, created_at, updated_at)
		VALUES ($1, 0, 0, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, now)
	if err != nil {
		return nil, mapConflict(err)
	}
	return r.GetAccount(ctx, userID)
}

func (r *LedgerRepository) GetAccount(ctx context.Context, userID uuid.UUID) (*wallet.Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, available_balance, escrow_out, created_at, updated_at
		FROM wallet_accounts WHERE user_id=$1
	`, userID)
	a, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, wallet.ErrAccountNotFound
	}
	return a, nil
}

func (r *LedgerRepository) Credit(ctx context.Context, userID uuid.UUID, amount int64) (*wallet.Account, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE wallet_accounts
		SET available_balance = available_balance + $1, updated_at = $2
		WHERE user_id = $3
		RETURNING id, user_id, available_balance, escrow_out, created_at, updated_at
	`, amount, time.Now().UTC(), userID)
	a, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, wallet.ErrAccountNotFound
	}
	return a, nil
}

func (r *LedgerRepository) Deposit(ctx context.Context, sessionID, payerID uuid.UUID, amount int64) (*wallet.Transaction, error) {
	var deposit *wallet.Transaction
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		acct, err := lockAccount(ctx, tx, payerID)
		if err != nil {
			return err
		}
		if acct == nil {
			return wallet.ErrAccountNotFound
		}
		if acct.AvailableBalance < amount {
			return wallet.ErrInsufficientBalance
		}
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, `
			UPDATE wallet_accounts
			SET available_balance = available_balance - $1, escrow_out = escrow_out + $1, updated_at = $2
			WHERE user_id = $3
		`, amount, now, payerID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO escrow_holds (session_id, payer_id, held_tokens, refunded, updated_at)
			VALUES ($1, $2, $3, FALSE, $4)
			ON CONFLICT (session_id) DO UPDATE
			SET held_tokens = escrow_holds.held_tokens + EXCLUDED.held_tokens,
			    refunded = FALSE, updated_at = EXCLUDED.updated_at
		`, sessionID, payerID, amount, now); err != nil {
			return err
		}
		deposit, err = insertTx(ctx, tx, &wallet.Transaction{
			TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindDeposit,
			FromUserID: payerID, ToUserID: wallet.PlatformAccountID,
			AmountTokens: amount, CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

func (r *LedgerRepository) BillBucket(ctx context.Context, sessionID uuid.UUID, earnerID *uuid.UUID, cost, feeNumerator, feeDenominator int64) (*wallet.BucketBill, error) {
	var result *wallet.BucketBill
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		hold, err := readEscrow(ctx, tx, sessionID, false)
		if err != nil {
			return err
		}
		if hold == nil {
			return wallet.ErrEscrowNotFound
		}

		// Wallet rows lock in stable user-id order, escrow row last, so
		// concurrent bills and deposits on overlapping keys cannot deadlock.
		ids := []uuid.UUID{hold.PayerID}
		if earnerID != nil && *earnerID != hold.PayerID {
			ids = append(ids, *earnerID)
		}
		sortUUIDs(ids)
		for _, id := range ids {
			acct, err := lockAccount(ctx, tx, id)
			if err != nil {
				return err
			}
			if acct == nil {
				return wallet.ErrAccountNotFound
			}
		}
		hold, err = readEscrow(ctx, tx, sessionID, true)
		if err != nil {
			return err
		}
		if hold == nil {
			return wallet.ErrEscrowNotFound
		}
		if hold.HeldTokens < cost {
			return wallet.ErrEscrowExhausted
		}

		now := time.Now().UTC()
		fee, credit := wallet.SplitBucket(cost, feeNumerator, feeDenominator)
		if earnerID == nil {
			fee, credit = cost, 0
		}

		if _, err := tx.Exec(ctx, `
			UPDATE escrow_holds SET held_tokens = held_tokens - $1, updated_at = $2 WHERE session_id = $3
		`, cost, now, sessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE wallet_accounts SET escrow_out = escrow_out - $1, updated_at = $2 WHERE user_id = $3
		`, cost, now, hold.PayerID); err != nil {
			return err
		}
		if earnerID != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE wallet_accounts SET available_balance = available_balance + $1, updated_at = $2 WHERE user_id = $3
			`, credit, now, *earnerID); err != nil {
				return err
			}
		}

		result = &wallet.BucketBill{EscrowRemaining: hold.HeldTokens - cost}
		if result.Bill, err = insertTx(ctx, tx, &wallet.Transaction{
			TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindBucketBill,
			FromUserID: hold.PayerID, ToUserID: wallet.PlatformAccountID,
			AmountTokens: cost, CreatedAt: now,
		}); err != nil {
			return err
		}
		if result.Fee, err = insertTx(ctx, tx, &wallet.Transaction{
			TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindPlatformFee,
			FromUserID: hold.PayerID, ToUserID: wallet.PlatformAccountID,
			AmountTokens: fee, CreatedAt: now,
		}); err != nil {
			return err
		}
		if earnerID != nil {
			if result.Credit, err = insertTx(ctx, tx, &wallet.Transaction{
				TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindEarnerCredit,
				FromUserID: hold.PayerID, ToUserID: *earnerID,
				AmountTokens: credit, CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *LedgerRepository) RefundUnused(ctx context.Context, sessionID uuid.UUID) (*wallet.Transaction, error) {
	var refund *wallet.Transaction
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		hold, err := readEscrow(ctx, tx, sessionID, false)
		if err != nil {
			return err
		}
		if hold == nil || hold.Refunded || hold.HeldTokens == 0 {
			return nil
		}
		acct, err := lockAccount(ctx, tx, hold.PayerID)
		if err != nil {
			return err
		}
		if acct == nil {
			return wallet.ErrAccountNotFound
		}
		hold, err = readEscrow(ctx, tx, sessionID, true)
		if err != nil {
			return err
		}
		if hold == nil || hold.Refunded || hold.HeldTokens == 0 {
			return nil
		}

		now := time.Now().UTC()
		amount := hold.HeldTokens
		if _, err := tx.Exec(ctx, `
			UPDATE escrow_holds SET held_tokens = 0, refunded = TRUE, updated_at = $1 WHERE session_id = $2
		`, now, sessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE wallet_accounts
			SET available_balance = available_balance + $1, escrow_out = escrow_out - $1, updated_at = $2
			WHERE user_id = $3
		`, amount, now, hold.PayerID); err != nil {
			return err
		}
		refund, err = insertTx(ctx, tx, &wallet.Transaction{
			TxID: uuid.New(), SessionID: sessionID, Kind: wallet.KindRefund,
			FromUserID: wallet.PlatformAccountID, ToUserID: hold.PayerID,
			AmountTokens: amount, CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func (r *LedgerRepository) EscrowBalance(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT held_tokens FROM escrow_holds WHERE session_id=$1
	`, sessionID)
	var held int64
	if err := row.Scan(&held); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return held, nil
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, sessionID uuid.UUID, limit int) ([]*wallet.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tx_id, session_id, kind, from_user_id, to_user_id, amount_tokens, created_at
		FROM ledger_transactions WHERE session_id=$1 ORDER BY id ASC LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*wallet.Transaction
	for rows.Next() {
		var t wallet.Transaction
		if err := rows.Scan(&t.ID, &t.TxID, &t.SessionID, &t.Kind, &t.FromUserID, &t.ToUserID, &t.AmountTokens, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *LedgerRepository) SessionTotals(ctx context.Context, sessionID uuid.UUID) (*wallet.SessionTotals, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kind, COALESCE(SUM(amount_tokens), 0)
		FROM ledger_transactions WHERE session_id=$1 GROUP BY kind
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := &wallet.SessionTotals{}
	for rows.Next() {
		var kind wallet.TxKind
		var sum int64
		if err := rows.Scan(&kind, &sum); err != nil {
			return nil, err
		}
		switch kind {
		case wallet.KindDeposit:
			totals.Deposits = sum
		case wallet.KindBucketBill:
			totals.BucketBills = sum
		case wallet.KindPlatformFee:
			totals.PlatformFees = sum
		case wallet.KindEarnerCredit:
			totals.EarnerCredits = sum
		case wallet.KindRefund:
			totals.Refunds = sum
		}
	}
	return totals, rows.Err()
}

func (r *LedgerRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapConflict(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return mapConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapConflict(err)
	}
	return nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*wallet.Account, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, user_id, available_balance, escrow_out, created_at, updated_at
		FROM wallet_accounts WHERE user_id=$1 FOR UPDATE
	`, userID)
	return scanAccount(row)
}

func readEscrow(ctx context.Context, tx pgx.Tx, sessionID uuid.UUID, forUpdate bool) (*wallet.EscrowHold, error) {
	query := `
		SELECT session_id, payer_id, held_tokens, refunded, updated_at
		FROM escrow_holds WHERE session_id=$1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	row := tx.QueryRow(ctx, query, sessionID)
	var h wallet.EscrowHold
	if err := row.Scan(&h.SessionID, &h.PayerID, &h.HeldTokens, &h.Refunded, &h.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func insertTx(ctx context.Context, tx pgx.Tx, t *wallet.Transaction) (*wallet.Transaction, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO ledger_transactions (tx_id, session_id, kind, from_user_id, to_user_id, amount_tokens, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, t.TxID, t.SessionID, t.Kind, t.FromUserID, t.ToUserID, t.AmountTokens, t.CreatedAt)
	if err := row.Scan(&t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func scanAccount(row pgx.Row) (*wallet.Account, error) {
	var a wallet.Account
	if err := row.Scan(&a.ID, &a.UserID, &a.AvailableBalance, &a.EscrowOut, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func sortUUIDs(ids []uuid.UUID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && strings.Compare(ids[j].String(), ids[j-1].String()) < 0; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
