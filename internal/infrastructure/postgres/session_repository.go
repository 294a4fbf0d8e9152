package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paire/chat-billing/internal/domain/session"
)

// SessionRepository implements session.Repository. Updates are an optimistic
// compare-and-swap on the version column.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `
	id, session_id, participant_a, participant_b, payer_id, earner_id, resolved_rule,
	state, policy_unlimited_free, free_remaining_a, free_remaining_b,
	bucket_words, words_accumulated, pending_buckets,
	created_at, last_message_at, closed_at, close_reason, version`

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions
		(session_id, participant_a, participant_b, payer_id, earner_id, resolved_rule,
		 state, policy_unlimited_free, free_remaining_a, free_remaining_b,
		 bucket_words, words_accumulated, pending_buckets,
		 created_at, last_message_at, closed_at, close_reason, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id
	`, s.SessionID, s.ParticipantA, s.ParticipantB, s.PayerID, s.EarnerID, s.ResolvedRule,
		s.State, s.PolicyUnlimitedFree, s.FreeRemainingA, s.FreeRemainingB,
		s.BucketWords, s.WordsAccumulated, s.PendingBuckets,
		s.CreatedAt, s.LastMessageAt, s.ClosedAt, s.CloseReason, s.Version)
	return row.Scan(&s.ID)
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions WHERE session_id=$1
	`, sessionID)
	return scanSession(row)
}

func (r *SessionRepository) Update(ctx context.Context, s *session.Session) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chat_sessions
		SET state=$1, free_remaining_a=$2, free_remaining_b=$3,
		    words_accumulated=$4, pending_buckets=$5,
		    last_message_at=$6, closed_at=$7, close_reason=$8,
		    version=version+1
		WHERE session_id=$9 AND version=$10
	`, s.State, s.FreeRemainingA, s.FreeRemainingB,
		s.WordsAccumulated, s.PendingBuckets,
		s.LastMessageAt, s.ClosedAt, s.CloseReason,
		s.SessionID, s.Version)
	if err != nil {
		return mapConflict(err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *SessionRepository) FindOpenBetween(ctx context.Context, a, b uuid.UUID) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions
		WHERE state <> 'CLOSED'
		  AND ((participant_a=$1 AND participant_b=$2) OR (participant_a=$2 AND participant_b=$1))
		ORDER BY created_at DESC LIMIT 1
	`, a, b)
	return scanSession(row)
}

func (r *SessionRepository) ListOpenIdleSince(ctx context.Context, cutoff time.Time, limit int) ([]*session.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions
		WHERE state <> 'CLOSED' AND last_message_at < $1
		ORDER BY last_message_at ASC LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	var earnerID *uuid.UUID
	var closedAt *time.Time
	var closeReason *session.CloseReason
	if err := row.Scan(&s.ID, &s.SessionID, &s.ParticipantA, &s.ParticipantB,
		&s.PayerID, &earnerID, &s.ResolvedRule,
		&s.State, &s.PolicyUnlimitedFree, &s.FreeRemainingA, &s.FreeRemainingB,
		&s.BucketWords, &s.WordsAccumulated, &s.PendingBuckets,
		&s.CreatedAt, &s.LastMessageAt, &closedAt, &closeReason, &s.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.EarnerID = earnerID
	s.ClosedAt = closedAt
	s.CloseReason = closeReason
	return &s, nil
}
