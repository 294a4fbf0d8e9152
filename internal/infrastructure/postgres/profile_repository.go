package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paire/chat-billing/internal/domain/billing"
)

// ProfileRepository implements billing.ProfileStore over the identity
// service's replicated billing_profiles table. Read-only: profiles are owned
// outside the engine.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) GetBillingProfile(ctx context.Context, userID uuid.UUID) (*billing.Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, gender_category, influencer_earn_on, earn_on_chat,
		       royal_tier, popularity_band, account_age_days
		FROM billing_profiles WHERE user_id=$1
	`, userID)
	var p billing.Profile
	if err := row.Scan(&p.UserID, &p.GenderCategory, &p.InfluencerEarnOn, &p.EarnOnChat,
		&p.RoyalTier, &p.PopularityBand, &p.AccountAgeDays); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}
