package chat

import (
	"context"

	"github.com/google/uuid"
)

// ModerationClient screens message content before it is counted or billed.
// A rejected message never advances session state.
type ModerationClient interface {
	IsMessageAllowed(ctx context.Context, text string) (bool, error)
}

// TopUpClient asks the external payment processor to settle more tokens for
// a user. Called only when a deposit fails on available balance.
type TopUpClient interface {
	RequestTopUp(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)
}

// AllowAllModeration passes every message. Used when moderation runs
// upstream of the engine.
type AllowAllModeration struct{}

func (AllowAllModeration) IsMessageAllowed(ctx context.Context, text string) (bool, error) {
	return true, nil
}

// NoTopUp declines every top-up request.
type NoTopUp struct{}

func (NoTopUp) RequestTopUp(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	return false, nil
}
