package session

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for chat sessions. Update is an optimistic
// compare-and-swap on Version: it fails with ErrVersionConflict when the
// stored version differs, and increments Version on success.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	// FindOpenBetween returns the open session between two participants,
	// in either order, or nil.
	FindOpenBetween(ctx context.Context, a, b uuid.UUID) (*Session, error)
	// ListOpenIdleSince returns open sessions whose last message predates
	// the cutoff, for the idle-timeout sweeper.
	ListOpenIdleSince(ctx context.Context, cutoff time.Time, limit int) ([]*Session, error)
}
