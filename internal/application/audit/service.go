package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paire/chat-billing/internal/domain/audit"
)

// Service mirrors engine activity into the append-only audit log. Writes are
// asynchronous: audit emission never blocks or fails the ledger operation
// that produced the record.
type Service struct {
	repo    audit.Repository
	signKey []byte
	logger  zerolog.Logger
}

func NewService(repo audit.Repository, signKey []byte, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		signKey: signKey,
		logger:  logger.With().Str("service", "audit").Logger(),
	}
}

// Log records an audit entry asynchronously.
func (s *Service) Log(entry *audit.Entry) {
	go func() {
		if err := s.LogSync(context.Background(), entry); err != nil {
			s.logger.Error().Err(err).
				Str("entityType", string(entry.EntityType)).
				Str("entityId", entry.EntityID).
				Str("action", string(entry.Action)).
				Msg("failed to create audit entry")
		}
	}()
}

// LogSync records an audit entry synchronously.
func (s *Service) LogSync(ctx context.Context, entry *audit.Entry) error {
	if entry.AuditID == uuid.Nil {
		entry.AuditID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}

	if len(s.signKey) > 0 {
		sig, err := audit.SignEntry(entry, s.signKey)
		if err != nil {
			return fmt.Errorf("failed to sign audit entry: %w", err)
		}
		entry.Signature = sig
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}

	s.logger.Debug().
		Str("auditId", entry.AuditID.String()).
		Str("entityType", string(entry.EntityType)).
		Str("entityId", entry.EntityID).
		Str("action", string(entry.Action)).
		Msg("audit entry created")
	return nil
}
