package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paire/chat-billing/internal/domain/audit"
)

// AuditRepository implements audit.Repository. Append-only.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Create(ctx context.Context, e *audit.Entry) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO audit_log (audit_id, entity_type, entity_id, action, actor, detail, signature, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, e.AuditID, e.EntityType, e.EntityID, e.Action, e.Actor, e.Detail, e.Signature, e.CreatedAt)
	return row.Scan(&e.ID)
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, audit_id, entity_type, entity_id, action, actor, detail, signature, created_at
		FROM audit_log WHERE entity_type=$1 AND entity_id=$2
		ORDER BY id ASC LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.AuditID, &e.EntityType, &e.EntityID, &e.Action, &e.Actor, &e.Detail, &e.Signature, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
