package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds the Postgres audit log.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	const query = `
        INSERT INTO audit_events (id, request_id, event_type, actor_type, actor_id, meta, at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.pool.Exec(ctx, query,
		event.ID,
		event.RequestID,
		event.Type,
		event.Actor.Type,
		event.Actor.ID,
		meta,
		event.Timestamp,
	)
	return translate(err)
}

func (r *auditRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id::text, request_id, event_type, actor_type, actor_id, meta, at
        FROM audit_events WHERE request_id=$1 ORDER BY at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEvent
	for rows.Next() {
		var (
			event domain.AuditEvent
			meta  []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.RequestID,
			&event.Type,
			&event.Actor.Type,
			&event.Actor.ID,
			&meta,
			&event.Timestamp,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
