package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates the Postgres request store.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

func (r *requestRepository) NextSequence(ctx context.Context, year int) (int, error) {
	const query = `
        INSERT INTO request_counters (year, last_value) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET last_value = request_counters.last_value + 1
        RETURNING last_value`
	var seq int
	if err := r.pool.QueryRow(ctx, query, year).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *requestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	const query = `
        INSERT INTO service_requests (request_id, status, category, priority, assigned_agent_id,
            location, version, doc, created_at, updated_at, assigned_at)
        VALUES ($1,$2,$3,$4,$5, ST_SetSRID(ST_MakePoint($6,$7), 4326), $8,$9,$10,$11,$12)`
	_, err = r.pool.Exec(ctx, query,
		req.RequestID,
		req.Status,
		req.Category,
		req.Priority,
		req.AssignedAgentID,
		req.Location.Lon(),
		req.Location.Lat(),
		req.Version,
		doc,
		req.Timestamps.CreatedAt,
		req.Timestamps.UpdatedAt,
		req.Timestamps.AssignedAt,
	)
	return translate(err)
}

func (r *requestRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.ServiceRequest, error) {
	const query = `SELECT doc FROM service_requests WHERE request_id=$1`
	var doc []byte
	if err := r.pool.QueryRow(ctx, query, requestID).Scan(&doc); err != nil {
		return nil, translate(err)
	}
	return decodeRequest(doc)
}

func (r *requestRepository) Update(ctx context.Context, req *domain.ServiceRequest, expected domain.RequestStatus) error {
	prevVersion := req.Version
	req.Version++
	doc, err := json.Marshal(req)
	if err != nil {
		req.Version = prevVersion
		return fmt.Errorf("encode request: %w", err)
	}

	const query = `
        UPDATE service_requests SET status=$2, category=$3, priority=$4, assigned_agent_id=$5,
            version=$6, doc=$7, updated_at=$8, assigned_at=$9
        WHERE request_id=$1 AND status=$10 AND version=$11`
	cmd, err := r.pool.Exec(ctx, query,
		req.RequestID,
		req.Status,
		req.Category,
		req.Priority,
		req.AssignedAgentID,
		req.Version,
		doc,
		req.Timestamps.UpdatedAt,
		req.Timestamps.AssignedAt,
		expected,
		prevVersion,
	)
	if err != nil {
		req.Version = prevVersion
		return err
	}
	if cmd.RowsAffected() == 0 {
		req.Version = prevVersion
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM service_requests WHERE request_id=$1)`, req.RequestID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleWrite
	}
	return nil
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]domain.ServiceRequest, error) {
	clauses, args := requestClauses(filter)

	order := "created_at DESC, request_id DESC"
	if filter.Sort == SortRecentlyAssigned {
		order = "assigned_at DESC NULLS LAST, request_id DESC"
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT doc FROM service_requests WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		strings.Join(clauses, " AND "), order, listLimit(filter.Limit), offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *requestRepository) CountByAgent(ctx context.Context, agentCode string, statuses []domain.RequestStatus) (int, error) {
	clauses, args := requestClauses(RequestFilter{AgentID: &agentCode, Statuses: statuses})
	query := `SELECT COUNT(*) FROM service_requests WHERE ` + strings.Join(clauses, " AND ")
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *requestRepository) CountOpenByAgent(ctx context.Context, agentCode string) (int, error) {
	return r.CountByAgent(ctx, agentCode, domain.WorkloadStatuses)
}

func requestClauses(filter RequestFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	return clauses, args
}

func scanRequests(rows pgx.Rows) ([]domain.ServiceRequest, error) {
	var result []domain.ServiceRequest
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		req, err := decodeRequest(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}
	return result, rows.Err()
}

func decodeRequest(doc []byte) (*domain.ServiceRequest, error) {
	var req domain.ServiceRequest
	if err := json.Unmarshal(doc, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}
