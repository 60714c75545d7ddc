package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the Postgres agent store.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	doc, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("encode agent: %w", err)
	}
	fence, err := geoFenceJSON(agent.Coverage.GeoFence)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO service_agents (agent_code, active, geo_fence, doc, created_at, updated_at)
        VALUES ($1, $2, ST_SetSRID(ST_GeomFromGeoJSON($3), 4326), $4, $5, $6)`
	_, err = r.pool.Exec(ctx, query,
		agent.Code,
		agent.Active,
		fence,
		doc,
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	return translate(err)
}

func (r *agentRepository) GetByCode(ctx context.Context, code string) (*domain.Agent, error) {
	var doc []byte
	if err := r.pool.QueryRow(ctx, `SELECT doc FROM service_agents WHERE agent_code=$1`, code).Scan(&doc); err != nil {
		return nil, translate(err)
	}
	return decodeAgent(doc)
}

func (r *agentRepository) List(ctx context.Context, filter AgentFilter) ([]domain.Agent, error) {
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	where := "1=1"
	if filter.ActiveOnly {
		where = "active"
	}
	query := fmt.Sprintf(`SELECT doc FROM service_agents WHERE %s ORDER BY agent_code LIMIT %d OFFSET %d`,
		where, listLimit(filter.Limit), offset)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAgents(rows)
}

func (r *agentRepository) SetActive(ctx context.Context, code string, active bool, at time.Time) (*domain.Agent, error) {
	const query = `
        UPDATE service_agents
        SET active=$2, updated_at=$3,
            doc = jsonb_set(jsonb_set(doc, '{active}', to_jsonb($2::boolean)), '{updated_at}', to_jsonb($3::timestamptz))
        WHERE agent_code=$1
        RETURNING doc`
	var doc []byte
	if err := r.pool.QueryRow(ctx, query, code, active, at).Scan(&doc); err != nil {
		return nil, translate(err)
	}
	return decodeAgent(doc)
}

func (r *agentRepository) FindCovering(ctx context.Context, lon, lat float64) ([]domain.Agent, error) {
	const query = `
        SELECT doc FROM service_agents
        WHERE active AND geo_fence IS NOT NULL
          AND ST_Intersects(geo_fence, ST_SetSRID(ST_MakePoint($1, $2), 4326))
        ORDER BY agent_code`
	rows, err := r.pool.Query(ctx, query, lon, lat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAgents(rows)
}

func (r *agentRepository) SampleActive(ctx context.Context, n int) ([]domain.Agent, error) {
	rows, err := r.pool.Query(ctx, `SELECT doc FROM service_agents WHERE active ORDER BY agent_code LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAgents(rows)
}

func geoFenceJSON(p *domain.Polygon) (*string, error) {
	if p == nil || len(p.Coordinates) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode geo fence: %w", err)
	}
	s := string(raw)
	return &s, nil
}

func scanAgents(rows pgx.Rows) ([]domain.Agent, error) {
	var result []domain.Agent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		agent, err := decodeAgent(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, *agent)
	}
	return result, rows.Err()
}

func decodeAgent(doc []byte) (*domain.Agent, error) {
	var agent domain.Agent
	if err := json.Unmarshal(doc, &agent); err != nil {
		return nil, fmt.Errorf("decode agent: %w", err)
	}
	return &agent, nil
}
