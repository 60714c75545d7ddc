package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

type zoneRepository struct {
	pool *pgxpool.Pool
}

// NewZoneRepository instantiates the Postgres zone reader.
func NewZoneRepository(pool *pgxpool.Pool) ZoneRepository {
	return &zoneRepository{pool: pool}
}

const zoneColumns = `zone_id, name, ST_AsGeoJSON(boundary)`

func (r *zoneRepository) List(ctx context.Context) ([]domain.Zone, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+zoneColumns+` FROM zones ORDER BY zone_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Zone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *zone)
	}
	return result, rows.Err()
}

func (r *zoneRepository) GetByID(ctx context.Context, zoneID string) (*domain.Zone, error) {
	zone, err := scanZone(r.pool.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE zone_id=$1`, zoneID))
	if err != nil {
		return nil, translate(err)
	}
	return zone, nil
}

func (r *zoneRepository) FindContaining(ctx context.Context, lon, lat float64) (*domain.Zone, error) {
	const query = `SELECT ` + zoneColumns + ` FROM zones
        WHERE ST_Intersects(boundary, ST_SetSRID(ST_MakePoint($1, $2), 4326))
        ORDER BY zone_id LIMIT 1`
	zone, err := scanZone(r.pool.QueryRow(ctx, query, lon, lat))
	if err != nil {
		return nil, translate(err)
	}
	return zone, nil
}

func scanZone(row pgx.Row) (*domain.Zone, error) {
	var (
		zone     domain.Zone
		boundary []byte
	)
	if err := row.Scan(&zone.ZoneID, &zone.Name, &boundary); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(boundary, &zone.Boundary); err != nil {
		return nil, fmt.Errorf("decode zone boundary: %w", err)
	}
	return &zone, nil
}
