//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/persistence"
	"github.com/MaysHroub/cst-management-info-system/migrations"
)

func startPostGIS(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgis/postgis:16-3.4",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "cst",
				"POSTGRES_PASSWORD": "cst",
				"POSTGRES_DB":       "cst",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://cst:cst@%s:%s/cst?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, migrations.FS, zap.NewNop()))
	return pool
}

func TestPostgresRepositories(t *testing.T) {
	pool := startPostGIS(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	requests := NewRequestRepository(pool)
	agents := NewAgentRepository(pool)
	audit := NewAuditRepository(pool)
	zones := NewZoneRepository(pool)

	t.Run("sequence counts per year", func(t *testing.T) {
		first, err := requests.NextSequence(ctx, 2026)
		require.NoError(t, err)
		second, err := requests.NextSequence(ctx, 2026)
		require.NoError(t, err)
		other, err := requests.NextSequence(ctx, 2027)
		require.NoError(t, err)
		assert.Equal(t, first+1, second)
		assert.Equal(t, 1, other)
	})

	t.Run("request create update and conflict", func(t *testing.T) {
		req := &domain.ServiceRequest{
			RequestID:   "CST-2026-0001",
			CitizenID:   "c-1",
			Category:    domain.CategoryPothole,
			Description: "deep hole",
			Priority:    domain.PriorityMedium,
			Status:      domain.StatusNew,
			Location:    domain.NewPoint(35.2137, 31.7683),
			Timestamps:  domain.Timestamps{CreatedAt: now, UpdatedAt: now},
			Version:     1,
		}
		require.NoError(t, requests.Create(ctx, req))
		assert.ErrorIs(t, requests.Create(ctx, req), ErrDuplicate)

		stored, err := requests.GetByRequestID(ctx, req.RequestID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNew, stored.Status)

		stored.Status = domain.StatusTriaged
		require.NoError(t, requests.Update(ctx, stored, domain.StatusNew))
		assert.Equal(t, 2, stored.Version)

		stale := *req
		stale.Status = domain.StatusClosed
		assert.ErrorIs(t, requests.Update(ctx, &stale, domain.StatusNew), ErrStaleWrite)

		_, err = requests.GetByRequestID(ctx, "CST-2026-9999")
		assert.ErrorIs(t, err, ErrNotFound)

		listed, err := requests.List(ctx, RequestFilter{Statuses: []domain.RequestStatus{domain.StatusTriaged}})
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, req.RequestID, listed[0].RequestID)
	})

	t.Run("agents covering a point", func(t *testing.T) {
		fence := domain.NewPolygon([][2]float64{
			{35.20, 31.76}, {35.23, 31.76}, {35.23, 31.78}, {35.20, 31.78}, {35.20, 31.76},
		})
		for _, a := range []domain.Agent{
			{Code: "AG-2", Name: "Rana", Skills: []string{"pothole"}, Coverage: domain.Coverage{GeoFence: fence}, Active: true},
			{Code: "AG-1", Name: "Omar", Skills: []string{"general"}, Coverage: domain.Coverage{GeoFence: fence}, Active: true},
			{Code: "AG-3", Name: "Lina", Skills: []string{"pothole"}, Active: true},
		} {
			a.CreatedAt, a.UpdatedAt = now, now
			require.NoError(t, agents.Create(ctx, &a))
		}

		covering, err := agents.FindCovering(ctx, 35.2137, 31.7683)
		require.NoError(t, err)
		require.Len(t, covering, 2)
		assert.Equal(t, "AG-1", covering[0].Code)

		updated, err := agents.SetActive(ctx, "AG-1", false, now.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, updated.Active)

		covering, err = agents.FindCovering(ctx, 35.2137, 31.7683)
		require.NoError(t, err)
		require.Len(t, covering, 1)
		assert.Equal(t, "AG-2", covering[0].Code)

		sample, err := agents.SampleActive(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, sample, 2)
	})

	t.Run("audit stream keeps order", func(t *testing.T) {
		for i, typ := range []string{domain.AuditCreated, string(domain.StatusTriaged)} {
			require.NoError(t, audit.Append(ctx, &domain.AuditEvent{
				ID:        uuid.NewString(),
				RequestID: "CST-2026-0001",
				Type:      typ,
				Actor:     domain.SystemActor("test"),
				Timestamp: now.Add(time.Duration(i) * time.Minute),
				Metadata:  map[string]any{},
			}))
		}
		events, err := audit.ListByRequest(ctx, "CST-2026-0001")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.AuditCreated, events[0].Type)
	})

	t.Run("seeded zones resolve points", func(t *testing.T) {
		all, err := zones.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		zone, err := zones.FindContaining(ctx, 35.2137, 31.7783)
		require.NoError(t, err)
		assert.Equal(t, "ZONE-DT", zone.ZoneID)

		_, err = zones.FindContaining(ctx, 10, 10)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
