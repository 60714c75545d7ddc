package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newRequest(id string, status domain.RequestStatus, created time.Time) *domain.ServiceRequest {
	return &domain.ServiceRequest{
		RequestID:  id,
		Status:     status,
		Category:   domain.CategoryPothole,
		Priority:   domain.PriorityMedium,
		Location:   domain.NewPoint(35.22, 31.78),
		Timestamps: domain.Timestamps{CreatedAt: created, UpdatedAt: created},
	}
}

func TestRequestStore_NextSequencePerYear(t *testing.T) {
	ctx := context.Background()
	s := NewRequestStore()

	for want := 1; want <= 3; want++ {
		got, err := s.NextSequence(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := s.NextSequence(ctx, 2027)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestRequestStore_CreateGetIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewRequestStore()
	req := newRequest("CST-2026-0001", domain.StatusNew, base)
	require.NoError(t, s.Create(ctx, req))
	assert.ErrorIs(t, s.Create(ctx, req), repository.ErrDuplicate)

	req.Description = "mutated after create"
	got, err := s.GetByRequestID(ctx, "CST-2026-0001")
	require.NoError(t, err)
	assert.Empty(t, got.Description)

	got.Comments = append(got.Comments, domain.Comment{ID: "x"})
	again, err := s.GetByRequestID(ctx, "CST-2026-0001")
	require.NoError(t, err)
	assert.Empty(t, again.Comments)

	_, err = s.GetByRequestID(ctx, "CST-2026-9999")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRequestStore_UpdateCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewRequestStore()
	require.NoError(t, s.Create(ctx, newRequest("CST-2026-0001", domain.StatusNew, base)))

	first, err := s.GetByRequestID(ctx, "CST-2026-0001")
	require.NoError(t, err)
	second, err := s.GetByRequestID(ctx, "CST-2026-0001")
	require.NoError(t, err)

	first.Status = domain.StatusTriaged
	require.NoError(t, s.Update(ctx, first, domain.StatusNew))
	assert.Equal(t, 1, first.Version)

	second.Status = domain.StatusClosed
	assert.ErrorIs(t, s.Update(ctx, second, domain.StatusNew), repository.ErrStaleWrite)

	// Right status but stale version.
	second.Status = domain.StatusAssigned
	assert.ErrorIs(t, s.Update(ctx, second, domain.StatusTriaged), repository.ErrStaleWrite)

	stored, err := s.GetByRequestID(ctx, "CST-2026-0001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTriaged, stored.Status)

	missing := newRequest("CST-2026-0404", domain.StatusNew, base)
	assert.ErrorIs(t, s.Update(ctx, missing, domain.StatusNew), repository.ErrNotFound)
}

func TestRequestStore_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewRequestStore()
	agent := "AG-1"

	r1 := newRequest("CST-2026-0001", domain.StatusNew, base)
	r2 := newRequest("CST-2026-0002", domain.StatusAssigned, base.Add(time.Hour))
	r2.AssignedAgentID = &agent
	assigned2 := base.Add(5 * time.Hour)
	r2.Timestamps.AssignedAt = &assigned2
	r3 := newRequest("CST-2026-0003", domain.StatusInProgress, base.Add(2*time.Hour))
	r3.AssignedAgentID = &agent
	r3.Category = domain.CategoryTrash
	r3.Priority = domain.PriorityHigh
	assigned3 := base.Add(3 * time.Hour)
	r3.Timestamps.AssignedAt = &assigned3
	for _, r := range []*domain.ServiceRequest{r1, r2, r3} {
		require.NoError(t, s.Create(ctx, r))
	}

	all, err := s.List(ctx, repository.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CST-2026-0003", "CST-2026-0002", "CST-2026-0001"}, ids(all))

	byAgent, err := s.List(ctx, repository.RequestFilter{AgentID: &agent, Sort: repository.SortRecentlyAssigned})
	require.NoError(t, err)
	assert.Equal(t, []string{"CST-2026-0002", "CST-2026-0003"}, ids(byAgent))

	trash := domain.CategoryTrash
	byCategory, err := s.List(ctx, repository.RequestFilter{Category: &trash})
	require.NoError(t, err)
	assert.Equal(t, []string{"CST-2026-0003"}, ids(byCategory))

	high := domain.PriorityHigh
	byPriority, err := s.List(ctx, repository.RequestFilter{Priority: &high})
	require.NoError(t, err)
	assert.Len(t, byPriority, 1)

	newOnly, err := s.List(ctx, repository.RequestFilter{Statuses: []domain.RequestStatus{domain.StatusNew}})
	require.NoError(t, err)
	assert.Equal(t, []string{"CST-2026-0001"}, ids(newOnly))

	paged, err := s.List(ctx, repository.RequestFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"CST-2026-0002"}, ids(paged))

	beyond, err := s.List(ctx, repository.RequestFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	open, err := s.CountOpenByAgent(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, 2, open)
	resolved, err := s.CountByAgent(ctx, agent, []domain.RequestStatus{domain.StatusResolved, domain.StatusClosed})
	require.NoError(t, err)
	assert.Zero(t, resolved)
}

func ids(reqs []domain.ServiceRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.RequestID
	}
	return out
}

var square = domain.NewPolygon([][2]float64{
	{35.20, 31.76}, {35.24, 31.76}, {35.24, 31.80}, {35.20, 31.80}, {35.20, 31.76},
})

func TestAgentStore(t *testing.T) {
	ctx := context.Background()
	s := NewAgentStore()
	agents := []domain.Agent{
		{Code: "AG-3", Active: true, Coverage: domain.Coverage{GeoFence: square}},
		{Code: "AG-1", Active: true, Coverage: domain.Coverage{GeoFence: square}},
		{Code: "AG-2", Active: false, Coverage: domain.Coverage{GeoFence: square}},
		{Code: "AG-4", Active: true},
	}
	for i := range agents {
		require.NoError(t, s.Create(ctx, &agents[i]))
	}
	assert.ErrorIs(t, s.Create(ctx, &agents[0]), repository.ErrDuplicate)

	covering, err := s.FindCovering(ctx, 35.22, 31.78)
	require.NoError(t, err)
	assert.Equal(t, []string{"AG-1", "AG-3"}, codes(covering))

	outside, err := s.FindCovering(ctx, 35.10, 31.70)
	require.NoError(t, err)
	assert.Empty(t, outside)

	sample, err := s.SampleActive(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AG-1", "AG-3"}, codes(sample))

	active, err := s.List(ctx, repository.AgentFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"AG-1", "AG-3", "AG-4"}, codes(active))

	at := base.Add(time.Hour)
	updated, err := s.SetActive(ctx, "AG-2", true, at)
	require.NoError(t, err)
	assert.True(t, updated.Active)
	assert.Equal(t, at, updated.UpdatedAt)

	all, err := s.List(ctx, repository.AgentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = s.SetActive(ctx, "AG-404", true, at)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.GetByCode(ctx, "AG-404")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func codes(agents []domain.Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.Code
	}
	return out
}

func TestAuditStore_AppendOnlyOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	require.NoError(t, s.Append(ctx, &domain.AuditEvent{ID: "2", RequestID: "R", Type: "triaged", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, s.Append(ctx, &domain.AuditEvent{ID: "1", RequestID: "R", Type: "created", Timestamp: base}))
	require.NoError(t, s.Append(ctx, &domain.AuditEvent{ID: "3", RequestID: "other", Type: "created", Timestamp: base}))

	events, err := s.ListByRequest(ctx, "R")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "created", events[0].Type)
	assert.Equal(t, "triaged", events[1].Type)

	none, err := s.ListByRequest(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestZoneStore(t *testing.T) {
	ctx := context.Background()
	s := NewZoneStore(
		domain.Zone{ZoneID: "ZONE-B", Name: "B", Boundary: *square},
		domain.Zone{ZoneID: "ZONE-A", Name: "A", Boundary: *domain.NewPolygon([][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}})},
	)

	zones, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "ZONE-A", zones[0].ZoneID)

	z, err := s.FindContaining(ctx, 35.22, 31.78)
	require.NoError(t, err)
	assert.Equal(t, "ZONE-B", z.ZoneID)

	_, err = s.FindContaining(ctx, 10, 10)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.GetByID(ctx, "ZONE-C")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
