package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaysHroub/cst-management-info-system/internal/dispatch"
	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/events"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

func TestDispatchPicksLeastLoadedAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "AG-1", "road")
	f.registerAgent(t, "AG-2", "road")

	// Give AG-1 an open task.
	busy := f.triaged(t)
	manual := "AG-1"
	_, err := f.assign.Dispatch(ctx, staff, busy.RequestID, &manual)
	require.NoError(t, err)

	req := f.triaged(t)
	f.clock.Advance(time.Minute)
	result, err := f.assign.Dispatch(ctx, system, req.RequestID, nil)
	require.NoError(t, err)

	assert.True(t, result.Automatic)
	assert.Equal(t, "AG-2", result.Agent.Code)
	assert.Equal(t, 0, result.Workload)
	require.Len(t, result.Trace, 4)
	assert.Equal(t, dispatch.StageGeo, result.Trace[0].Stage)

	stored, err := f.svc.Get(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, stored.Status)
	require.NotNil(t, stored.AssignedAgentID)
	assert.Equal(t, "AG-2", *stored.AssignedAgentID)
	require.NotNil(t, stored.Timestamps.AssignedAt)
	assert.Equal(t, fixedNow.Add(time.Minute), *stored.Timestamps.AssignedAt)

	stream, err := f.svc.Events(ctx, req.RequestID)
	require.NoError(t, err)
	last := stream[len(stream)-1]
	assert.Equal(t, "assigned", last.Type)
	assert.Equal(t, domain.SystemActor("auto_assign"), last.Actor)
	assert.Equal(t, "AG-2", last.Metadata["agent_id"])
	assert.Equal(t, "Agent AG-2", last.Metadata["agent_name"])

	assert.Contains(t, f.published.types(), events.EventRequestAssigned)
}

func TestDispatchKeepsStaffActor(t *testing.T) {
	f := newFixture(t)
	f.registerAgent(t, "AG-1", "road")
	req := f.triaged(t)

	_, err := f.assign.Dispatch(context.Background(), staff, req.RequestID, nil)
	require.NoError(t, err)

	stream, err := f.svc.Events(context.Background(), req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, staff, stream[len(stream)-1].Actor)
}

func TestDispatchRequiresTriage(t *testing.T) {
	f := newFixture(t)
	f.registerAgent(t, "AG-1", "road")
	req := f.submit(t, domain.CategoryPothole, domain.PriorityMedium, farLon, farLat)

	_, err := f.assign.Dispatch(context.Background(), system, req.RequestID, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = f.assign.Dispatch(context.Background(), system, "CST-2026-9999", nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDispatchWithoutAgents(t *testing.T) {
	f := newFixture(t)
	req := f.triaged(t)

	_, err := f.assign.Dispatch(context.Background(), system, req.RequestID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoAgentAvailable)

	stored, err := f.svc.Get(context.Background(), req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTriaged, stored.Status)
}

func TestDispatchStrictSkillStage(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Dispatch = dispatch.Options{Strict: true} })
	f.registerAgent(t, "AG-1", "water")
	req := f.triaged(t)

	_, err := f.assign.Dispatch(context.Background(), system, req.RequestID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoAgentAvailable)
	assert.Equal(t, dispatch.StageSkill, apperrors.ToDomainError(err).Details["stage"])
}

func TestDispatchManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "AG-1", "water")
	req := f.triaged(t)

	unknown := "AG-404"
	_, err := f.assign.Dispatch(ctx, staff, req.RequestID, &unknown)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.agents.SetActive(ctx, "AG-1", false)
	require.NoError(t, err)
	code := "AG-1"
	_, err = f.assign.Dispatch(ctx, staff, req.RequestID, &code)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "inactive agents cannot take work")

	_, err = f.agents.SetActive(ctx, "AG-1", true)
	require.NoError(t, err)
	result, err := f.assign.Dispatch(ctx, staff, req.RequestID, &code)
	require.NoError(t, err)
	assert.False(t, result.Automatic)
	assert.Equal(t, "AG-1", result.Agent.Code)
	assert.Empty(t, result.Trace)
}

func TestRedispatchReassigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "AG-1", "road")
	f.registerAgent(t, "AG-2", "road")
	req := f.triaged(t)

	first := "AG-1"
	_, err := f.assign.Dispatch(ctx, staff, req.RequestID, &first)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	second := "AG-2"
	result, err := f.assign.Dispatch(ctx, staff, req.RequestID, &second)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAssigned, result.Request.Status)
	assert.Equal(t, "AG-2", *result.Request.AssignedAgentID)
	assert.Equal(t, fixedNow.Add(2*time.Hour), *result.Request.Timestamps.AssignedAt)

	published := f.published.types()
	assert.Equal(t, events.EventRequestAssigned, published[len(published)-1])
	assert.NotEqual(t, events.EventStatusChanged, published[len(published)-2], "reassignment is not a status change")
}

func TestDispatchWhileLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "AG-1", "road")
	req := f.triaged(t)

	release, err := f.locker.Acquire(ctx, "dispatch:"+req.RequestID, time.Minute)
	require.NoError(t, err)

	_, err = f.assign.Dispatch(ctx, system, req.RequestID, nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, release(ctx))
	_, err = f.assign.Dispatch(ctx, system, req.RequestID, nil)
	assert.NoError(t, err)
}
