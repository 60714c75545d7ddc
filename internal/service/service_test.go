package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/events"
	"github.com/MaysHroub/cst-management-info-system/internal/locking"
	"github.com/MaysHroub/cst-management-info-system/internal/policy"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
	"github.com/MaysHroub/cst-management-info-system/internal/repository/memory"
)

// Wednesday 10:30 UTC.
var fixedNow = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

// Well away from every sensitive location in the default tables.
const (
	farLon      = 35.2300
	farLat      = 31.7767
	hospitalLon = 35.2137
	hospitalLat = 31.7683
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	clock     *testClock
	requests  *memory.RequestStore
	agentRepo *memory.AgentStore
	audit     *memory.AuditStore
	locker    *locking.LocalLocker
	published *recorder

	svc        *RequestService
	assign     *AssignmentService
	milestones *MilestoneService
	agents     *AgentService
	zones      *ZoneService
}

func newFixture(t *testing.T, opts ...func(*Dependencies)) *fixture {
	t.Helper()
	f := &fixture{
		clock:     &testClock{now: fixedNow},
		requests:  memory.NewRequestStore(),
		agentRepo: memory.NewAgentStore(),
		audit:     memory.NewAuditStore(),
		locker:    locking.NewLocalLocker(),
		published: &recorder{},
	}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, et := range []events.EventType{
		events.EventRequestCreated, events.EventStatusChanged, events.EventPriorityChanged,
		events.EventRequestAssigned, events.EventMilestoneAdded, events.EventRequestRated,
		events.EventRequestEscalated, events.EventCommentAdded,
	} {
		dispatcher.Subscribe(et, f.published.handle)
	}

	deps := Dependencies{
		RequestRepo: f.requests,
		AgentRepo:   f.agentRepo,
		AuditRepo:   f.audit,
		ZoneRepo:    memory.NewZoneStore(),
		Dispatcher:  dispatcher,
		Locker:      f.locker,
		Logger:      zap.NewNop(),
		Tables:      policy.Default(),
		LockTTL:     time.Second,
		Clock:       f.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = NewRequestService(deps)
	f.assign = NewAssignmentService(deps)
	f.milestones = NewMilestoneService(deps)
	f.agents = NewAgentService(deps)
	f.zones = NewZoneService(deps)
	return f
}

var (
	staff  = domain.Actor{Type: domain.ActorStaff, ID: "staff-1"}
	system = domain.SystemActor("anonymous")
)

func (f *fixture) submit(t *testing.T, category domain.Category, priority domain.Priority, lon, lat float64) *domain.ServiceRequest {
	t.Helper()
	req, err := f.svc.Submit(context.Background(), SubmitInput{
		CitizenID:   "citizen-42",
		Category:    category,
		Description: "broken asphalt on the main road",
		Priority:    priority,
		Location:    domain.NewPoint(lon, lat),
	})
	require.NoError(t, err)
	return req
}

// triaged submits a far-away pothole and moves it to triaged.
func (f *fixture) triaged(t *testing.T) *domain.ServiceRequest {
	t.Helper()
	req := f.submit(t, domain.CategoryPothole, domain.PriorityMedium, farLon, farLat)
	req, err := f.svc.Transition(context.Background(), staff, req.RequestID, domain.StatusTriaged)
	require.NoError(t, err)
	return req
}

// fence is a square around the far point.
func fence() *domain.Polygon {
	return domain.NewPolygon([][2]float64{
		{35.22, 31.77}, {35.24, 31.77}, {35.24, 31.79}, {35.22, 31.79}, {35.22, 31.77},
	})
}

func (f *fixture) registerAgent(t *testing.T, code string, skills ...string) *domain.Agent {
	t.Helper()
	agent, err := f.agents.Register(context.Background(), AgentInput{
		Code:       code,
		Name:       "Agent " + code,
		Department: "public works",
		Skills:     skills,
		Coverage:   domain.Coverage{ZoneIDs: []string{"ZONE-DT"}, GeoFence: fence()},
		Schedule:   domain.Schedule{OnCall: true},
	})
	require.NoError(t, err)
	return agent
}

func (f *fixture) auditTypes(t *testing.T, requestID string) []string {
	t.Helper()
	stream, err := f.audit.ListByRequest(context.Background(), requestID)
	require.NoError(t, err)
	out := make([]string, len(stream))
	for i, e := range stream {
		out[i] = e.Type
	}
	return out
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, *domain.AuditEvent) error {
	return errors.New("audit store down")
}

func (failingAudit) ListByRequest(context.Context, string) ([]domain.AuditEvent, error) {
	return nil, errors.New("audit store down")
}

var _ repository.AuditRepository = failingAudit{}
