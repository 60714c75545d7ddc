// Package memory provides in-process implementations of the repository
// interfaces. Stored values are deep-copied on the way in and out so callers
// never share state with the store.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/geo"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
)

func clone[T any](v T) T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// RequestStore keeps service requests in a map keyed by request id.
type RequestStore struct {
	mu       sync.RWMutex
	requests map[string]domain.ServiceRequest
	counters map[int]int
}

// NewRequestStore returns an empty store.
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[string]domain.ServiceRequest),
		counters: make(map[int]int),
	}
}

var _ repository.RequestRepository = (*RequestStore)(nil)

func (s *RequestStore) NextSequence(_ context.Context, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[year]++
	return s.counters[year], nil
}

func (s *RequestStore) Create(_ context.Context, req *domain.ServiceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.RequestID]; ok {
		return repository.ErrDuplicate
	}
	s.requests[req.RequestID] = clone(*req)
	return nil
}

func (s *RequestStore) GetByRequestID(_ context.Context, requestID string) (*domain.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := clone(req)
	return &out, nil
}

func (s *RequestStore) Update(_ context.Context, req *domain.ServiceRequest, expected domain.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[req.RequestID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected || stored.Version != req.Version {
		return repository.ErrStaleWrite
	}
	req.Version++
	s.requests[req.RequestID] = clone(*req)
	return nil
}

func (s *RequestStore) List(_ context.Context, filter repository.RequestFilter) ([]domain.ServiceRequest, error) {
	s.mu.RLock()
	matched := make([]domain.ServiceRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if matches(req, filter) {
			matched = append(matched, req)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.Sort == repository.SortRecentlyAssigned {
			at, bt := assignedAt(a), assignedAt(b)
			if !at.Equal(bt) {
				return at.After(bt)
			}
		} else if !a.Timestamps.CreatedAt.Equal(b.Timestamps.CreatedAt) {
			return a.Timestamps.CreatedAt.After(b.Timestamps.CreatedAt)
		}
		return a.RequestID > b.RequestID
	})

	result := page(matched, filter.Limit, filter.Offset)
	out := make([]domain.ServiceRequest, len(result))
	for i, req := range result {
		out[i] = clone(req)
	}
	return out, nil
}

func (s *RequestStore) CountByAgent(_ context.Context, agentCode string, statuses []domain.RequestStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter := repository.RequestFilter{AgentID: &agentCode, Statuses: statuses}
	n := 0
	for _, req := range s.requests {
		if matches(req, filter) {
			n++
		}
	}
	return n, nil
}

func (s *RequestStore) CountOpenByAgent(ctx context.Context, agentCode string) (int, error) {
	return s.CountByAgent(ctx, agentCode, domain.WorkloadStatuses)
}

func matches(req domain.ServiceRequest, filter repository.RequestFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, s := range filter.Statuses {
			if req.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Category != nil && req.Category != *filter.Category {
		return false
	}
	if filter.Priority != nil && req.Priority != *filter.Priority {
		return false
	}
	if filter.AgentID != nil && (req.AssignedAgentID == nil || *req.AssignedAgentID != *filter.AgentID) {
		return false
	}
	return true
}

func assignedAt(req domain.ServiceRequest) time.Time {
	if req.Timestamps.AssignedAt == nil {
		return time.Time{}
	}
	return *req.Timestamps.AssignedAt
}

// AgentStore keeps agents keyed by code.
type AgentStore struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
}

// NewAgentStore returns an empty store.
func NewAgentStore() *AgentStore {
	return &AgentStore{agents: make(map[string]domain.Agent)}
}

var _ repository.AgentRepository = (*AgentStore)(nil)

func (s *AgentStore) Create(_ context.Context, agent *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.Code]; ok {
		return repository.ErrDuplicate
	}
	s.agents[agent.Code] = clone(*agent)
	return nil
}

func (s *AgentStore) GetByCode(_ context.Context, code string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := clone(agent)
	return &out, nil
}

func (s *AgentStore) List(_ context.Context, filter repository.AgentFilter) ([]domain.Agent, error) {
	agents := s.sorted(func(a domain.Agent) bool { return !filter.ActiveOnly || a.Active })
	return page(agents, filter.Limit, filter.Offset), nil
}

func (s *AgentStore) SetActive(_ context.Context, code string, active bool, at time.Time) (*domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	agent.Active = active
	agent.UpdatedAt = at
	s.agents[code] = agent
	out := clone(agent)
	return &out, nil
}

func (s *AgentStore) FindCovering(_ context.Context, lon, lat float64) ([]domain.Agent, error) {
	return s.sorted(func(a domain.Agent) bool {
		fence := a.Coverage.GeoFence
		return a.Active && fence != nil && geo.PolygonContains(fence.Coordinates, lon, lat)
	}), nil
}

func (s *AgentStore) SampleActive(_ context.Context, n int) ([]domain.Agent, error) {
	active := s.sorted(func(a domain.Agent) bool { return a.Active })
	if n >= 0 && len(active) > n {
		active = active[:n]
	}
	return active, nil
}

// sorted returns copies of the agents accepted by keep, ordered by code.
func (s *AgentStore) sorted(keep func(domain.Agent) bool) []domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if keep(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// AuditStore is an append-only in-memory event log.
type AuditStore struct {
	mu     sync.RWMutex
	events map[string][]domain.AuditEvent
}

// NewAuditStore returns an empty log.
func NewAuditStore() *AuditStore {
	return &AuditStore{events: make(map[string][]domain.AuditEvent)}
}

var _ repository.AuditRepository = (*AuditStore)(nil)

func (s *AuditStore) Append(_ context.Context, event *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RequestID] = append(s.events[event.RequestID], clone(*event))
	return nil
}

func (s *AuditStore) ListByRequest(_ context.Context, requestID string) ([]domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.events[requestID]
	out := make([]domain.AuditEvent, len(stored))
	for i, e := range stored {
		out[i] = clone(e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ZoneStore serves a fixed set of zones.
type ZoneStore struct {
	zones []domain.Zone
}

// NewZoneStore returns a store holding zones, ordered by id.
func NewZoneStore(zones ...domain.Zone) *ZoneStore {
	sorted := clone(zones)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ZoneID < sorted[j].ZoneID })
	return &ZoneStore{zones: sorted}
}

var _ repository.ZoneRepository = (*ZoneStore)(nil)

func (s *ZoneStore) List(context.Context) ([]domain.Zone, error) {
	return clone(s.zones), nil
}

func (s *ZoneStore) GetByID(_ context.Context, zoneID string) (*domain.Zone, error) {
	for _, z := range s.zones {
		if z.ZoneID == zoneID {
			out := clone(z)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ZoneStore) FindContaining(_ context.Context, lon, lat float64) (*domain.Zone, error) {
	for _, z := range s.zones {
		if geo.PolygonContains(z.Boundary.Coordinates, lon, lat) {
			out := clone(z)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}
