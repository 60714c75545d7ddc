package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

const (
	agentRequestLimit = 1000
	workloadFanOut    = 8
)

var completedStatuses = []domain.RequestStatus{domain.StatusResolved, domain.StatusClosed}

var weekdays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// AgentService manages the field agent registry.
type AgentService struct {
	agents   repository.AgentRepository
	requests repository.RequestRepository
	logger   *zap.Logger
	now      func() time.Time
}

// AgentInput describes an agent registration.
type AgentInput struct {
	Code       string
	Name       string
	Department string
	Skills     []string
	Coverage   domain.Coverage
	Schedule   domain.Schedule
}

// AgentView is an agent with its live workload.
type AgentView struct {
	domain.Agent
	CurrentWorkload int `json:"current_workload"`
}

// AssignedSummary is the short form of a request held by an agent.
type AssignedSummary struct {
	RequestID string               `json:"request_id"`
	Status    domain.RequestStatus `json:"status"`
	Category  domain.Category      `json:"category"`
	Priority  domain.Priority      `json:"priority"`
	Location  domain.Location      `json:"location"`
}

// AgentDetail adds completion statistics and held requests to AgentView.
type AgentDetail struct {
	AgentView
	CompletedCount   int               `json:"completed_count"`
	AssignedRequests []AssignedSummary `json:"assigned_requests"`
}

// NewAgentService constructs the service.
func NewAgentService(deps Dependencies) *AgentService {
	core := newRequestCore(deps)
	return &AgentService{
		agents:   deps.AgentRepo,
		requests: deps.RequestRepo,
		logger:   core.logger,
		now:      core.now,
	}
}

// Register adds an active agent. Agent codes are unique.
func (s *AgentService) Register(ctx context.Context, input AgentInput) (*domain.Agent, error) {
	if err := validateAgent(&input); err != nil {
		return nil, err
	}
	now := s.now()
	agent := &domain.Agent{
		Code:       input.Code,
		Name:       input.Name,
		Department: input.Department,
		Skills:     input.Skills,
		Coverage:   input.Coverage,
		Schedule:   input.Schedule,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("agent code already exists", map[string]any{"agent_code": input.Code})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	s.logger.Info("agent registered", zap.String("agent_code", agent.Code))
	return agent, nil
}

// List returns agents with their live workload.
func (s *AgentService) List(ctx context.Context, activeOnly bool, limit, offset int) ([]AgentView, error) {
	agents, err := s.agents.List(ctx, repository.AgentFilter{ActiveOnly: activeOnly, Limit: limit, Offset: offset})
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	views := make([]AgentView, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workloadFanOut)
	for i := range agents {
		g.Go(func() error {
			load, err := s.requests.CountOpenByAgent(gctx, agents[i].Code)
			if err != nil {
				return err
			}
			views[i] = AgentView{Agent: agents[i], CurrentWorkload: load}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return views, nil
}

// Get returns an agent with workload, completed count and held requests. The
// counts come from the store so they agree with List and dispatch; the
// request summary is capped at agentRequestLimit, newest first.
func (s *AgentService) Get(ctx context.Context, code string) (*AgentDetail, error) {
	agent, err := s.getAgent(ctx, code)
	if err != nil {
		return nil, err
	}

	var (
		held      []domain.ServiceRequest
		workload  int
		completed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		held, err = s.requests.List(gctx, repository.RequestFilter{
			AgentID: &agent.Code,
			Sort:    repository.SortNewestFirst,
			Limit:   agentRequestLimit,
		})
		return err
	})
	g.Go(func() error {
		var err error
		workload, err = s.requests.CountOpenByAgent(gctx, agent.Code)
		return err
	})
	g.Go(func() error {
		var err error
		completed, err = s.requests.CountByAgent(gctx, agent.Code, completedStatuses)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}

	detail := &AgentDetail{
		AgentView:        AgentView{Agent: *agent, CurrentWorkload: workload},
		CompletedCount:   completed,
		AssignedRequests: make([]AssignedSummary, 0, len(held)),
	}
	for _, req := range held {
		detail.AssignedRequests = append(detail.AssignedRequests, AssignedSummary{
			RequestID: req.RequestID,
			Status:    req.Status,
			Category:  req.Category,
			Priority:  req.Priority,
			Location:  req.Location,
		})
	}
	return detail, nil
}

// Tasks returns the agent's assigned and in-progress requests, most recently
// assigned first.
func (s *AgentService) Tasks(ctx context.Context, code string) ([]domain.ServiceRequest, error) {
	agent, err := s.getAgent(ctx, code)
	if err != nil {
		return nil, err
	}
	tasks, err := s.requests.List(ctx, repository.RequestFilter{
		Statuses: domain.WorkloadStatuses,
		AgentID:  &agent.Code,
		Sort:     repository.SortRecentlyAssigned,
		Limit:    agentRequestLimit,
	})
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if tasks == nil {
		tasks = []domain.ServiceRequest{}
	}
	return tasks, nil
}

// SetActive toggles whether the agent can be dispatched.
func (s *AgentService) SetActive(ctx context.Context, code string, active bool) (*domain.Agent, error) {
	agent, err := s.agents.SetActive(ctx, code, active, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_code": code})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	s.logger.Info("agent availability changed", zap.String("agent_code", code), zap.Bool("active", active))
	return agent, nil
}

func (s *AgentService) getAgent(ctx context.Context, code string) (*domain.Agent, error) {
	agent, err := s.agents.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_code": code})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return agent, nil
}

func validateAgent(input *AgentInput) error {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	input.Department = strings.TrimSpace(input.Department)
	if input.Code == "" {
		return apperrors.NewValidationError("agent_code is required", nil)
	}
	if input.Name == "" {
		return apperrors.NewValidationError("name is required", nil)
	}

	skills := make([]string, 0, len(input.Skills))
	for _, skill := range input.Skills {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if skill != "" {
			skills = append(skills, skill)
		}
	}
	if len(skills) == 0 {
		return apperrors.NewValidationError("at least one skill is required", nil)
	}
	input.Skills = skills
	if input.Coverage.ZoneIDs == nil {
		input.Coverage.ZoneIDs = []string{}
	}

	if err := validateGeoFence(input.Coverage.GeoFence); err != nil {
		return err
	}
	return validateSchedule(&input.Schedule)
}

func validateGeoFence(fence *domain.Polygon) error {
	if fence == nil {
		return nil
	}
	if fence.Type == "" {
		fence.Type = "Polygon"
	}
	if fence.Type != "Polygon" {
		return apperrors.NewValidationError("geo_fence must be a GeoJSON Polygon", map[string]any{"type": fence.Type})
	}
	if len(fence.Coordinates) == 0 {
		return apperrors.NewValidationError("geo_fence needs an exterior ring", nil)
	}
	for i, ring := range fence.Coordinates {
		if len(ring) < 4 || ring[0] != ring[len(ring)-1] {
			return apperrors.NewValidationError("geo_fence rings must be closed with at least four positions", map[string]any{"ring": i})
		}
		for _, p := range ring {
			if p[0] < -180 || p[0] > 180 || p[1] < -90 || p[1] > 90 {
				return apperrors.NewValidationError("geo_fence coordinates out of range", map[string]any{"ring": i})
			}
		}
	}
	return nil
}

func validateSchedule(schedule *domain.Schedule) error {
	if schedule.Shifts == nil {
		schedule.Shifts = []domain.Shift{}
	}
	if schedule.Timezone != "" {
		if _, err := time.LoadLocation(schedule.Timezone); err != nil {
			return apperrors.NewValidationError("unknown timezone", map[string]any{"timezone": schedule.Timezone})
		}
	}
	for i, shift := range schedule.Shifts {
		if !isWeekday(shift.Day) {
			return apperrors.NewValidationError("invalid shift day", map[string]any{"shift": i, "day": shift.Day})
		}
		start, errStart := time.Parse("15:04", shift.Start)
		end, errEnd := time.Parse("15:04", shift.End)
		if errStart != nil || errEnd != nil || len(shift.Start) != 5 || len(shift.End) != 5 {
			return apperrors.NewValidationError("shift times must use HH:MM", map[string]any{"shift": i})
		}
		if end.Before(start) {
			return apperrors.NewValidationError("shift must end after it starts", map[string]any{"shift": i})
		}
	}
	return nil
}

func isWeekday(day string) bool {
	day = strings.ToLower(strings.TrimSpace(day))
	if len(day) < 3 {
		return false
	}
	for _, d := range weekdays {
		if day[:3] == d {
			return true
		}
	}
	return false
}
