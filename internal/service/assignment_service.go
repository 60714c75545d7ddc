package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MaysHroub/cst-management-info-system/internal/dispatch"
	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/events"
	"github.com/MaysHroub/cst-management-info-system/internal/locking"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

const (
	defaultLockTTL = 10 * time.Second
	autoAssignID   = "auto_assign"
)

// AssignmentService dispatches requests to field agents.
type AssignmentService struct {
	requestCore
	agents  repository.AgentRepository
	engine  *dispatch.Engine
	locker  locking.Locker
	lockTTL time.Duration
}

// DispatchResult describes a completed dispatch.
type DispatchResult struct {
	Request   *domain.ServiceRequest
	Agent     domain.Agent
	Workload  int
	Automatic bool
	Trace     []dispatch.StageReport
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps Dependencies) *AssignmentService {
	core := newRequestCore(deps)
	locker := deps.Locker
	if locker == nil {
		locker = locking.NewLocalLocker()
	}
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &AssignmentService{
		requestCore: core,
		agents:      deps.AgentRepo,
		engine:      dispatch.NewEngine(deps.AgentRepo, deps.RequestRepo, deps.Tables, deps.Dispatch, core.now),
		locker:      locker,
		lockTTL:     ttl,
	}
}

// Dispatch assigns the request to agentCode when given, otherwise to the
// agent picked by the dispatch funnel. Dispatching an assigned request
// reassigns it and re-stamps assigned_at.
func (s *AssignmentService) Dispatch(ctx context.Context, actor domain.Actor, requestID string, agentCode *string) (*DispatchResult, error) {
	release, err := s.locker.Acquire(ctx, "dispatch:"+requestID, s.lockTTL)
	switch {
	case errors.Is(err, locking.ErrLocked):
		return nil, apperrors.NewConflict("request is being dispatched; retry", map[string]any{"request_id": requestID})
	case err != nil:
		// The status CAS still guards the write.
		s.logger.Warn("dispatch lock unavailable", zap.String("request_id", requestID), zap.Error(err))
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("dispatch lock release failed", zap.String("request_id", requestID), zap.Error(err))
			}
		}()
	}

	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := dispatch.CheckDispatchable(*req); err != nil {
		return nil, err
	}

	result := &DispatchResult{Automatic: agentCode == nil}
	mode := "manual"
	if result.Automatic {
		mode = "auto"
		decision, err := s.engine.Select(ctx, *req)
		if err != nil {
			if errors.Is(err, apperrors.ErrNoAgentAvailable) {
				s.metrics.RecordDispatch(ctx, mode, "no_agent")
			}
			return nil, err
		}
		result.Agent, result.Workload, result.Trace = decision.Agent, decision.Workload, decision.Trace
		if actor.Type == domain.ActorSystem {
			actor = domain.SystemActor(autoAssignID)
		}
	} else {
		agent, load, err := s.manualAgent(ctx, *agentCode)
		if err != nil {
			return nil, err
		}
		result.Agent, result.Workload = *agent, load
	}

	from := req.Status
	prevAgent := req.AssignedAgentID
	var event domain.AuditEvent
	if from == domain.StatusAssigned {
		now := s.now()
		req.Timestamps.AssignedAt = &now
		req.Timestamps.UpdatedAt = now
		event = domain.AuditEvent{
			RequestID: req.RequestID,
			Type:      string(domain.StatusAssigned),
			Actor:     actor,
			Timestamp: now,
			Metadata:  map[string]any{"from": string(from), "reassigned": true},
		}
	} else {
		event, err = s.transition(ctx, req, domain.StatusAssigned, actor)
		if err != nil {
			return nil, err
		}
	}
	code := result.Agent.Code
	req.AssignedAgentID = &code
	event.Metadata["agent_id"] = result.Agent.Code
	event.Metadata["agent_name"] = result.Agent.Name
	event.Metadata["automatic"] = result.Automatic

	if err := s.save(ctx, req, from); err != nil {
		return nil, err
	}
	result.Request = req

	s.recordAudit(ctx, event)
	s.metrics.RecordDispatch(ctx, mode, "assigned")
	s.logger.Info("request dispatched",
		zap.String("request_id", req.RequestID),
		zap.String("agent_code", result.Agent.Code),
		zap.String("mode", mode),
		zap.Int("workload", result.Workload))

	if from != domain.StatusAssigned {
		s.publishStatusChange(ctx, req, from, actor)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestAssigned,
		RequestID: req.RequestID,
		Actor:     actor,
		Payload: events.RequestAssignedPayload{
			AgentCode: result.Agent.Code,
			AgentName: result.Agent.Name,
			PrevAgent: prevAgent,
			Automatic: result.Automatic,
		},
	})
	return result, nil
}

func (s *AssignmentService) manualAgent(ctx context.Context, code string) (*domain.Agent, int, error) {
	agent, err := s.agents.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 0, apperrors.NewNotFound("agent", map[string]any{"agent_code": code})
		}
		return nil, 0, apperrors.NewStoreUnavailable(err)
	}
	if !agent.Active {
		return nil, 0, apperrors.NewNotFound("active agent", map[string]any{"agent_code": code, "active": false})
	}
	load, err := s.requests.CountOpenByAgent(ctx, code)
	if err != nil {
		return nil, 0, apperrors.NewStoreUnavailable(err)
	}
	return agent, load, nil
}
