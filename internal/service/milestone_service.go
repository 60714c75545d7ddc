package service

import (
	"context"
	"strings"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/events"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

const (
	minStars = 1
	maxStars = 5
)

// MilestoneService records field progress and citizen feedback.
type MilestoneService struct {
	requestCore
}

// MilestoneInput describes a field milestone report.
type MilestoneInput struct {
	Type     domain.MilestoneType
	Notes    string
	Evidence []string
}

// RatingInput describes citizen feedback on a finished request.
type RatingInput struct {
	Stars         int
	Comment       string
	ReasonCodes   []string
	Disputed      bool
	DisputeReason string
}

// NewMilestoneService constructs the service.
func NewMilestoneService(deps Dependencies) *MilestoneService {
	return &MilestoneService{requestCore: newRequestCore(deps)}
}

// milestoneTarget maps a milestone to the status it implies.
func milestoneTarget(t domain.MilestoneType) (domain.RequestStatus, bool) {
	switch t {
	case domain.MilestoneArrived, domain.MilestoneWorkStarted:
		return domain.StatusInProgress, true
	case domain.MilestoneResolved:
		return domain.StatusResolved, true
	}
	return "", false
}

// AddMilestone appends a milestone and moves the request to the implied status.
// When the request already holds that status only the milestone is recorded.
func (s *MilestoneService) AddMilestone(ctx context.Context, actor domain.Actor, requestID string, input MilestoneInput) (*domain.ServiceRequest, error) {
	target, ok := milestoneTarget(input.Type)
	if !ok {
		names := make([]string, len(domain.MilestoneTypes))
		for i, t := range domain.MilestoneTypes {
			names[i] = string(t)
		}
		return nil, apperrors.NewValidationError("invalid milestone type", map[string]any{
			"milestone_type":   string(input.Type),
			"valid_milestones": names,
		})
	}
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	from := req.Status
	var transitionEvent *domain.AuditEvent
	if from != target {
		event, err := s.transition(ctx, req, target, actor)
		if err != nil {
			return nil, err
		}
		transitionEvent = &event
	}

	now := s.now()
	milestone := domain.Milestone{
		Type:      input.Type,
		Timestamp: now,
		Notes:     strings.TrimSpace(input.Notes),
		Evidence:  input.Evidence,
	}
	req.Milestones = append(req.Milestones, milestone)
	req.Timestamps.UpdatedAt = now

	if err := s.save(ctx, req, from); err != nil {
		return nil, err
	}

	if transitionEvent != nil {
		s.recordAudit(ctx, *transitionEvent)
	}
	meta := map[string]any{"milestone": string(input.Type)}
	if milestone.Notes != "" {
		meta["notes"] = milestone.Notes
	}
	if len(milestone.Evidence) > 0 {
		meta["evidence"] = milestone.Evidence
	}
	s.recordAudit(ctx, domain.AuditEvent{
		RequestID: req.RequestID,
		Type:      domain.AuditMilestone,
		Actor:     actor,
		Timestamp: now,
		Metadata:  meta,
	})

	if transitionEvent != nil {
		s.publishStatusChange(ctx, req, from, actor)
	}
	s.publishEvent(ctx, events.Event{
		Type:      events.EventMilestoneAdded,
		RequestID: req.RequestID,
		Actor:     actor,
		Payload:   events.MilestoneAddedPayload{Milestone: input.Type, Status: req.Status},
	})
	return req, nil
}

// Rate stores citizen feedback on a resolved or closed request. A later
// rating replaces the earlier one.
func (s *MilestoneService) Rate(ctx context.Context, actor domain.Actor, requestID string, input RatingInput) (*domain.Rating, error) {
	if input.Stars < minStars || input.Stars > maxStars {
		return nil, apperrors.NewValidationError("stars must be between 1 and 5", map[string]any{"stars": input.Stars})
	}
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusResolved && req.Status != domain.StatusClosed {
		return nil, apperrors.NewInvalidState("only resolved or closed requests can be rated", map[string]any{
			"request_id": req.RequestID,
			"status":     string(req.Status),
		})
	}

	now := s.now()
	rating := &domain.Rating{
		Stars:       input.Stars,
		Comment:     strings.TrimSpace(input.Comment),
		ReasonCodes: input.ReasonCodes,
		Disputed:    input.Disputed,
		CreatedAt:   now,
	}
	if input.Disputed {
		rating.DisputeReason = strings.TrimSpace(input.DisputeReason)
	}
	req.Rating = rating
	req.Timestamps.UpdatedAt = now

	if err := s.save(ctx, req, req.Status); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, domain.AuditEvent{
		RequestID: req.RequestID,
		Type:      domain.AuditRated,
		Actor:     actor,
		Timestamp: now,
		Metadata:  map[string]any{"stars": rating.Stars, "disputed": rating.Disputed},
	})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestRated,
		RequestID: req.RequestID,
		Actor:     actor,
		Payload:   events.RequestRatedPayload{Stars: rating.Stars, Disputed: rating.Disputed},
	})
	return rating, nil
}
