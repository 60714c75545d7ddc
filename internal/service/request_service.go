package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/events"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
	"github.com/MaysHroub/cst-management-info-system/internal/sla"
	"github.com/MaysHroub/cst-management-info-system/internal/triage"
	"github.com/MaysHroub/cst-management-info-system/internal/workflow"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

const (
	maxDescriptionLength = 4000
	maxCommentLength     = 2000
	commentPreviewLength = 120
	submissionChannel    = "web"
)

// RequestService coordinates intake, triage and lifecycle changes of service requests.
type RequestService struct {
	requestCore
	zones   repository.ZoneRepository
	triager *triage.Triager
}

// SubmitInput describes a citizen submission.
type SubmitInput struct {
	CitizenID   string
	Anonymous   bool
	Category    domain.Category
	SubCategory string
	Description string
	Priority    domain.Priority
	Location    domain.Location
	Evidence    []domain.Evidence
}

// ListInput describes request listing filters. Empty strings match everything.
type ListInput struct {
	Status   string
	Category string
	Priority string
	AgentID  string
	Limit    int
	Offset   int
}

// NewRequestService constructs the service.
func NewRequestService(deps Dependencies) *RequestService {
	return &RequestService{
		requestCore: newRequestCore(deps),
		zones:       deps.ZoneRepo,
		triager:     triage.New(deps.Tables),
	}
}

// Submit triages a new request and stores it in status new.
func (s *RequestService) Submit(ctx context.Context, input SubmitInput) (*domain.ServiceRequest, error) {
	if err := validateSubmission(&input); err != nil {
		return nil, err
	}

	result, err := s.triager.Evaluate(triage.Input{
		Category: input.Category,
		Priority: input.Priority,
		Lon:      input.Location.Lon(),
		Lat:      input.Location.Lat(),
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	location := input.Location
	location.Type = "Point"
	if location.ZoneID == "" {
		location.ZoneID = s.zoneFor(ctx, location)
	}

	seq, err := s.requests.NextSequence(ctx, now.Year())
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}

	evidence := make([]domain.Evidence, 0, len(input.Evidence))
	for _, e := range input.Evidence {
		if e.UploadedAt.IsZero() {
			e.UploadedAt = now
		}
		evidence = append(evidence, e)
	}

	req := &domain.ServiceRequest{
		RequestID:   fmt.Sprintf("CST-%d-%04d", now.Year(), seq),
		CitizenID:   input.CitizenID,
		Anonymous:   input.Anonymous,
		Category:    input.Category,
		SubCategory: input.SubCategory,
		Description: input.Description,
		Priority:    result.Priority,
		Status:      domain.StatusNew,
		Location:    location,
		Workflow:    workflow.StateFor(domain.StatusNew),
		SLAPolicy:   result.SLA,
		Triage:      result.Info(now),
		Timestamps:  domain.Timestamps{CreatedAt: now, UpdatedAt: now},
		Evidence:    evidence,
		Comments:    []domain.Comment{},
		Milestones:  []domain.Milestone{},
		Version:     1,
	}

	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("request id already taken; retry", map[string]any{"request_id": req.RequestID})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}

	citizen := domain.Actor{Type: domain.ActorCitizen, ID: input.CitizenID}
	s.recordAudit(ctx, domain.AuditEvent{
		RequestID: req.RequestID,
		Type:      domain.AuditCreated,
		Actor:     citizen,
		Timestamp: now,
		Metadata:  map[string]any{"channel": submissionChannel},
	})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestCreated,
		RequestID: req.RequestID,
		Actor:     citizen,
		Payload: events.RequestCreatedPayload{
			Category:  req.Category,
			Priority:  req.Priority,
			Escalated: result.Escalated,
		},
	})
	return req, nil
}

// Get returns a request by id.
func (s *RequestService) Get(ctx context.Context, requestID string) (*domain.ServiceRequest, error) {
	return s.load(ctx, requestID)
}

// List returns requests newest first.
func (s *RequestService) List(ctx context.Context, input ListInput) ([]domain.ServiceRequest, error) {
	filter := repository.RequestFilter{
		Sort:   repository.SortNewestFirst,
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = repository.DefaultListLimit
	}
	if filter.Offset < 0 {
		return nil, apperrors.NewValidationError("skip must not be negative", map[string]any{"skip": input.Offset})
	}
	if input.Status != "" {
		status := domain.RequestStatus(input.Status)
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{
				"status":         input.Status,
				"valid_statuses": workflow.StatusNames(domain.AllStatuses),
			})
		}
		filter.Statuses = []domain.RequestStatus{status}
	}
	if input.Category != "" {
		category := domain.Category(input.Category)
		filter.Category = &category
	}
	if input.Priority != "" {
		priority := domain.Priority(input.Priority)
		if !priority.Valid() {
			return nil, apperrors.NewInvalidPriority(input.Priority, domain.PriorityNames())
		}
		filter.Priority = &priority
	}
	if input.AgentID != "" {
		agent := input.AgentID
		filter.AgentID = &agent
	}

	items, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return items, nil
}

// Transition moves a request to target when the workflow allows it.
func (s *RequestService) Transition(ctx context.Context, actor domain.Actor, requestID string, target domain.RequestStatus) (*domain.ServiceRequest, error) {
	if !target.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{
			"new_status":     string(target),
			"valid_statuses": workflow.StatusNames(domain.AllStatuses),
		})
	}
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	from := req.Status
	event, err := s.transition(ctx, req, target, actor)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, req, from); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, event)
	s.publishStatusChange(ctx, req, from, actor)
	return req, nil
}

// declaredPriority is the priority triage started from on submission. Older
// documents without triage metadata fall back to the current priority.
func declaredPriority(req *domain.ServiceRequest) domain.Priority {
	if req.Triage.OriginalPriority.Valid() {
		return req.Triage.OriginalPriority
	}
	return req.Priority
}

// Retriage re-runs triage from the citizen-declared priority, or forces
// override when given, and moves the request to triaged when it is not already
// there. The declared priority survives every pass in Triage.OriginalPriority.
func (s *RequestService) Retriage(ctx context.Context, actor domain.Actor, requestID string, override *domain.Priority) (*domain.ServiceRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	in := triage.Input{
		Category: req.Category,
		Priority: declaredPriority(req),
		Lon:      req.Location.Lon(),
		Lat:      req.Location.Lat(),
	}
	var result triage.Result
	if override != nil {
		result, err = s.triager.Override(in, *override)
	} else {
		result, err = s.triager.Evaluate(in)
	}
	if err != nil {
		return nil, err
	}

	from := req.Status
	var transitionEvent *domain.AuditEvent
	if from != domain.StatusTriaged {
		event, err := s.transition(ctx, req, domain.StatusTriaged, actor)
		if err != nil {
			return nil, err
		}
		transitionEvent = &event
	}

	now := s.now()
	oldPriority := req.Priority
	req.Priority = result.Priority
	req.SLAPolicy = result.SLA
	req.Triage = result.Info(now)
	req.Timestamps.UpdatedAt = now

	if err := s.save(ctx, req, from); err != nil {
		return nil, err
	}

	if transitionEvent != nil {
		s.recordAudit(ctx, *transitionEvent)
	}
	s.recordAudit(ctx, domain.AuditEvent{
		RequestID: req.RequestID,
		Type:      domain.AuditRetriaged,
		Actor:     actor,
		Timestamp: now,
		Metadata: map[string]any{
			"from_priority": string(oldPriority),
			"to_priority":   string(req.Priority),
			"escalated":     result.Escalated,
			"reason":        result.Reason,
			"policy_id":     req.SLAPolicy.PolicyID,
		},
	})
	if transitionEvent != nil {
		s.publishStatusChange(ctx, req, from, actor)
	}
	if oldPriority != req.Priority {
		s.publishEvent(ctx, events.Event{
			Type:      events.EventPriorityChanged,
			RequestID: req.RequestID,
			Actor:     actor,
			Payload: events.PriorityChangedPayload{
				OldPriority: oldPriority,
				NewPriority: req.Priority,
				Reason:      result.Reason,
			},
		})
	}
	return req, nil
}

// AddComment appends a note to the request.
func (s *RequestService) AddComment(ctx context.Context, actor domain.Actor, requestID, text string) (*domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("comment text is required", nil)
	}
	if len(text) > maxCommentLength {
		return nil, apperrors.NewValidationError("comment too long", map[string]any{"max_length": maxCommentLength})
	}
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	comment := domain.Comment{
		ID:        uuid.NewString(),
		Text:      text,
		AuthorID:  actor.ID,
		CreatedAt: now,
	}
	req.Comments = append(req.Comments, comment)
	req.Timestamps.UpdatedAt = now
	if err := s.save(ctx, req, req.Status); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, domain.AuditEvent{
		RequestID: req.RequestID,
		Type:      domain.AuditComment,
		Actor:     actor,
		Timestamp: now,
		Metadata:  map[string]any{"comment_id": comment.ID},
	})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventCommentAdded,
		RequestID: req.RequestID,
		Actor:     actor,
		Payload: events.CommentAddedPayload{
			CommentID:   comment.ID,
			BodyPreview: stringPreview(text, commentPreviewLength),
		},
	})
	return &comment, nil
}

// Escalate records a manual escalation request and bumps the counter.
func (s *RequestService) Escalate(ctx context.Context, actor domain.Actor, requestID, reason string) (*domain.ServiceRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("escalation reason is required", nil)
	}
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if workflow.IsTerminal(req.Status) {
		return nil, apperrors.NewInvalidState("closed requests cannot be escalated", map[string]any{
			"request_id": req.RequestID,
			"status":     string(req.Status),
		})
	}

	now := s.now()
	req.EscalationCount++
	req.Timestamps.UpdatedAt = now
	if err := s.save(ctx, req, req.Status); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, domain.AuditEvent{
		RequestID: req.RequestID,
		Type:      domain.AuditEscalation,
		Actor:     actor,
		Timestamp: now,
		Metadata:  map[string]any{"reason": reason},
	})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventRequestEscalated,
		RequestID: req.RequestID,
		Actor:     actor,
		Payload: events.RequestEscalatedPayload{
			Reason:          reason,
			EscalationCount: req.EscalationCount,
		},
	})
	return req, nil
}

// SLAStatus evaluates the request against its SLA policy at the current time.
func (s *RequestService) SLAStatus(ctx context.Context, requestID string) (sla.Evaluation, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return sla.Evaluation{}, err
	}
	return sla.Evaluate(*req, s.now()), nil
}

// Events returns the audit stream of a request in chronological order.
func (s *RequestService) Events(ctx context.Context, requestID string) ([]domain.AuditEvent, error) {
	if _, err := s.load(ctx, requestID); err != nil {
		return nil, err
	}
	items, err := s.audit.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	if items == nil {
		items = []domain.AuditEvent{}
	}
	return items, nil
}

func (s *RequestService) zoneFor(ctx context.Context, loc domain.Location) string {
	if s.zones == nil {
		return ""
	}
	zone, err := s.zones.FindContaining(ctx, loc.Lon(), loc.Lat())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("zone lookup failed", zap.Error(err))
		}
		return ""
	}
	return zone.ZoneID
}

func validateSubmission(input *SubmitInput) error {
	input.CitizenID = strings.TrimSpace(input.CitizenID)
	input.Description = strings.TrimSpace(input.Description)
	if input.CitizenID == "" {
		return apperrors.NewValidationError("citizen_id is required", nil)
	}
	if input.Description == "" {
		return apperrors.NewValidationError("description is required", nil)
	}
	if len(input.Description) > maxDescriptionLength {
		return apperrors.NewValidationError("description too long", map[string]any{"max_length": maxDescriptionLength})
	}
	if input.Location.Type != "" && input.Location.Type != "Point" {
		return apperrors.NewValidationError("location must be a GeoJSON Point", map[string]any{"type": input.Location.Type})
	}
	lon, lat := input.Location.Lon(), input.Location.Lat()
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return apperrors.NewValidationError("coordinates out of range", map[string]any{
			"coordinates": []float64{lon, lat},
		})
	}
	if input.Priority == "" {
		input.Priority = domain.PriorityMedium
	}
	for i, e := range input.Evidence {
		if strings.TrimSpace(e.URL) == "" {
			return apperrors.NewValidationError("evidence url is required", map[string]any{"index": i})
		}
	}
	return nil
}
