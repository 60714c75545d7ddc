package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MaysHroub/cst-management-info-system/internal/dispatch"
	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/events"
	"github.com/MaysHroub/cst-management-info-system/internal/locking"
	"github.com/MaysHroub/cst-management-info-system/internal/observability"
	"github.com/MaysHroub/cst-management-info-system/internal/policy"
	"github.com/MaysHroub/cst-management-info-system/internal/repository"
	"github.com/MaysHroub/cst-management-info-system/internal/workflow"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// Dependencies bundles the collaborators shared by the request services.
type Dependencies struct {
	RequestRepo repository.RequestRepository
	AgentRepo   repository.AgentRepository
	AuditRepo   repository.AuditRepository
	ZoneRepo    repository.ZoneRepository
	Dispatcher  events.Dispatcher
	Locker      locking.Locker
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Tables      policy.Tables
	Dispatch    dispatch.Options
	LockTTL     time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// requestCore holds the load/save/audit/publish steps every request
// operation goes through.
type requestCore struct {
	requests   repository.RequestRepository
	audit      repository.AuditRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func newRequestCore(deps Dependencies) requestCore {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return requestCore{
		requests:   deps.RequestRepo,
		audit:      deps.AuditRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        func() time.Time { return now().UTC() },
	}
}

func (c *requestCore) load(ctx context.Context, requestID string) (*domain.ServiceRequest, error) {
	req, err := c.requests.GetByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return req, nil
}

// save writes req if the stored copy is still in status expected.
func (c *requestCore) save(ctx context.Context, req *domain.ServiceRequest, expected domain.RequestStatus) error {
	err := c.requests.Update(ctx, req, expected)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrStaleWrite):
		return apperrors.NewConflict("request was modified concurrently; retry", map[string]any{
			"request_id":      req.RequestID,
			"expected_status": string(expected),
		})
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("request", map[string]any{"request_id": req.RequestID})
	default:
		return apperrors.NewStoreUnavailable(err)
	}
}

// transition applies the workflow change and counts it.
func (c *requestCore) transition(ctx context.Context, req *domain.ServiceRequest, target domain.RequestStatus, actor domain.Actor) (domain.AuditEvent, error) {
	from := req.Status
	event, err := workflow.Apply(req, target, actor, c.now())
	if err != nil {
		return domain.AuditEvent{}, err
	}
	c.metrics.RecordTransition(ctx, string(from), string(target))
	return event, nil
}

// recordAudit appends to the event log. Failures are logged and dropped so
// the primary write stands.
func (c *requestCore) recordAudit(ctx context.Context, event domain.AuditEvent) {
	if c.audit == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if err := c.audit.Append(ctx, &event); err != nil {
		c.logger.Warn("audit append failed",
			zap.String("request_id", event.RequestID),
			zap.String("event_type", event.Type),
			zap.Error(err))
	}
}

func (c *requestCore) publishEvent(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.now()
	}
	_ = c.dispatcher.Publish(ctx, event)
}

func (c *requestCore) publishStatusChange(ctx context.Context, req *domain.ServiceRequest, from domain.RequestStatus, actor domain.Actor) {
	c.publishEvent(ctx, events.Event{
		Type:      events.EventStatusChanged,
		RequestID: req.RequestID,
		Actor:     actor,
		Payload:   events.StatusChangedPayload{OldStatus: from, NewStatus: req.Status},
	})
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
