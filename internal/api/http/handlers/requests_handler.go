package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/MaysHroub/cst-management-info-system/internal/api/dto"
	"github.com/MaysHroub/cst-management-info-system/internal/auth"
	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/service"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// RequestsHandler serves the service request endpoints.
type RequestsHandler struct {
	requests   *service.RequestService
	milestones *service.MilestoneService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requests *service.RequestService, milestones *service.MilestoneService) *RequestsHandler {
	return &RequestsHandler{requests: requests, milestones: milestones}
}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateRequestRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.Location.Coordinates) != 2 {
		return apperrors.NewValidationError("location.coordinates must be [lon, lat]", nil)
	}

	citizenID := req.CitizenID
	if actor := auth.ActorFromContext(c); actor.Type == domain.ActorCitizen {
		citizenID = actor.ID
	}
	evidence := make([]domain.Evidence, 0, len(req.Evidence))
	for _, e := range req.Evidence {
		item := domain.Evidence{Type: e.Type, URL: e.URL}
		if e.UploadedAt != nil {
			item.UploadedAt = e.UploadedAt.UTC()
		}
		evidence = append(evidence, item)
	}

	created, err := h.requests.Submit(c.UserContext(), service.SubmitInput{
		CitizenID:   citizenID,
		Anonymous:   req.Anonymous,
		Category:    domain.Category(strings.TrimSpace(req.Category)),
		SubCategory: req.SubCategory,
		Description: req.Description,
		Priority:    domain.Priority(strings.TrimSpace(req.Priority)),
		Location: domain.Location{
			Type:        req.Location.Type,
			Coordinates: [2]float64{req.Location.Coordinates[0], req.Location.Coordinates[1]},
			AddressHint: req.Location.AddressHint,
			ZoneID:      req.Location.ZoneID,
		},
		Evidence: evidence,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": created})
}

// List GET /requests.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	items, err := h.requests.List(c.UserContext(), service.ListInput{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		AgentID:  c.Query("agent_id"),
		Limit:    c.QueryInt("limit", 0),
		Offset:   c.QueryInt("skip", 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	req, err := h.requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": req})
}

// Transition PATCH /requests/:id/transition.
func (h *RequestsHandler) Transition(c *fiber.Ctx) error {
	var req dto.TransitionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.NewStatus) == "" {
		return apperrors.NewValidationError("new_status is required", nil)
	}
	updated, err := h.requests.Transition(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), domain.RequestStatus(strings.TrimSpace(req.NewStatus)))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated})
}

// Triage POST /requests/:id/triage.
func (h *RequestsHandler) Triage(c *fiber.Ctx) error {
	var req dto.TriageRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	var override *domain.Priority
	if req.PriorityOverride != nil {
		p := domain.Priority(strings.TrimSpace(*req.PriorityOverride))
		override = &p
	}
	updated, err := h.requests.Retriage(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), override)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated})
}

// AddComment POST /requests/:id/comments.
func (h *RequestsHandler) AddComment(c *fiber.Ctx) error {
	var req dto.CommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	if actor == auth.AnonymousActor && strings.TrimSpace(req.AuthorID) != "" {
		actor = domain.Actor{Type: domain.ActorCitizen, ID: strings.TrimSpace(req.AuthorID)}
	}
	comment, err := h.requests.AddComment(c.UserContext(), actor, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": comment})
}

// Rate POST /requests/:id/rating.
func (h *RequestsHandler) Rate(c *fiber.Ctx) error {
	var req dto.RatingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rating, err := h.milestones.Rate(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.RatingInput{
		Stars:         req.Stars,
		Comment:       req.Comment,
		ReasonCodes:   req.ReasonCodes,
		Disputed:      req.Disputed,
		DisputeReason: req.DisputeReason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rating})
}

// AddMilestone PATCH /requests/:id/milestone.
func (h *RequestsHandler) AddMilestone(c *fiber.Ctx) error {
	var req dto.MilestoneRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.milestones.AddMilestone(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), service.MilestoneInput{
		Type:     domain.MilestoneType(strings.TrimSpace(req.MilestoneType)),
		Notes:    req.Notes,
		Evidence: req.Evidence,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated})
}

// Escalate POST /requests/:id/escalate.
func (h *RequestsHandler) Escalate(c *fiber.Ctx) error {
	var req dto.EscalateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := h.requests.Escalate(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EscalateResponse{
		RequestID:       updated.RequestID,
		Reason:          strings.TrimSpace(req.Reason),
		EscalationCount: updated.EscalationCount,
	}})
}

// SLA GET /requests/:id/sla.
func (h *RequestsHandler) SLA(c *fiber.Ctx) error {
	eval, err := h.requests.SLAStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": eval})
}

// Events GET /requests/:id/events.
func (h *RequestsHandler) Events(c *fiber.Ctx) error {
	stream, err := h.requests.Events(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stream})
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	return nil
}
