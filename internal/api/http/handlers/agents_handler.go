package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/MaysHroub/cst-management-info-system/internal/api/dto"
	"github.com/MaysHroub/cst-management-info-system/internal/auth"
	"github.com/MaysHroub/cst-management-info-system/internal/service"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// AgentsHandler serves the agent registry and dispatch endpoints.
type AgentsHandler struct {
	agents     *service.AgentService
	assignment *service.AssignmentService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(agents *service.AgentService, assignment *service.AssignmentService) *AgentsHandler {
	return &AgentsHandler{agents: agents, assignment: assignment}
}

// Create POST /agents.
func (h *AgentsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateAgentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	agent, err := h.agents.Register(c.UserContext(), service.AgentInput{
		Code:       req.AgentCode,
		Name:       req.Name,
		Department: req.Department,
		Skills:     req.Skills,
		Coverage:   req.Coverage,
		Schedule:   req.Schedule,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": agent})
}

// List GET /agents. Only active agents unless active_only=false.
func (h *AgentsHandler) List(c *fiber.Ctx) error {
	views, err := h.agents.List(c.UserContext(), c.QueryBool("active_only", true), c.QueryInt("limit", 0), c.QueryInt("skip", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": views})
}

// Get GET /agents/:code.
func (h *AgentsHandler) Get(c *fiber.Ctx) error {
	detail, err := h.agents.Get(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": detail})
}

// Tasks GET /agents/:code/tasks.
func (h *AgentsHandler) Tasks(c *fiber.Ctx) error {
	tasks, err := h.agents.Tasks(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tasks})
}

// Update PATCH /agents/:code.
func (h *AgentsHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateAgentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Active == nil {
		return apperrors.NewValidationError("active is required", nil)
	}
	agent, err := h.agents.SetActive(c.UserContext(), c.Params("code"), *req.Active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agent})
}

// Assign POST /agents/assign-request/:id. Without agent_id the dispatch
// funnel picks the agent.
func (h *AgentsHandler) Assign(c *fiber.Ctx) error {
	agentID := strings.TrimSpace(c.Query("agent_id"))
	if agentID == "" && len(c.Body()) > 0 {
		var req dto.AssignRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		agentID = strings.TrimSpace(req.AgentID)
	}
	var agentCode *string
	if agentID != "" {
		agentCode = &agentID
	}

	result, err := h.assignment.Dispatch(c.UserContext(), auth.ActorFromContext(c), c.Params("id"), agentCode)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DispatchResponse{
		Request:   result.Request,
		Agent:     dto.AgentRef{Code: result.Agent.Code, Name: result.Agent.Name},
		Workload:  result.Workload,
		Automatic: result.Automatic,
		Trace:     result.Trace,
	}})
}
