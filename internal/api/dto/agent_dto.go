package dto

import "github.com/MaysHroub/cst-management-info-system/internal/domain"

// CreateAgentRequest payload.
type CreateAgentRequest struct {
	AgentCode  string          `json:"agent_code"`
	Name       string          `json:"name"`
	Department string          `json:"department"`
	Skills     []string        `json:"skills"`
	Coverage   domain.Coverage `json:"coverage"`
	Schedule   domain.Schedule `json:"schedule"`
}

// UpdateAgentRequest payload.
type UpdateAgentRequest struct {
	Active *bool `json:"active"`
}
