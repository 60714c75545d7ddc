package dto

import (
	"time"

	"github.com/MaysHroub/cst-management-info-system/internal/dispatch"
	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

// LocationPayload is a GeoJSON point as submitted by clients.
type LocationPayload struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
	AddressHint string    `json:"address_hint"`
	ZoneID      string    `json:"zone_id"`
}

// EvidencePayload references an uploaded artifact.
type EvidencePayload struct {
	Type       string     `json:"type"`
	URL        string     `json:"url"`
	UploadedAt *time.Time `json:"uploaded_at"`
}

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	CitizenID   string            `json:"citizen_id"`
	Anonymous   bool              `json:"anonymous"`
	Category    string            `json:"category"`
	SubCategory string            `json:"sub_category"`
	Description string            `json:"description"`
	Priority    string            `json:"priority"`
	Location    LocationPayload   `json:"location"`
	Evidence    []EvidencePayload `json:"evidence"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	NewStatus string `json:"new_status"`
}

// TriageRequest payload. A nil override re-runs the proximity rules.
type TriageRequest struct {
	PriorityOverride *string `json:"priority_override"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
}

// RatingRequest payload.
type RatingRequest struct {
	Stars         int      `json:"stars"`
	Comment       string   `json:"comment"`
	ReasonCodes   []string `json:"reason_codes"`
	Disputed      bool     `json:"disputed"`
	DisputeReason string   `json:"dispute_reason"`
}

// MilestoneRequest payload.
type MilestoneRequest struct {
	MilestoneType string   `json:"milestone_type"`
	Notes         string   `json:"notes"`
	Evidence      []string `json:"evidence"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// EscalateResponse acknowledges a manual escalation.
type EscalateResponse struct {
	RequestID       string `json:"request_id"`
	Reason          string `json:"reason"`
	EscalationCount int    `json:"escalation_count"`
}

// AssignRequest payload. AgentID may also arrive as a query parameter.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// AgentRef identifies the agent a request was given to.
type AgentRef struct {
	Code string `json:"agent_code"`
	Name string `json:"name"`
}

// DispatchResponse describes a completed dispatch.
type DispatchResponse struct {
	Request   *domain.ServiceRequest `json:"request"`
	Agent     AgentRef               `json:"agent"`
	Workload  int                    `json:"workload_before"`
	Automatic bool                   `json:"automatic"`
	Trace     []dispatch.StageReport `json:"trace,omitempty"`
}
