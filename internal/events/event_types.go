package events

import (
	"time"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated   EventType = "request_created"
	EventStatusChanged    EventType = "request_status_changed"
	EventPriorityChanged  EventType = "request_priority_changed"
	EventRequestAssigned  EventType = "request_assigned"
	EventMilestoneAdded   EventType = "request_milestone_added"
	EventRequestRated     EventType = "request_rated"
	EventRequestEscalated EventType = "request_escalated"
	EventCommentAdded     EventType = "request_comment_added"
)

// Event represents a domain event emitted by services after a successful write.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	RequestID string       `json:"request_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   any          `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	Category  domain.Category `json:"category"`
	Priority  domain.Priority `json:"priority"`
	Escalated bool            `json:"escalated"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.RequestStatus `json:"old_status"`
	NewStatus domain.RequestStatus `json:"new_status"`
}

// PriorityChangedPayload payload.
type PriorityChangedPayload struct {
	OldPriority domain.Priority `json:"old_priority"`
	NewPriority domain.Priority `json:"new_priority"`
	Reason      string          `json:"reason,omitempty"`
}

// RequestAssignedPayload payload.
type RequestAssignedPayload struct {
	AgentCode string  `json:"agent_code"`
	AgentName string  `json:"agent_name"`
	PrevAgent *string `json:"prev_agent,omitempty"`
	Automatic bool    `json:"automatic"`
}

// MilestoneAddedPayload payload.
type MilestoneAddedPayload struct {
	Milestone domain.MilestoneType `json:"milestone"`
	Status    domain.RequestStatus `json:"status"`
}

// RequestRatedPayload payload.
type RequestRatedPayload struct {
	Stars    int  `json:"stars"`
	Disputed bool `json:"disputed"`
}

// RequestEscalatedPayload payload.
type RequestEscalatedPayload struct {
	Reason          string `json:"reason"`
	EscalationCount int    `json:"escalation_count"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	BodyPreview string `json:"body_preview"`
}
