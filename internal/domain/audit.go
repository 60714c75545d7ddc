package domain

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorCitizen ActorType = "citizen"
	ActorStaff   ActorType = "staff"
	ActorAgent   ActorType = "agent"
	ActorSystem  ActorType = "system"
)

// Actor is the principal recorded on audit events.
type Actor struct {
	Type ActorType `json:"actor_type"`
	ID   string    `json:"actor_id"`
}

// SystemActor builds a system actor with the given id.
func SystemActor(id string) Actor {
	return Actor{Type: ActorSystem, ID: id}
}

// Audit event types that are not workflow states.
const (
	AuditCreated    = "created"
	AuditRetriaged  = "retriaged"
	AuditEscalation = "escalation"
	AuditComment    = "comment"
	AuditMilestone  = "milestone"
	AuditRated      = "rated"
)

// AuditEvent is an immutable entry in a request's event stream.
type AuditEvent struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id"`
	Type      string         `json:"type"`
	Actor     Actor          `json:"by"`
	Timestamp time.Time      `json:"at"`
	Metadata  map[string]any `json:"meta"`
}
