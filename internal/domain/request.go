package domain

import "time"

// RequestStatus enumerates lifecycle states for service requests.
type RequestStatus string

const (
	StatusNew        RequestStatus = "new"
	StatusTriaged    RequestStatus = "triaged"
	StatusAssigned   RequestStatus = "assigned"
	StatusInProgress RequestStatus = "in_progress"
	StatusResolved   RequestStatus = "resolved"
	StatusClosed     RequestStatus = "closed"
)

// AllStatuses lists every lifecycle state in workflow order.
var AllStatuses = []RequestStatus{
	StatusNew, StatusTriaged, StatusAssigned, StatusInProgress, StatusResolved, StatusClosed,
}

// OpenStatuses are the states counted as unresolved work.
var OpenStatuses = []RequestStatus{StatusNew, StatusTriaged, StatusAssigned, StatusInProgress}

// WorkloadStatuses are the states that count against an agent's workload.
var WorkloadStatuses = []RequestStatus{StatusAssigned, StatusInProgress}

// Valid reports whether s is a known state.
func (s RequestStatus) Valid() bool {
	for _, candidate := range AllStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the request is still awaiting resolution.
func (s RequestStatus) IsOpen() bool {
	for _, candidate := range OpenStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Priority enumerates request urgency, ordered low < medium < high < critical.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AllPriorities lists priorities from least to most urgent.
var AllPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Rank returns the ordinal of p, or -1 when p is unknown.
func (p Priority) Rank() int {
	for i, candidate := range AllPriorities {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// PriorityNames returns the string form of AllPriorities.
func PriorityNames() []string {
	names := make([]string, len(AllPriorities))
	for i, p := range AllPriorities {
		names[i] = string(p)
	}
	return names
}

// Category classifies the reported issue.
type Category string

const (
	CategoryPothole   Category = "pothole"
	CategoryWaterLeak Category = "water_leak"
	CategoryTrash     Category = "trash"
	CategoryLighting  Category = "lighting"
	CategorySewage    Category = "sewage"
	CategorySignage   Category = "signage"
	CategoryOther     Category = "other"
)

// Location is a GeoJSON point with optional hints. Coordinates are [lon, lat].
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	AddressHint string     `json:"address_hint,omitempty"`
	ZoneID      string     `json:"zone_id,omitempty"`
}

// NewPoint builds a point location.
func NewPoint(lon, lat float64) Location {
	return Location{Type: "Point", Coordinates: [2]float64{lon, lat}}
}

func (l Location) Lon() float64 { return l.Coordinates[0] }
func (l Location) Lat() float64 { return l.Coordinates[1] }

// WorkflowState mirrors the state machine position of a request.
type WorkflowState struct {
	CurrentState RequestStatus   `json:"current_state"`
	AllowedNext  []RequestStatus `json:"allowed_next"`
	RulesVersion string          `json:"transition_rules_version"`
}

// SLAPolicy is the target and breach threshold bound to a request.
type SLAPolicy struct {
	PolicyID             string `json:"policy_id"`
	TargetHours          int    `json:"target_hours"`
	BreachThresholdHours int    `json:"breach_threshold_hours"`
}

// NearbyLocation is a sensitive location found close to a request.
type NearbyLocation struct {
	Name       string       `json:"name"`
	Type       LocationType `json:"type"`
	DistanceKM float64      `json:"distance_km"`
}

// TriageInfo records the outcome of the last triage pass.
type TriageInfo struct {
	OriginalPriority Priority         `json:"original_priority"`
	Escalated        bool             `json:"escalated"`
	EscalationReason string           `json:"escalation_reason,omitempty"`
	NearbySensitive  []NearbyLocation `json:"nearby_sensitive_locations"`
	TriagedAt        time.Time        `json:"triaged_at"`
}

// Timestamps tracks when each lifecycle phase was reached.
type Timestamps struct {
	CreatedAt  time.Time  `json:"created_at"`
	TriagedAt  *time.Time `json:"triaged_at"`
	AssignedAt *time.Time `json:"assigned_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	ClosedAt   *time.Time `json:"closed_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Evidence references an uploaded artifact.
type Evidence struct {
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Comment is a free-text note on a request.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Rating is the citizen's feedback after resolution.
type Rating struct {
	Stars         int       `json:"stars"`
	Comment       string    `json:"comment,omitempty"`
	ReasonCodes   []string  `json:"reason_codes,omitempty"`
	Disputed      bool      `json:"disputed"`
	DisputeReason string    `json:"dispute_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// MilestoneType enumerates field-work milestones.
type MilestoneType string

const (
	MilestoneArrived     MilestoneType = "arrived"
	MilestoneWorkStarted MilestoneType = "work_started"
	MilestoneResolved    MilestoneType = "resolved"
)

// MilestoneTypes lists the accepted milestone types.
var MilestoneTypes = []MilestoneType{MilestoneArrived, MilestoneWorkStarted, MilestoneResolved}

// Milestone is a timestamped field event.
type Milestone struct {
	Type      MilestoneType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Notes     string        `json:"notes,omitempty"`
	Evidence  []string      `json:"evidence,omitempty"`
}

// ServiceRequest is the citizen-filed ticket aggregate.
type ServiceRequest struct {
	RequestID       string        `json:"request_id"`
	CitizenID       string        `json:"citizen_id"`
	Anonymous       bool          `json:"anonymous"`
	Category        Category      `json:"category"`
	SubCategory     string        `json:"sub_category,omitempty"`
	Description     string        `json:"description"`
	Priority        Priority      `json:"priority"`
	Status          RequestStatus `json:"status"`
	Location        Location      `json:"location"`
	Workflow        WorkflowState `json:"workflow"`
	SLAPolicy       SLAPolicy     `json:"sla_policy"`
	Triage          TriageInfo    `json:"triage"`
	Timestamps      Timestamps    `json:"timestamps"`
	AssignedAgentID *string       `json:"assigned_agent_id"`
	Evidence        []Evidence    `json:"evidence"`
	Comments        []Comment     `json:"comments"`
	Rating          *Rating       `json:"rating"`
	Milestones      []Milestone   `json:"milestones"`
	EscalationCount int           `json:"escalation_count"`
	Version         int           `json:"version"`
}
