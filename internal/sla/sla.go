// Package sla classifies requests against their bound SLA policy.
package sla

import (
	"time"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/geo"
)

// State is the SLA classification of an open request.
type State string

const (
	StateOnTime   State = "on_time"
	StateAtRisk   State = "at_risk"
	StateBreached State = "breached"
)

// Evaluation is the derived SLA view of a request. Open requests carry State
// and TimeRemainingHours; resolved or closed ones carry ResolutionHours and Met.
type Evaluation struct {
	RequestID          string               `json:"request_id"`
	Status             domain.RequestStatus `json:"status"`
	PolicyID           string               `json:"policy_id"`
	TargetHours        int                  `json:"target_hours"`
	BreachHours        int                  `json:"breach_threshold_hours"`
	AgeHours           float64              `json:"age_hours"`
	State              State                `json:"sla_state,omitempty"`
	TimeRemainingHours *float64             `json:"time_remaining_hours,omitempty"`
	ResolutionHours    *float64             `json:"resolution_hours,omitempty"`
	Met                *bool                `json:"sla_met,omitempty"`
}

// Classify maps an age onto on_time, at_risk or breached.
func Classify(policy domain.SLAPolicy, ageHours float64) State {
	switch {
	case ageHours >= float64(policy.BreachThresholdHours):
		return StateBreached
	case ageHours >= float64(policy.TargetHours):
		return StateAtRisk
	default:
		return StateOnTime
	}
}

// Evaluate derives the SLA view of req at now. It holds no state and returns
// the same output for the same inputs.
func Evaluate(req domain.ServiceRequest, now time.Time) Evaluation {
	policy := req.SLAPolicy
	age := hoursBetween(req.Timestamps.CreatedAt, now)

	eval := Evaluation{
		RequestID:   req.RequestID,
		Status:      req.Status,
		PolicyID:    policy.PolicyID,
		TargetHours: policy.TargetHours,
		BreachHours: policy.BreachThresholdHours,
		AgeHours:    geo.Round(age, 1),
	}

	if resolvedAt := req.Timestamps.ResolvedAt; resolvedAt != nil && !req.Status.IsOpen() {
		resolution := hoursBetween(req.Timestamps.CreatedAt, *resolvedAt)
		rounded := geo.Round(resolution, 1)
		met := resolution <= float64(policy.TargetHours)
		eval.ResolutionHours = &rounded
		eval.Met = &met
		return eval
	}

	remaining := geo.Round(float64(policy.BreachThresholdHours)-age, 1)
	eval.State = Classify(policy, age)
	eval.TimeRemainingHours = &remaining
	return eval
}

func hoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}
