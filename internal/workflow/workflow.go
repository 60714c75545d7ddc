// Package workflow implements the service-request state machine.
package workflow

import (
	"time"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// RulesVersion identifies the transition table below.
const RulesVersion = "v1.0"

var allowedTransitions = map[domain.RequestStatus][]domain.RequestStatus{
	domain.StatusNew:        {domain.StatusTriaged, domain.StatusClosed},
	domain.StatusTriaged:    {domain.StatusAssigned, domain.StatusClosed},
	domain.StatusAssigned:   {domain.StatusInProgress, domain.StatusTriaged},
	domain.StatusInProgress: {domain.StatusResolved, domain.StatusAssigned},
	domain.StatusResolved:   {domain.StatusClosed, domain.StatusInProgress},
	domain.StatusClosed:     {},
}

// AllowedNext returns a copy of the states reachable from current.
func AllowedNext(current domain.RequestStatus) []domain.RequestStatus {
	next := allowedTransitions[current]
	out := make([]domain.RequestStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether current -> next is in the table.
func CanTransition(current, next domain.RequestStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s domain.RequestStatus) bool {
	next, ok := allowedTransitions[s]
	return ok && len(next) == 0
}

// StateFor builds the workflow descriptor for status s.
func StateFor(s domain.RequestStatus) domain.WorkflowState {
	return domain.WorkflowState{
		CurrentState: s,
		AllowedNext:  AllowedNext(s),
		RulesVersion: RulesVersion,
	}
}

// Apply moves req to target, stamping the phase timestamp for target and
// updated_at. It returns the audit event describing the change; callers
// persist both. req is left untouched when the transition is rejected.
func Apply(req *domain.ServiceRequest, target domain.RequestStatus, actor domain.Actor, now time.Time) (domain.AuditEvent, error) {
	from := req.Status
	if !CanTransition(from, target) {
		return domain.AuditEvent{}, apperrors.NewInvalidTransition(string(from), string(target), StatusNames(AllowedNext(from)))
	}

	req.Status = target
	req.Workflow = StateFor(target)
	stamp(&req.Timestamps, target, now)
	req.Timestamps.UpdatedAt = now

	return domain.AuditEvent{
		RequestID: req.RequestID,
		Type:      string(target),
		Actor:     actor,
		Timestamp: now,
		Metadata:  map[string]any{"from": string(from)},
	}, nil
}

func stamp(ts *domain.Timestamps, target domain.RequestStatus, now time.Time) {
	at := now
	switch target {
	case domain.StatusTriaged:
		ts.TriagedAt = &at
	case domain.StatusAssigned:
		ts.AssignedAt = &at
	case domain.StatusResolved:
		ts.ResolvedAt = &at
	case domain.StatusClosed:
		ts.ClosedAt = &at
	}
}

// StatusNames returns the string form of statuses.
func StatusNames(statuses []domain.RequestStatus) []string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return names
}
