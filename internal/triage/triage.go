// Package triage validates incoming requests, checks them against the
// sensitive-location registry and binds an SLA policy.
package triage

import (
	"fmt"
	"time"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
	"github.com/MaysHroub/cst-management-info-system/internal/geo"
	"github.com/MaysHroub/cst-management-info-system/internal/policy"
	apperrors "github.com/MaysHroub/cst-management-info-system/pkg/util/errorutil"
)

// OverrideReason is recorded when staff force a priority.
const OverrideReason = "Manual override by staff"

// Input is what triage needs to know about a request.
type Input struct {
	Category domain.Category
	Priority domain.Priority
	Lon      float64
	Lat      float64
}

// Result is the triage outcome.
type Result struct {
	Priority         domain.Priority
	OriginalPriority domain.Priority
	Escalated        bool
	Reason           string
	Nearby           []domain.NearbyLocation
	SLA              domain.SLAPolicy
}

// Info converts the result into the metadata stored on a request.
func (r Result) Info(now time.Time) domain.TriageInfo {
	nearby := r.Nearby
	if nearby == nil {
		nearby = []domain.NearbyLocation{}
	}
	return domain.TriageInfo{
		OriginalPriority: r.OriginalPriority,
		Escalated:        r.Escalated,
		EscalationReason: r.Reason,
		NearbySensitive:  nearby,
		TriagedAt:        now,
	}
}

// Triager applies the triage rules against a fixed set of tables.
type Triager struct {
	tables policy.Tables
}

// New returns a Triager bound to tables.
func New(tables policy.Tables) *Triager {
	return &Triager{tables: tables}
}

// Evaluate validates the category and priority, escalates the priority when
// the location is near a sensitive site and binds the SLA policy. Escalation
// never lowers the input priority.
func (t *Triager) Evaluate(in Input) (Result, error) {
	if err := t.validateCategory(in.Category); err != nil {
		return Result{}, err
	}
	if !in.Priority.Valid() {
		return Result{}, apperrors.NewInvalidPriority(string(in.Priority), domain.PriorityNames())
	}

	nearby := t.NearbySensitive(in.Lon, in.Lat)
	final, reason := escalate(in.Priority, nearby)

	sla, err := t.slaFor(final)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Priority:         final,
		OriginalPriority: in.Priority,
		Escalated:        final != in.Priority,
		Reason:           reason,
		Nearby:           nearby,
		SLA:              sla,
	}, nil
}

// Override skips escalation and binds the SLA of the forced priority. The
// proximity list is still computed so the stored metadata stays accurate.
func (t *Triager) Override(in Input, forced domain.Priority) (Result, error) {
	if err := t.validateCategory(in.Category); err != nil {
		return Result{}, err
	}
	if !forced.Valid() {
		return Result{}, apperrors.NewInvalidPriority(string(forced), domain.PriorityNames())
	}
	sla, err := t.slaFor(forced)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Priority:         forced,
		OriginalPriority: in.Priority,
		Escalated:        true,
		Reason:           OverrideReason,
		Nearby:           t.NearbySensitive(in.Lon, in.Lat),
		SLA:              sla,
	}, nil
}

// NearbySensitive lists registry entries within the proximity radius, in
// registry order, with distances rounded to meters.
func (t *Triager) NearbySensitive(lon, lat float64) []domain.NearbyLocation {
	var nearby []domain.NearbyLocation
	for _, loc := range t.tables.SensitiveLocations {
		d := geo.HaversineKM(lon, lat, loc.Coordinates[0], loc.Coordinates[1])
		if d <= t.tables.ProximityKM {
			nearby = append(nearby, domain.NearbyLocation{
				Name:       loc.Name,
				Type:       loc.Type,
				DistanceKM: geo.Round(d, 3),
			})
		}
	}
	return nearby
}

func (t *Triager) validateCategory(c domain.Category) error {
	if !t.tables.IsValidCategory(c) {
		return apperrors.NewInvalidCategory(string(c), t.tables.CategoryNames())
	}
	return nil
}

func (t *Triager) slaFor(p domain.Priority) (domain.SLAPolicy, error) {
	sla, ok := t.tables.SLAFor(p)
	if !ok {
		return domain.SLAPolicy{}, apperrors.NewInvalidPriority(string(p), domain.PriorityNames())
	}
	return sla, nil
}

func escalate(p domain.Priority, nearby []domain.NearbyLocation) (domain.Priority, string) {
	if len(nearby) == 0 {
		return p, ""
	}
	switch p {
	case domain.PriorityLow, domain.PriorityMedium:
		first := nearby[0]
		return domain.PriorityHigh, fmt.Sprintf("Near %s: %s", first.Type, first.Name)
	case domain.PriorityHigh:
		for _, n := range nearby {
			if n.Type == domain.LocationHospital {
				return domain.PriorityCritical, "Near hospital: " + n.Name
			}
		}
	}
	return p, ""
}
