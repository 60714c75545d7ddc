// Package policy holds the static tables that drive triage and dispatch: the
// category whitelist, SLA policies per priority, the sensitive-location
// registry and the category-to-skill map. Tables are built once at start-up
// and passed by value to the components that read them.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

// DefaultProximityKM is the distance under which a sensitive location counts as nearby.
const DefaultProximityKM = 0.5

// Tables is the immutable configuration shared by triage and dispatch.
type Tables struct {
	Categories         []domain.Category
	SLAPolicies        map[domain.Priority]domain.SLAPolicy
	SensitiveLocations []domain.SensitiveLocation
	CategorySkills     map[domain.Category]string
	DefaultSkill       string
	ProximityKM        float64
}

// Default returns the built-in tables.
func Default() Tables {
	return Tables{
		Categories: []domain.Category{
			domain.CategoryPothole,
			domain.CategoryWaterLeak,
			domain.CategoryTrash,
			domain.CategoryLighting,
			domain.CategorySewage,
			domain.CategorySignage,
			domain.CategoryOther,
		},
		SLAPolicies: map[domain.Priority]domain.SLAPolicy{
			domain.PriorityCritical: slaPolicy(domain.PriorityCritical, 24, 36),
			domain.PriorityHigh:     slaPolicy(domain.PriorityHigh, 48, 72),
			domain.PriorityMedium:   slaPolicy(domain.PriorityMedium, 96, 120),
			domain.PriorityLow:      slaPolicy(domain.PriorityLow, 168, 240),
		},
		SensitiveLocations: []domain.SensitiveLocation{
			{Name: "Hadassah Hospital", Coordinates: [2]float64{35.2137, 31.7683}, Type: domain.LocationHospital},
			{Name: "Shaare Zedek Medical Center", Coordinates: [2]float64{35.1936, 31.7872}, Type: domain.LocationHospital},
			{Name: "Hebrew University", Coordinates: [2]float64{35.2433, 31.7890}, Type: domain.LocationSchool},
		},
		CategorySkills: map[domain.Category]string{
			domain.CategoryPothole:   "road",
			domain.CategorySignage:   "road",
			domain.CategoryLighting:  "road",
			domain.CategoryWaterLeak: "water",
			domain.CategorySewage:    "water",
			domain.CategoryTrash:     "waste",
		},
		DefaultSkill: domain.SkillGeneral,
		ProximityKM:  DefaultProximityKM,
	}
}

// IsValidCategory reports whether c is whitelisted.
func (t Tables) IsValidCategory(c domain.Category) bool {
	for _, candidate := range t.Categories {
		if candidate == c {
			return true
		}
	}
	return false
}

// CategoryNames returns the whitelist as strings, in configured order.
func (t Tables) CategoryNames() []string {
	names := make([]string, len(t.Categories))
	for i, c := range t.Categories {
		names[i] = string(c)
	}
	return names
}

// SLAFor returns the policy bound to priority p.
func (t Tables) SLAFor(p domain.Priority) (domain.SLAPolicy, bool) {
	sla, ok := t.SLAPolicies[p]
	return sla, ok
}

// SkillFor maps a category to the skill required to work it.
func (t Tables) SkillFor(c domain.Category) string {
	if skill, ok := t.CategorySkills[c]; ok && skill != "" {
		return skill
	}
	if t.DefaultSkill != "" {
		return t.DefaultSkill
	}
	return domain.SkillGeneral
}

// Validate checks that the tables are complete enough to serve triage.
func (t Tables) Validate() error {
	var errs []error
	if len(t.Categories) == 0 {
		errs = append(errs, errors.New("no categories configured"))
	}
	for _, p := range domain.AllPriorities {
		sla, ok := t.SLAPolicies[p]
		if !ok {
			errs = append(errs, fmt.Errorf("missing SLA policy for %s", p))
			continue
		}
		if sla.TargetHours <= 0 || sla.BreachThresholdHours < sla.TargetHours {
			errs = append(errs, fmt.Errorf("SLA policy for %s must satisfy 0 < target <= breach threshold", p))
		}
	}
	for _, loc := range t.SensitiveLocations {
		if strings.TrimSpace(loc.Name) == "" {
			errs = append(errs, errors.New("sensitive location without name"))
		}
		if loc.Type != domain.LocationHospital && loc.Type != domain.LocationSchool {
			errs = append(errs, fmt.Errorf("sensitive location %q has unknown type %q", loc.Name, loc.Type))
		}
	}
	if t.ProximityKM <= 0 {
		errs = append(errs, errors.New("proximity_km must be positive"))
	}
	return errors.Join(errs...)
}

func slaPolicy(p domain.Priority, target, breach int) domain.SLAPolicy {
	return domain.SLAPolicy{
		PolicyID:             PolicyID(p),
		TargetHours:          target,
		BreachThresholdHours: breach,
	}
}

// PolicyID returns the identifier of the SLA policy for priority p.
func PolicyID(p domain.Priority) string {
	return "SLA-" + strings.ToUpper(string(p))
}
