package domain

import (
	"strings"
	"time"
)

// SkillGeneral marks an agent able to take any category.
const SkillGeneral = "general"

// Polygon is a GeoJSON polygon. Coordinates are rings of [lon, lat] pairs;
// the first ring is the exterior.
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// NewPolygon builds a polygon from its rings.
func NewPolygon(rings ...[][2]float64) *Polygon {
	return &Polygon{Type: "Polygon", Coordinates: rings}
}

// Shift is a recurring working window. Start and End use HH:MM.
type Shift struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Schedule describes when an agent can be dispatched.
type Schedule struct {
	Shifts   []Shift `json:"shifts"`
	Timezone string  `json:"timezone,omitempty"`
	OnCall   bool    `json:"on_call"`
}

// Coverage describes where an agent works.
type Coverage struct {
	ZoneIDs  []string `json:"zone_ids"`
	GeoFence *Polygon `json:"geo_fence,omitempty"`
}

// Agent is a dispatchable field worker keyed by Code.
type Agent struct {
	Code       string    `json:"agent_code"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Skills     []string  `json:"skills"`
	Coverage   Coverage  `json:"coverage"`
	Schedule   Schedule  `json:"schedule"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasSkill reports whether the agent lists skill, case-insensitively.
func (a Agent) HasSkill(skill string) bool {
	for _, s := range a.Skills {
		if strings.EqualFold(strings.TrimSpace(s), skill) {
			return true
		}
	}
	return false
}
