package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MaysHroub/cst-management-info-system/internal/domain"
)

// File is the on-disk YAML form of Tables. Omitted sections keep their defaults.
type File struct {
	Categories         []string                   `yaml:"categories"`
	ProximityKM        float64                    `yaml:"proximity_km"`
	SLAPolicies        map[string]SLAEntry        `yaml:"sla_policies"`
	SensitiveLocations []domain.SensitiveLocation `yaml:"sensitive_locations"`
	CategorySkills     map[string]string          `yaml:"category_skills"`
	DefaultSkill       string                     `yaml:"default_skill"`
}

// SLAEntry is one SLA row in the YAML file.
type SLAEntry struct {
	TargetHours          int `yaml:"target_hours"`
	BreachThresholdHours int `yaml:"breach_threshold_hours"`
}

// LoadFile reads a YAML tables file and overlays it on Default.
func LoadFile(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML content on Default and validates the result.
func Parse(data []byte) (Tables, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Tables{}, fmt.Errorf("parse policy file: %w", err)
	}

	tables := Default()
	if len(file.Categories) > 0 {
		tables.Categories = make([]domain.Category, 0, len(file.Categories))
		for _, c := range file.Categories {
			tables.Categories = append(tables.Categories, domain.Category(c))
		}
	}
	if file.ProximityKM > 0 {
		tables.ProximityKM = file.ProximityKM
	}
	for name, entry := range file.SLAPolicies {
		p := domain.Priority(name)
		if !p.Valid() {
			return Tables{}, fmt.Errorf("sla_policies: unknown priority %q", name)
		}
		tables.SLAPolicies[p] = slaPolicy(p, entry.TargetHours, entry.BreachThresholdHours)
	}
	if file.SensitiveLocations != nil {
		tables.SensitiveLocations = file.SensitiveLocations
	}
	if len(file.CategorySkills) > 0 {
		tables.CategorySkills = make(map[domain.Category]string, len(file.CategorySkills))
		for c, skill := range file.CategorySkills {
			tables.CategorySkills[domain.Category(c)] = skill
		}
	}
	if file.DefaultSkill != "" {
		tables.DefaultSkill = file.DefaultSkill
	}

	if err := tables.Validate(); err != nil {
		return Tables{}, fmt.Errorf("invalid policy file: %w", err)
	}
	return tables, nil
}
