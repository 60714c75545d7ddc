package domain

// LocationType tags a sensitive point of interest.
type LocationType string

const (
	LocationHospital LocationType = "hospital"
	LocationSchool   LocationType = "school"
)

// SensitiveLocation is a registry entry near which requests are escalated.
type SensitiveLocation struct {
	Name        string       `json:"name" yaml:"name"`
	Coordinates [2]float64   `json:"coordinates" yaml:"coordinates"`
	Type        LocationType `json:"type" yaml:"type"`
}
