package domain

// Zone is a named geographic boundary.
type Zone struct {
	ZoneID   string  `json:"zone_id"`
	Name     string  `json:"name"`
	Boundary Polygon `json:"boundary"`
}
