// Package geo holds the distance and containment primitives used by triage
// and dispatch.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// EarthRadiusKM is the mean Earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance in kilometers between two
// points given as longitude/latitude degrees.
func HaversineKM(lon1, lat1, lon2, lat2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLat := toRadians(lat2 - lat1)
	deltaLon := toRadians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

// PolygonContains reports whether the point lies inside or on the boundary of
// the polygon described by GeoJSON rings. Holes are honored.
func PolygonContains(rings [][][2]float64, lon, lat float64) bool {
	poly := toPolygon(rings)
	if len(poly) == 0 || len(poly[0]) < 3 {
		return false
	}
	return planar.PolygonContains(poly, orb.Point{lon, lat})
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func toPolygon(rings [][][2]float64) orb.Polygon {
	poly := make(orb.Polygon, 0, len(rings))
	for _, ring := range rings {
		r := make(orb.Ring, 0, len(ring))
		for _, pt := range ring {
			r = append(r, orb.Point{pt[0], pt[1]})
		}
		poly = append(poly, r)
	}
	return poly
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
