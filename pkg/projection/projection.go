// Package projection maps geographic degrees to a normalized Mercator plane
// and back. Both axes span [0, 1] for the projectable world; y grows southward.
package projection

import (
	"math"

	"github.com/1F47E/geo-marker-cluster/pkg/models"
)

// MaxLatitude is the Web Mercator latitude limit, atan(sinh(π)) in degrees.
const MaxLatitude = 85.0511

// ClampLatitude limits lat to [-MaxLatitude, MaxLatitude]
func ClampLatitude(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	}
	if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

// ToPlanar projects a location onto the plane, clamping latitude first so the
// result is always finite.
func ToPlanar(loc models.Location) models.PlanarPoint {
	lat := ClampLatitude(loc.Lat)
	return models.PlanarPoint{
		X: 0.5 + loc.Lon/360,
		Y: (math.Pi - math.Log(math.Tan(math.Pi/4+(lat/360)*math.Pi))) / (2 * math.Pi),
	}
}

// ToGeo is the inverse of ToPlanar
func ToGeo(p models.PlanarPoint) models.Location {
	return models.Location{
		Lon: 360*p.X - 180,
		Lat: (360 / math.Pi) * (math.Atan(math.Exp(math.Pi-2*math.Pi*p.Y)) - math.Pi/4),
	}
}

// Distance returns the Euclidean distance between two planar points
func Distance(a, b models.PlanarPoint) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx + dy*dy)
}
