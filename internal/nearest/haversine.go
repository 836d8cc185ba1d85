package nearest

import "github.com/golang/geo/s2"

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points in
// meters. It is informational only; selection never uses it.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	angle := s2.LatLngFromDegrees(lat1, lon1).Distance(s2.LatLngFromDegrees(lat2, lon2))
	return float64(angle) * earthRadiusMeters
}
