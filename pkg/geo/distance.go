package geo

import "github.com/golang/geo/s2"

// Earth's mean radius.
const (
	EarthRadiusKm     = 6371.0
	EarthRadiusMeters = 6371000.0
)

// DistanceKm returns the great-circle distance in kilometres between two
// coordinates given in decimal degrees, using the haversine formula.
// The result is non-negative and zero for identical coordinates.
// NaN coordinates propagate into the result; callers filter beforehand.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// DistanceMeters returns the great-circle distance in metres.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}
