package trace

import (
	"sort"

	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/stat"

	"github.com/fieldtrack/agent/pkg/geo"
)

// Stats are the aggregates derived from one device's sanitized trace
// and latest report.
type Stats struct {
	PointCount          int      `json:"point_count"`
	PathDistanceKm      float64  `json:"path_distance_km"`
	AverageSpeedMps     *float64 `json:"average_speed_mps"`
	TrackingDurationSec *int64   `json:"tracking_duration_sec"`
	MaxSpeedMps         *float64 `json:"max_speed_mps,omitempty"`
	P95SpeedMps         *float64 `json:"p95_speed_mps,omitempty"`
	Bounds              *Bounds  `json:"bounds,omitempty"`
}

// Bounds is the geographic rectangle spanned by a trace, in degrees.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Compute derives the full statistics block for one reconciled device.
func Compute(points []Point, latest *LatestReport) Stats {
	s := Stats{
		PointCount:          Count(points, latest),
		PathDistanceKm:      PathDistanceKm(points),
		AverageSpeedMps:     AverageSpeedMps(points, latest),
		TrackingDurationSec: TrackingDurationSec(points),
	}
	if speeds := segmentSpeeds(points); len(speeds) > 0 {
		sort.Float64s(speeds)
		maxSpeed := speeds[len(speeds)-1]
		p95 := stat.Quantile(0.95, stat.Empirical, speeds, nil)
		s.MaxSpeedMps = &maxSpeed
		s.P95SpeedMps = &p95
	}
	s.Bounds = BoundsOf(points)
	return s
}

// Count is the display point count: the trace length when the trace is
// non-empty, otherwise 1 when only a latest report exists, otherwise 0.
func Count(points []Point, latest *LatestReport) int {
	if len(points) > 0 {
		return len(points)
	}
	if latest != nil {
		return 1
	}
	return 0
}

// PathDistanceKm sums the great-circle distance over consecutive points.
// Traces with fewer than two points cover no distance.
func PathDistanceKm(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(points); i++ {
		total += geo.DistanceKm(
			points[i-1].Lat, points[i-1].Lon,
			points[i].Lat, points[i].Lon,
		)
	}
	return total
}

// AverageSpeedMps averages the per-segment speeds of the trace. The
// latest report's speed gates the result: when it is absent the average
// is absent, and it stands in whenever the trace yields no usable
// segment (fewer than two points, or no pair with both timestamps and
// positive elapsed time).
func AverageSpeedMps(points []Point, latest *LatestReport) *float64 {
	if latest == nil || latest.Speed == nil {
		return nil
	}
	if len(points) < 2 {
		return latest.Speed
	}
	speeds := segmentSpeeds(points)
	if len(speeds) == 0 {
		return latest.Speed
	}
	mean := stat.Mean(speeds, nil)
	return &mean
}

// TrackingDurationSec is the elapsed time between the first and last
// point of the trace, nil below two points. A timestamp of exactly zero
// counts as absent: some units report epoch zero until first GPS lock,
// and a duration against it would be meaningless.
func TrackingDurationSec(points []Point) *int64 {
	if len(points) < 2 {
		return nil
	}
	first, last := points[0], points[len(points)-1]
	if first.TS == nil || last.TS == nil || *first.TS == 0 || *last.TS == 0 {
		return nil
	}
	d := *last.TS - *first.TS
	return &d
}

// BoundsOf is the rectangle spanned by the points, nil for an empty
// trace. Presentation layers use it to fit the viewport.
func BoundsOf(points []Point) *Bounds {
	if len(points) == 0 {
		return nil
	}
	rect := s2.EmptyRect()
	for _, p := range points {
		rect = rect.AddPoint(s2.LatLngFromDegrees(p.Lat, p.Lon))
	}
	lo, hi := rect.Lo(), rect.Hi()
	return &Bounds{
		MinLat: lo.Lat.Degrees(),
		MinLon: lo.Lng.Degrees(),
		MaxLat: hi.Lat.Degrees(),
		MaxLon: hi.Lng.Degrees(),
	}
}

// segmentSpeeds returns metres per second for every consecutive pair
// with both timestamps present and positive elapsed time.
func segmentSpeeds(points []Point) []float64 {
	var speeds []float64
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if a.TS == nil || b.TS == nil {
			continue
		}
		dt := *b.TS - *a.TS
		if dt <= 0 {
			continue
		}
		meters := geo.DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
		speeds = append(speeds, meters/float64(dt))
	}
	return speeds
}
