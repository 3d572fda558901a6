package trace

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Normalize coerces raw records into canonical points. Records whose
// coordinates cannot be read as finite numbers are dropped; survivors
// keep their input order. The timestamp is taken from the "ts" field,
// falling back to "timestamp" when "ts" is missing or null.
func Normalize(raw []RawPoint) []Point {
	points := make([]Point, 0, len(raw))
	for _, r := range raw {
		lat := toFloat(r["lat"])
		lon := toFloat(r["lon"])
		if !isFinite(lat) || !isFinite(lon) {
			continue
		}
		points = append(points, Point{
			Lat: lat,
			Lon: lon,
			TS:  toTimestamp(timestampField(r)),
		})
	}
	return points
}

// NormalizeLatest coerces a raw latest-fix record into a LatestReport.
// deviceID overrides any identifier carried in the record, and now
// supplies the timestamp when the record has none. A record without
// finite coordinates yields nil, the same as no record at all.
func NormalizeLatest(raw RawPoint, deviceID string, now int64) *LatestReport {
	if raw == nil {
		return nil
	}
	lat := toFloat(raw["lat"])
	lon := toFloat(raw["lon"])
	if !isFinite(lat) || !isFinite(lon) {
		return nil
	}
	rep := &LatestReport{
		DeviceID:  deviceID,
		Lat:       lat,
		Lon:       lon,
		Speed:     toOptionalFloat(raw["speed"]),
		Battery:   toOptionalFloat(raw["battery"]),
		SOS:       truthy(raw["sos"]),
		Timestamp: now,
	}
	if ts := toTimestamp(timestampField(raw)); ts != nil {
		rep.Timestamp = *ts
	}
	return rep
}

// timestampField picks the raw timestamp value: "ts" wins unless it is
// missing or null, then "timestamp".
func timestampField(r RawPoint) any {
	if v, ok := r["ts"]; ok && v != nil {
		return v
	}
	return r["timestamp"]
}

// toFloat reads an arbitrary decoded value as a float64, NaN when it
// cannot be read as a number.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// toTimestamp reads a raw value as epoch seconds, nil when unreadable.
// Fractional seconds are truncated.
func toTimestamp(v any) *int64 {
	f := toFloat(v)
	if !isFinite(f) {
		return nil
	}
	ts := int64(f)
	return &ts
}

// toOptionalFloat reads a raw value as a float, nil when unreadable.
func toOptionalFloat(v any) *float64 {
	f := toFloat(v)
	if !isFinite(f) {
		return nil
	}
	return &f
}

// truthy applies loose boolean coercion: nil, zero numbers and empty
// strings are false; every other value, including the string "false",
// is true.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	default:
		f := toFloat(v)
		if math.IsNaN(f) {
			return true
		}
		return f != 0
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
