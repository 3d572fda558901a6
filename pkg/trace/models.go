// Package trace holds the canonical location model for a tracked field
// unit and the pure functions that clean a raw point stream and derive
// statistics from it.
package trace

// RawPoint is an untrusted location record as received from a remote
// source or a cache file. Field names and value types vary by firmware
// revision, so nothing in it is assumed numeric until coerced.
type RawPoint map[string]any

// Point is a canonical location sample. Lat and Lon are always finite
// once a Point exists; TS is epoch seconds and nil when the source
// supplied no usable timestamp.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	TS  *int64  `json:"ts,omitempty"`
}

// LatestReport is the most recent authoritative fix for a device, either
// delivered by the remote source or synthesized from the trace tail.
type LatestReport struct {
	DeviceID  string   `json:"device_id"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Speed     *float64 `json:"speed"`   // metres per second
	Battery   *float64 `json:"battery"` // percent of full charge
	SOS       bool     `json:"sos"`
	Timestamp int64    `json:"timestamp"`
	Place     string   `json:"place,omitempty"` // reverse-geocoded, best effort
}
