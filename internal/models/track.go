package models

import (
	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/pkg/trace"
)

// TrackSnapshot is the full reconciled state of one device after a
// cycle: the latest report, the sanitized trace, the derived
// statistics, and where the trace came from. Snapshots are immutable
// once published; a new cycle replaces the whole value.
type TrackSnapshot struct {
	DeviceID   string                `json:"device_id"`
	Generation uint64                `json:"generation"`
	Source     constants.TraceSource `json:"source"`
	Latest     *trace.LatestReport   `json:"latest"`
	Trace      []trace.Point         `json:"trace"`
	Stats      trace.Stats           `json:"stats"`
	Error      string                `json:"error,omitempty"`
	UpdatedAt  int64                 `json:"updated_at"`
}

// DeviceStatus is the per-device summary row returned by the device
// listing endpoint.
type DeviceStatus struct {
	DeviceID   string `json:"device_id"`
	Tracked    bool   `json:"tracked"`
	PointCount int    `json:"point_count"`
	SOS        bool   `json:"sos"`
	LastError  string `json:"last_error,omitempty"`
	UpdatedAt  int64  `json:"updated_at"`
}

// CacheEntry is the persisted form of a device's last-known-good trace.
type CacheEntry struct {
	Version  string        `json:"version"`
	DeviceID string        `json:"device_id"`
	Points   []trace.Point `json:"points"`
	SavedAt  int64         `json:"saved_at"`
	AgentID  string        `json:"agent_id,omitempty"`
}
