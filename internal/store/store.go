// Package store persists each device's last-known-good trace so a
// reconcile cycle can fall back on it when the backend history is empty.
package store

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/pkg/trace"
)

// Store is the cache the reconciliation engine reads and writes.
// Implementations must serialize access per device so concurrent
// cycles for the same device cannot interleave a read and a write.
type Store interface {
	// Load returns the cached trace, or an empty slice when no entry
	// exists. A corrupt or unreadable entry is reported through the
	// error AND comes back as an empty slice, so callers can always
	// use the returned points.
	Load(deviceID string) ([]trace.Point, error)

	// Save overwrites the device's entry. Saving is idempotent.
	Save(deviceID string, points []trace.Point) error

	// Clear removes the device's entry if present.
	Clear(deviceID string) error

	Close() error
}

// PersistenceError wraps a cache backend failure. These are diagnostic
// by contract: a failed load acts as a miss and a failed save as a
// no-op, and the caller never aborts its cycle over one.
type PersistenceError struct {
	Op       string // load, save or clear
	DeviceID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("cache %s for device %q failed: %v", e.Op, e.DeviceID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// schemaCompatible reports whether an entry written at version v can
// still be read. Only the major version gates compatibility; an
// unparseable version is treated as incompatible.
func schemaCompatible(v string) bool {
	entryVer, err := semver.NewVersion(v)
	if err != nil {
		return false
	}
	supported := semver.MustParse(constants.CacheSchemaVersion)
	return entryVer.Major() == supported.Major()
}
