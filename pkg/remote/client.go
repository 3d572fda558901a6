// Package remote fetches device fixes and trace history from the
// tracker backend, or from a locally docked GPS unit.
package remote

import (
	"context"

	"github.com/fieldtrack/agent/pkg/trace"
)

// Client defines the two fetches a reconcile cycle makes for a device.
// FetchLatest returns nil when the source has no current fix, and
// FetchHistory returns an empty list when the device has no recorded
// points; neither case is an error. Both calls are independent and are
// safe to run concurrently.
type Client interface {
	FetchLatest(ctx context.Context, deviceID string) (trace.RawPoint, error)
	FetchHistory(ctx context.Context, deviceID string) ([]trace.RawPoint, error)
	Close() error
}
