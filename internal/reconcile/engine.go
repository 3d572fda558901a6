// Package reconcile runs the fetch, normalize, sanitize, persist cycle
// that turns raw device data into a clean trace and a latest fix.
package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/internal/store"
	"github.com/fieldtrack/agent/pkg/geocode"
	"github.com/fieldtrack/agent/pkg/metrics"
	"github.com/fieldtrack/agent/pkg/remote"
	"github.com/fieldtrack/agent/pkg/trace"
)

// Result is one completed reconciliation cycle. A newer Result always
// replaces an older one wholesale; nothing in it is merged.
type Result struct {
	DeviceID  string
	Source    constants.TraceSource
	Latest    *trace.LatestReport
	Trace     []trace.Point
	Stats     trace.Stats
	Discarded int // candidates dropped by sanitization
}

// Engine drives reconciliation cycles. It keeps no state between
// cycles, so one Engine serves any number of devices concurrently.
type Engine struct {
	remote   remote.Client
	cache    store.Store
	geocoder geocode.Geocoder // nil disables reverse geocoding
	opts     trace.Options
	nowFn    func() time.Time
	logger   zerolog.Logger
}

// NewEngine wires a reconciliation engine. The sanitizer options' clock
// doubles as the engine clock so tests can pin time in one place.
func NewEngine(remoteClient remote.Client, cache store.Store, geocoder geocode.Geocoder, opts trace.Options, logger zerolog.Logger) *Engine {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Engine{
		remote:   remoteClient,
		cache:    cache,
		geocoder: geocoder,
		opts:     opts,
		nowFn:    nowFn,
		logger:   logger,
	}
}

// Reconcile runs one cycle for deviceID: fetch the latest fix and the
// point history concurrently, normalize, sanitize, persist the cleaned
// trace, and derive a latest fix from the trace tail when the remote
// supplied none. A fetch failure on either call aborts the whole cycle
// with a FetchError; cache failures are logged and degrade to a miss
// on read and a no-op on write. The previously persisted trace is
// never touched by a failed cycle.
func (e *Engine) Reconcile(ctx context.Context, deviceID string) (*Result, error) {
	id := strings.TrimSpace(deviceID)
	if id == "" {
		return nil, &ValidationError{Field: "device id", Reason: "must be a non-empty string"}
	}

	var (
		wg         sync.WaitGroup
		rawLatest  trace.RawPoint
		rawHistory []trace.RawPoint
		latestErr  error
		historyErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rawLatest, latestErr = e.remote.FetchLatest(ctx, id)
	}()
	go func() {
		defer wg.Done()
		rawHistory, historyErr = e.remote.FetchHistory(ctx, id)
	}()
	wg.Wait()

	if latestErr != nil || historyErr != nil {
		return nil, &FetchError{DeviceID: id, Err: errors.Join(latestErr, historyErr)}
	}

	latest := trace.NormalizeLatest(rawLatest, id, e.nowFn().Unix())

	pool, source := e.candidatePool(id, rawHistory)
	cleaned := trace.Sanitize(pool, e.opts)
	discarded := len(pool) - len(cleaned)
	metrics.RecordPointsDiscarded(id, discarded)

	if len(cleaned) > 0 {
		if err := e.cache.Save(id, cleaned); err != nil {
			metrics.RecordPersistenceError()
			e.logger.Warn().Err(err).Str("device_id", id).Msg("Trace cache write failed, continuing without persistence")
		}
	}

	if latest == nil && len(cleaned) > 0 {
		latest = synthesizeLatest(id, cleaned)
	}

	if e.geocoder != nil && latest != nil {
		place, err := e.geocoder.Place(ctx, latest.Lat, latest.Lon)
		if err != nil {
			e.logger.Warn().Err(err).Str("device_id", id).Msg("Reverse geocoding failed")
		} else {
			latest.Place = place
		}
	}

	return &Result{
		DeviceID:  id,
		Source:    source,
		Latest:    latest,
		Trace:     cleaned,
		Stats:     trace.Compute(cleaned, latest),
		Discarded: discarded,
	}, nil
}

// candidatePool picks where this cycle's points come from: the remote
// history when it has any, otherwise the cached trace from the last
// good cycle. The tagged source makes the fallback visible to callers,
// logs and metrics.
func (e *Engine) candidatePool(id string, history []trace.RawPoint) ([]trace.Point, constants.TraceSource) {
	if len(history) > 0 {
		return trace.Normalize(history), constants.SourceRemote
	}

	cached, err := e.cache.Load(id)
	if err != nil {
		metrics.RecordPersistenceError()
		e.logger.Warn().Err(err).Str("device_id", id).Msg("Trace cache read failed, treating as miss")
	}
	if len(cached) == 0 {
		return nil, constants.SourceNone
	}
	metrics.RecordCacheFallback(id)
	return cached, constants.SourceCache
}

// synthesizeLatest promotes the trace tail to a latest fix when the
// remote supplied none. Speed and battery stay unknown, sos stays off.
func synthesizeLatest(id string, points []trace.Point) *trace.LatestReport {
	tail := points[len(points)-1]
	var ts int64
	if tail.TS != nil {
		ts = *tail.TS
	}
	return &trace.LatestReport{
		DeviceID:  id,
		Lat:       tail.Lat,
		Lon:       tail.Lon,
		Timestamp: ts,
	}
}
