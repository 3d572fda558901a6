package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/internal/models"
	"github.com/fieldtrack/agent/internal/reconcile"
	"github.com/fieldtrack/agent/internal/store"
	"github.com/fieldtrack/agent/internal/utils"
	"github.com/fieldtrack/agent/pkg/metrics"
	"github.com/fieldtrack/agent/pkg/mqtt"
)

// snapshotPublishTimeout bounds how long a retained snapshot publish
// may block a device's apply path.
const snapshotPublishTimeout = 5 * time.Second

// TrackerService reconciles every configured device on a timer and
// keeps the latest snapshot per device. Each cycle is tagged with a
// per-device generation; a completion that lost the race to a newer
// cycle is discarded, so the registry never moves backwards.
type TrackerService struct {
	// Configuration fields
	devices     []string
	deviceSet   map[string]struct{}
	interval    time.Duration
	topicPrefix string
	qos         int
	workers     int
	queueSize   int

	// Dependencies
	engine     *reconcile.Engine
	cache      store.Store
	mqttClient mqtt.MQTTClient // nil disables snapshot publishing
	logger     zerolog.Logger

	// Internal state management
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	pool        *utils.WorkerPool
	mu          sync.Mutex
	running     bool
	snapshots   cmap.ConcurrentMap[string, models.TrackSnapshot]
	generations cmap.ConcurrentMap[string, uint64]
	locks       cmap.ConcurrentMap[string, *sync.Mutex]
}

// NewTrackerService creates a new TrackerService instance with the provided configuration.
func NewTrackerService(devices []string, interval time.Duration, topicPrefix string, qos int,
	workers, queueSize int, engine *reconcile.Engine, cache store.Store, mqttClient mqtt.MQTTClient,
	logger zerolog.Logger) *TrackerService {
	tracked := make([]string, 0, len(devices))
	for _, d := range devices {
		if id := strings.TrimSpace(d); id != "" {
			tracked = append(tracked, id)
		}
	}
	return &TrackerService{
		devices:     tracked,
		deviceSet:   utils.SliceToSet(tracked),
		interval:    interval,
		topicPrefix: topicPrefix,
		qos:         qos,
		workers:     workers,
		queueSize:   queueSize,
		engine:      engine,
		cache:       cache,
		mqttClient:  mqttClient,
		logger:      logger,
		snapshots:   cmap.New[models.TrackSnapshot](),
		generations: cmap.New[uint64](),
		locks:       cmap.New[*sync.Mutex](),
	}
}

// Start begins the polling loop. The first reconciliation round runs
// immediately; later rounds follow the configured interval.
func (s *TrackerService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn().Msg("TrackerService is already running")
		return errors.New("tracker service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.pool = utils.NewWorkerPool(s.workers, s.queueSize)
	s.running = true
	metrics.UpdateDevicesTracked(len(s.devices))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.pollAll()
		for {
			select {
			case <-ticker.C:
				s.pollAll()
			case <-s.ctx.Done():
				s.logger.Info().Msg("TrackerService is stopping")
				return
			}
		}
	}()

	s.logger.Info().
		Strs("devices", s.devices).
		Dur("interval", s.interval).
		Int("workers", s.workers).
		Msg("TrackerService started")
	return nil
}

// Stop cancels the polling loop and drains in-flight cycles. Results
// completing after this point are suppressed; cache writes already
// made by those cycles stay on disk.
func (s *TrackerService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.logger.Warn().Msg("TrackerService is not running")
		return errors.New("tracker service is not running")
	}

	s.cancel()
	s.wg.Wait()
	s.pool.Shutdown()

	s.running = false
	s.logger.Info().Msg("TrackerService stopped")
	return nil
}

// Refresh runs one synchronous cycle for deviceID outside the timer,
// under the same generation discipline, and returns the snapshot it
// produced.
func (s *TrackerService) Refresh(deviceID string) (models.TrackSnapshot, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return models.TrackSnapshot{}, errors.New("tracker service is not running")
	}
	s.mu.Unlock()

	return s.runCycle(deviceID)
}

// ClearCache drops the persisted trace for deviceID. The in-memory
// snapshot is left alone until the next cycle replaces it.
func (s *TrackerService) ClearCache(deviceID string) error {
	if err := s.cache.Clear(deviceID); err != nil {
		metrics.RecordPersistenceError()
		s.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to clear trace cache")
		return err
	}
	s.logger.Info().Str("device_id", deviceID).Msg("Trace cache cleared")
	return nil
}

// Devices returns the configured device IDs in configuration order.
func (s *TrackerService) Devices() []string {
	out := make([]string, len(s.devices))
	copy(out, s.devices)
	return out
}

// Tracked reports whether deviceID is in the configured device list.
func (s *TrackerService) Tracked(deviceID string) bool {
	_, ok := s.deviceSet[deviceID]
	return ok
}

// Snapshot returns the latest applied snapshot for deviceID.
func (s *TrackerService) Snapshot(deviceID string) (models.TrackSnapshot, bool) {
	return s.snapshots.Get(deviceID)
}

// Statuses summarizes every configured device for the listing endpoint.
func (s *TrackerService) Statuses() []models.DeviceStatus {
	statuses := make([]models.DeviceStatus, 0, len(s.devices))
	for _, id := range s.devices {
		status := models.DeviceStatus{DeviceID: id}
		if snap, ok := s.snapshots.Get(id); ok {
			status.Tracked = true
			status.PointCount = snap.Stats.PointCount
			status.SOS = snap.Latest != nil && snap.Latest.SOS
			status.LastError = snap.Error
			status.UpdatedAt = snap.UpdatedAt
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// pollAll fans one cycle per device out to the worker pool. Submission
// blocks when the queue is full, so a slow round delays the next tick
// instead of stacking unbounded work.
func (s *TrackerService) pollAll() {
	for _, id := range s.devices {
		deviceID := id
		s.pool.Submit(func() {
			if s.ctx.Err() != nil {
				return
			}
			_, _ = s.runCycle(deviceID)
		})
	}
}

// runCycle executes one reconciliation for deviceID and applies the
// outcome, successful or not, to the snapshot registry.
func (s *TrackerService) runCycle(deviceID string) (models.TrackSnapshot, error) {
	gen := s.nextGeneration(deviceID)
	logger := s.logger.With().
		Str("device_id", deviceID).
		Str("cycle_id", uuid.New().String()).
		Uint64("generation", gen).
		Logger()

	start := time.Now()
	result, err := s.engine.Reconcile(s.ctx, deviceID)
	metrics.RecordCycleDuration(time.Since(start).Seconds())

	if err != nil {
		metrics.RecordCycleError(deviceID, errorKind(err))
		logger.Error().Err(err).Msg("Reconciliation cycle failed")
		snap := models.TrackSnapshot{
			DeviceID:   deviceID,
			Generation: gen,
			Source:     constants.SourceNone,
			Error:      err.Error(),
			UpdatedAt:  time.Now().Unix(),
		}
		s.applySnapshot(snap, logger)
		return models.TrackSnapshot{}, err
	}

	metrics.RecordCycle(deviceID, string(result.Source))
	snap := models.TrackSnapshot{
		DeviceID:   deviceID,
		Generation: gen,
		Source:     result.Source,
		Latest:     result.Latest,
		Trace:      result.Trace,
		Stats:      result.Stats,
		UpdatedAt:  time.Now().Unix(),
	}
	if s.applySnapshot(snap, logger) {
		logger.Debug().
			Str("source", string(result.Source)).
			Int("points", result.Stats.PointCount).
			Int("discarded", result.Discarded).
			Msg("Cycle applied")
	}
	return snap, nil
}

// applySnapshot installs snap unless a newer generation already landed
// or the service is tearing down. Publishing happens under the
// per-device lock so the retained MQTT topic always ends on the newest
// generation.
func (s *TrackerService) applySnapshot(snap models.TrackSnapshot, logger zerolog.Logger) bool {
	if s.ctx.Err() != nil {
		return false
	}

	mu := s.lockFor(snap.DeviceID)
	mu.Lock()
	defer mu.Unlock()

	if current, ok := s.snapshots.Get(snap.DeviceID); ok && current.Generation >= snap.Generation {
		logger.Debug().
			Uint64("current_generation", current.Generation).
			Msg("Discarding stale cycle result")
		return false
	}
	s.snapshots.Set(snap.DeviceID, snap)

	sos := snap.Latest != nil && snap.Latest.SOS
	metrics.UpdateTraceGauges(snap.DeviceID, snap.Stats.PointCount, snap.Stats.PathDistanceKm, sos)

	s.publishSnapshot(snap, logger)
	return true
}

// publishSnapshot pushes the snapshot to the device's retained MQTT
// topic, if publishing is configured.
func (s *TrackerService) publishSnapshot(snap models.TrackSnapshot, logger zerolog.Logger) {
	if s.mqttClient == nil {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to serialize snapshot")
		return
	}

	topic := s.topicPrefix + "/" + snap.DeviceID
	token := s.mqttClient.Publish(topic, byte(s.qos), true, payload)
	if !token.WaitTimeout(snapshotPublishTimeout) {
		logger.Warn().Str("topic", topic).Msg("Timed out publishing snapshot")
		return
	}
	if err := token.Error(); err != nil {
		logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish snapshot")
		return
	}
	metrics.RecordSnapshotPublish()
}

// nextGeneration atomically allocates the next cycle generation for
// deviceID.
func (s *TrackerService) nextGeneration(deviceID string) uint64 {
	return s.generations.Upsert(deviceID, 1, func(exist bool, current, incoming uint64) uint64 {
		if exist {
			return current + 1
		}
		return incoming
	})
}

func (s *TrackerService) lockFor(deviceID string) *sync.Mutex {
	s.locks.SetIfAbsent(deviceID, &sync.Mutex{})
	mu, _ := s.locks.Get(deviceID)
	return mu
}

// errorKind buckets a cycle failure for the error counter.
func errorKind(err error) string {
	var verr *reconcile.ValidationError
	var ferr *reconcile.FetchError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &ferr):
		return "fetch"
	default:
		return "internal"
	}
}
