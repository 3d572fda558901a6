// Package metrics provides Prometheus metrics for the tracker agent.
package metrics

import (
	"os"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/process"
)

// Manager manages all Prometheus metrics for the tracker agent.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Reconciliation metrics
	cyclesTotal     *prometheus.CounterVec
	cycleErrors     *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	cacheFallbacks  *prometheus.CounterVec
	pointsDiscarded *prometheus.CounterVec

	// Device state gauges
	tracePoints    *prometheus.GaugeVec
	pathDistanceKm *prometheus.GaugeVec
	sosActive      *prometheus.GaugeVec
	devicesTracked prometheus.Gauge

	// Side-effect counters
	persistenceErrors prometheus.Counter
	snapshotPublishes prometheus.Counter

	// Process health gauges, refreshed on a timer
	processCPUPercent  prometheus.Gauge
	processMemoryBytes prometheus.Gauge
	systemMemoryUsed   prometheus.Gauge
	systemCPUPercent   prometheus.Gauge
	goroutineCount     prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fieldtrack",
		subsystem:        "tracker",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	m.cyclesTotal = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "reconcile_cycles_total",
			Help:      "Total number of completed reconcile cycles by trace source",
		},
		[]string{"device", "source"},
	)

	m.cycleErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "reconcile_errors_total",
			Help:      "Total number of failed reconcile cycles by error kind",
		},
		[]string{"device", "kind"},
	)

	m.cycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_duration_seconds",
		Help:      "Histogram of reconcile cycle duration in seconds",
		Buckets:   m.histogramBuckets,
	})

	m.cacheFallbacks = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "cache_fallbacks_total",
			Help:      "Total number of cycles that fell back to the local cache",
		},
		[]string{"device"},
	)

	m.pointsDiscarded = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "points_discarded_total",
			Help:      "Total number of points the sanitizer discarded",
		},
		[]string{"device"},
	)

	m.tracePoints = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "trace_points",
			Help:      "Points in the device's current sanitized trace",
		},
		[]string{"device"},
	)

	m.pathDistanceKm = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "path_distance_km",
			Help:      "Path distance of the device's current trace in kilometres",
		},
		[]string{"device"},
	)

	m.sosActive = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "sos_active",
			Help:      "Whether the device's latest report carries the SOS flag",
		},
		[]string{"device"},
	)

	m.devicesTracked = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "devices_tracked",
		Help:      "Number of devices the agent reconciles each cycle",
	})

	m.persistenceErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persistence_errors_total",
		Help:      "Total number of swallowed cache read/write failures",
	})

	m.snapshotPublishes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_publishes_total",
		Help:      "Total number of snapshots published to MQTT",
	})

	m.processCPUPercent = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "process_cpu_percent",
		Help:      "CPU usage of the agent process in percent",
	})

	m.processMemoryBytes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "process_memory_bytes",
		Help:      "Resident memory of the agent process in bytes",
	})

	m.systemMemoryUsed = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_used_percent",
		Help:      "System-wide memory usage in percent",
	})

	m.systemCPUPercent = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_cpu_percent",
		Help:      "System-wide CPU usage in percent since the last sample",
	})

	m.goroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordCycle counts a completed reconcile cycle for a device.
func RecordCycle(device, source string) {
	globalManager.cyclesTotal.WithLabelValues(device, source).Inc()
}

// RecordCycleError counts a failed reconcile cycle.
func RecordCycleError(device, kind string) {
	globalManager.cycleErrors.WithLabelValues(device, kind).Inc()
}

// RecordCycleDuration records how long a reconcile cycle took.
func RecordCycleDuration(seconds float64) {
	globalManager.cycleDuration.Observe(seconds)
}

// RecordCacheFallback counts a cycle that used the local cache.
func RecordCacheFallback(device string) {
	globalManager.cacheFallbacks.WithLabelValues(device).Inc()
}

// RecordPointsDiscarded counts points dropped by the sanitizer.
func RecordPointsDiscarded(device string, count int) {
	if count > 0 {
		globalManager.pointsDiscarded.WithLabelValues(device).Add(float64(count))
	}
}

// UpdateTraceGauges sets the per-device trace gauges after a cycle.
func UpdateTraceGauges(device string, points int, distanceKm float64, sos bool) {
	globalManager.tracePoints.WithLabelValues(device).Set(float64(points))
	globalManager.pathDistanceKm.WithLabelValues(device).Set(distanceKm)
	sosValue := 0.0
	if sos {
		sosValue = 1.0
	}
	globalManager.sosActive.WithLabelValues(device).Set(sosValue)
}

// UpdateDevicesTracked sets the tracked device count.
func UpdateDevicesTracked(count int) {
	globalManager.devicesTracked.Set(float64(count))
}

// RecordPersistenceError counts a swallowed cache failure.
func RecordPersistenceError() {
	globalManager.persistenceErrors.Inc()
}

// RecordSnapshotPublish counts a snapshot published to MQTT.
func RecordSnapshotPublish() {
	globalManager.snapshotPublishes.Inc()
}

// RefreshProcessGauges samples the process and system health gauges.
// Collection failures leave the previous sample in place.
func RefreshProcessGauges() {
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpuPercent, err := proc.CPUPercent(); err == nil {
			globalManager.processCPUPercent.Set(cpuPercent)
		}
		if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
			globalManager.processMemoryBytes.Set(float64(memInfo.RSS))
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		globalManager.systemMemoryUsed.Set(vm.UsedPercent)
	}

	// Interval 0 reports usage since the previous call, which lines up
	// with the refresh ticker.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		globalManager.systemCPUPercent.Set(percents[0])
	}

	globalManager.goroutineCount.Set(float64(runtime.NumGoroutine()))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
