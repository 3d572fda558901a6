package trace_test

import (
	"testing"

	"github.com/fieldtrack/agent/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 {
	return &v
}

func latestWithSpeed(speed *float64) *trace.LatestReport {
	return &trace.LatestReport{
		DeviceID:  "dev-1",
		Lat:       10,
		Lon:       20,
		Speed:     speed,
		Timestamp: 1700000000,
	}
}

// TestCount_PrefersTraceLength tests the display count precedence between the
// trace and the latest report.
func TestCount_PrefersTraceLength(t *testing.T) {
	points := []trace.Point{pt(1, 1, 10), pt(2, 2, 20)}

	assert.Equal(t, 2, trace.Count(points, nil))
	assert.Equal(t, 2, trace.Count(points, latestWithSpeed(nil)))
	assert.Equal(t, 1, trace.Count(nil, latestWithSpeed(nil)))
	assert.Equal(t, 0, trace.Count(nil, nil))
}

// TestPathDistanceKm_ShortTraces tests that traces below two points cover no
// distance.
func TestPathDistanceKm_ShortTraces(t *testing.T) {
	assert.Zero(t, trace.PathDistanceKm(nil))
	assert.Zero(t, trace.PathDistanceKm([]trace.Point{pt(10, 20, 1)}))
}

// TestPathDistanceKm_SumsSegments tests the pairwise great-circle sum.
func TestPathDistanceKm_SumsSegments(t *testing.T) {
	// Setup
	pair := []trace.Point{
		pt(10, 20, 1700000000),
		pt(10.001, 20.001, 1700000060),
	}
	triple := append(append([]trace.Point{}, pair...), pt(10.002, 20.002, 1700000120))

	// Execute & Assert
	assert.InDelta(t, 0.156, trace.PathDistanceKm(pair), 0.002)
	assert.InDelta(t, 2*0.156, trace.PathDistanceKm(triple), 0.004)
}

// TestAverageSpeedMps_GatedByLatest tests that a missing latest speed blanks
// the average regardless of what the trace holds.
func TestAverageSpeedMps_GatedByLatest(t *testing.T) {
	points := []trace.Point{
		pt(0, 0, 1700000000),
		pt(0, 0.01, 1700000100),
	}

	assert.Nil(t, trace.AverageSpeedMps(points, nil))
	assert.Nil(t, trace.AverageSpeedMps(points, latestWithSpeed(nil)))
}

// TestAverageSpeedMps_ShortTraceFallsBack tests that below two points the
// latest report's own speed is the answer.
func TestAverageSpeedMps_ShortTraceFallsBack(t *testing.T) {
	latest := latestWithSpeed(fp(3.5))

	got := trace.AverageSpeedMps([]trace.Point{pt(1, 1, 10)}, latest)

	require.NotNil(t, got)
	assert.Equal(t, 3.5, *got)
}

// TestAverageSpeedMps_MeanOfSegments tests that usable segments override the
// reported speed with the mean of metres per second over each pair.
func TestAverageSpeedMps_MeanOfSegments(t *testing.T) {
	// Setup
	points := []trace.Point{
		pt(0, 0, 1700000000),
		pt(0, 0.01, 1700000100),
	}
	latest := latestWithSpeed(fp(99))

	// Execute
	got := trace.AverageSpeedMps(points, latest)

	// Assert
	require.NotNil(t, got)
	// 0.01 degrees of longitude at the equator is about 1112 metres,
	// covered in 100 seconds.
	assert.InDelta(t, 11.12, *got, 0.05)
}

// TestAverageSpeedMps_NoUsableSegments tests the fallback when every pair has
// zero or unknown elapsed time.
func TestAverageSpeedMps_NoUsableSegments(t *testing.T) {
	// Setup
	latest := latestWithSpeed(fp(4.25))
	sameInstant := []trace.Point{
		pt(0, 0, 1700000000),
		pt(0, 0.01, 1700000000),
	}
	untimed := []trace.Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 0.01},
	}

	// Execute & Assert
	got := trace.AverageSpeedMps(sameInstant, latest)
	require.NotNil(t, got)
	assert.Equal(t, 4.25, *got)

	got = trace.AverageSpeedMps(untimed, latest)
	require.NotNil(t, got)
	assert.Equal(t, 4.25, *got)
}

// TestAverageSpeedMps_SkipsDegenerateSegments tests that zero-duration pairs
// drop out of the mean instead of poisoning it.
func TestAverageSpeedMps_SkipsDegenerateSegments(t *testing.T) {
	// Setup
	points := []trace.Point{
		pt(0, 0, 1700000000),
		pt(0, 0.005, 1700000000),
		pt(0, 0.01, 1700000100),
	}
	latest := latestWithSpeed(fp(99))

	// Execute
	got := trace.AverageSpeedMps(points, latest)

	// Assert
	require.NotNil(t, got)
	// Only the second pair counts: about 556 metres in 100 seconds.
	assert.InDelta(t, 5.56, *got, 0.05)
}

// TestTrackingDurationSec_Spans tests first-to-last elapsed time on a normal
// trace.
func TestTrackingDurationSec_Spans(t *testing.T) {
	points := []trace.Point{
		pt(10, 20, 1700000000),
		pt(10.001, 20.001, 1700000060),
	}

	got := trace.TrackingDurationSec(points)

	require.NotNil(t, got)
	assert.Equal(t, int64(60), *got)
}

// TestTrackingDurationSec_ShortTraces tests that traces below two points have
// no duration.
func TestTrackingDurationSec_ShortTraces(t *testing.T) {
	assert.Nil(t, trace.TrackingDurationSec(nil))
	assert.Nil(t, trace.TrackingDurationSec([]trace.Point{pt(1, 1, 10)}))
}

// TestTrackingDurationSec_ZeroTimestampAbsent tests that epoch zero counts as
// an absent timestamp at either end.
func TestTrackingDurationSec_ZeroTimestampAbsent(t *testing.T) {
	assert.Nil(t, trace.TrackingDurationSec([]trace.Point{
		pt(1, 1, 0),
		pt(2, 2, 1700000060),
	}))
	assert.Nil(t, trace.TrackingDurationSec([]trace.Point{
		pt(1, 1, 1700000000),
		pt(2, 2, 0),
	}))
	assert.Nil(t, trace.TrackingDurationSec([]trace.Point{
		pt(1, 1, 1700000000),
		{Lat: 2, Lon: 2},
	}))
}

// TestBoundsOf_SpansTrace tests the viewport rectangle over a small trace.
func TestBoundsOf_SpansTrace(t *testing.T) {
	// Setup
	points := []trace.Point{
		pt(10, 20, 1700000000),
		pt(10.001, 20.001, 1700000060),
		pt(9.999, 20.0005, 1700000120),
	}

	// Execute
	bounds := trace.BoundsOf(points)

	// Assert
	require.NotNil(t, bounds)
	assert.InDelta(t, 9.999, bounds.MinLat, 1e-9)
	assert.InDelta(t, 20.0, bounds.MinLon, 1e-9)
	assert.InDelta(t, 10.001, bounds.MaxLat, 1e-9)
	assert.InDelta(t, 20.001, bounds.MaxLon, 1e-9)

	assert.Nil(t, trace.BoundsOf(nil))
}

// TestCompute_FullBlock tests the assembled statistics for a clean two-point
// trace with a reporting device.
func TestCompute_FullBlock(t *testing.T) {
	// Setup
	points := []trace.Point{
		pt(10, 20, 1700000000),
		pt(10.001, 20.001, 1700000060),
	}
	latest := latestWithSpeed(fp(2.0))

	// Execute
	stats := trace.Compute(points, latest)

	// Assert
	assert.Equal(t, 2, stats.PointCount)
	assert.InDelta(t, 0.156, stats.PathDistanceKm, 0.002)
	require.NotNil(t, stats.AverageSpeedMps)
	assert.InDelta(t, 2.60, *stats.AverageSpeedMps, 0.02)
	require.NotNil(t, stats.TrackingDurationSec)
	assert.Equal(t, int64(60), *stats.TrackingDurationSec)
	require.NotNil(t, stats.MaxSpeedMps)
	assert.InDelta(t, 2.60, *stats.MaxSpeedMps, 0.02)
	require.NotNil(t, stats.P95SpeedMps)
	assert.InDelta(t, 2.60, *stats.P95SpeedMps, 0.02)
	require.NotNil(t, stats.Bounds)
	assert.InDelta(t, 10.0, stats.Bounds.MinLat, 1e-9)
}

// TestCompute_LatestOnly tests the aggregates when the device has a latest
// report but no usable trace.
func TestCompute_LatestOnly(t *testing.T) {
	// Setup
	latest := latestWithSpeed(fp(1.5))

	// Execute
	stats := trace.Compute(nil, latest)

	// Assert
	assert.Equal(t, 1, stats.PointCount)
	assert.Zero(t, stats.PathDistanceKm)
	require.NotNil(t, stats.AverageSpeedMps)
	assert.Equal(t, 1.5, *stats.AverageSpeedMps)
	assert.Nil(t, stats.TrackingDurationSec)
	assert.Nil(t, stats.MaxSpeedMps)
	assert.Nil(t, stats.P95SpeedMps)
	assert.Nil(t, stats.Bounds)
}

// TestCompute_EmptyDevice tests the zero aggregates for a device with no
// data at all.
func TestCompute_EmptyDevice(t *testing.T) {
	stats := trace.Compute(nil, nil)

	assert.Zero(t, stats.PointCount)
	assert.Zero(t, stats.PathDistanceKm)
	assert.Nil(t, stats.AverageSpeedMps)
	assert.Nil(t, stats.TrackingDurationSec)
	assert.Nil(t, stats.Bounds)
}
