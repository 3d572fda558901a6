package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtrack/agent/internal/api"
	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/internal/models"
	"github.com/fieldtrack/agent/internal/reconcile"
	"github.com/fieldtrack/agent/pkg/metrics"
	"github.com/fieldtrack/agent/pkg/response"
	"github.com/fieldtrack/agent/pkg/trace"
	"github.com/fieldtrack/agent/tests/mocks"
)

func newRouter(tracker *mocks.MockTracker) http.Handler {
	agentInfo := new(mocks.MockAgentInfo)
	agentInfo.On("GetAgentID").Return("agent-uuid-1")
	handler := api.NewTrackHandler(tracker, agentInfo)
	return api.SetupRouter(handler, metrics.GetRegistry(), []string{"*"}, zerolog.Nop())
}

func doRequest(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (response.Response, json.RawMessage) {
	t.Helper()
	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return response.Response{Code: envelope.Code, Message: envelope.Message}, envelope.Data
}

func sampleSnapshot() models.TrackSnapshot {
	ts := int64(1700000060)
	speed := 2.5
	return models.TrackSnapshot{
		DeviceID:   "esp32-01",
		Generation: 4,
		Source:     constants.SourceRemote,
		Latest: &trace.LatestReport{
			DeviceID:  "esp32-01",
			Lat:       10.001,
			Lon:       20.001,
			Speed:     &speed,
			Timestamp: ts,
		},
		Trace: []trace.Point{
			{Lat: 10.0, Lon: 20.0, TS: &ts},
		},
		Stats:     trace.Stats{PointCount: 1},
		UpdatedAt: 1700000100,
	}
}

// TestAPI_Health verifies the health endpoint reports the agent identity and version.
func TestAPI_Health(t *testing.T) {
	// Setup
	router := newRouter(new(mocks.MockTracker))

	// Execute
	rec := doRequest(t, router, http.MethodGet, "/health")

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "agent-uuid-1")
	assert.Contains(t, rec.Body.String(), constants.AgentVersion)
}

// TestAPI_ListDevices verifies the device listing envelope.
func TestAPI_ListDevices(t *testing.T) {
	// Setup
	tracker := new(mocks.MockTracker)
	tracker.On("Statuses").Return([]models.DeviceStatus{
		{DeviceID: "esp32-01", Tracked: true, PointCount: 12},
		{DeviceID: "esp32-02"},
	})
	router := newRouter(tracker)

	// Execute
	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	envelope, data := decodeEnvelope(t, rec)
	assert.Equal(t, 0, envelope.Code)
	var statuses []models.DeviceStatus
	require.NoError(t, json.Unmarshal(data, &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "esp32-01", statuses[0].DeviceID)
	assert.True(t, statuses[0].Tracked)
}

// TestAPI_GetTrack verifies a tracked device returns its snapshot.
func TestAPI_GetTrack(t *testing.T) {
	// Setup
	tracker := new(mocks.MockTracker)
	tracker.On("Tracked", "esp32-01").Return(true)
	tracker.On("Snapshot", "esp32-01").Return(sampleSnapshot(), true)
	router := newRouter(tracker)

	// Execute
	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices/esp32-01/track")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := decodeEnvelope(t, rec)
	var snap models.TrackSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "esp32-01", snap.DeviceID)
	assert.Equal(t, uint64(4), snap.Generation)
	assert.Equal(t, constants.SourceRemote, snap.Source)
	require.NotNil(t, snap.Latest)
	assert.Equal(t, 10.001, snap.Latest.Lat)
}

// TestAPI_GetTrack_UnknownDevice verifies an untracked device is a 404.
func TestAPI_GetTrack_UnknownDevice(t *testing.T) {
	// Setup
	tracker := new(mocks.MockTracker)
	tracker.On("Tracked", "ghost").Return(false)
	router := newRouter(tracker)

	// Execute
	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices/ghost/track")

	// Assert
	assert.Equal(t, http.StatusNotFound, rec.Code)
	envelope, _ := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusNotFound, envelope.Code)
}

// TestAPI_GetTrack_NoCycleYet verifies a tracked device without a completed
// cycle answers with an empty snapshot instead of an error.
func TestAPI_GetTrack_NoCycleYet(t *testing.T) {
	// Setup
	tracker := new(mocks.MockTracker)
	tracker.On("Tracked", "esp32-02").Return(true)
	tracker.On("Snapshot", "esp32-02").Return(models.TrackSnapshot{}, false)
	router := newRouter(tracker)

	// Execute
	rec := doRequest(t, router, http.MethodGet, "/api/v1/devices/esp32-02/track")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := decodeEnvelope(t, rec)
	var snap models.TrackSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "esp32-02", snap.DeviceID)
	assert.Equal(t, constants.SourceNone, snap.Source)
	assert.Empty(t, snap.Trace)
}

// TestAPI_RefreshDevice verifies the manual refresh path returns the fresh snapshot.
func TestAPI_RefreshDevice(t *testing.T) {
	// Setup
	tracker := new(mocks.MockTracker)
	tracker.On("Tracked", "esp32-01").Return(true)
	tracker.On("Refresh", "esp32-01").Return(sampleSnapshot(), nil)
	router := newRouter(tracker)

	// Execute
	rec := doRequest(t, router, http.MethodPost, "/api/v1/devices/esp32-01/refresh")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	tracker.AssertCalled(t, "Refresh", "esp32-01")
	_, data := decodeEnvelope(t, rec)
	var snap models.TrackSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, uint64(4), snap.Generation)
}

// TestAPI_RefreshDevice_FetchFailure verifies an upstream failure maps to 502.
func TestAPI_RefreshDevice_FetchFailure(t *testing.T) {
	// Setup
	tracker := new(mocks.MockTracker)
	tracker.On("Tracked", "esp32-01").Return(true)
	tracker.On("Refresh", "esp32-01").Return(models.TrackSnapshot{},
		&reconcile.FetchError{DeviceID: "esp32-01", Err: errors.New("connection refused")})
	router := newRouter(tracker)

	// Execute
	rec := doRequest(t, router, http.MethodPost, "/api/v1/devices/esp32-01/refresh")

	// Assert
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

// TestAPI_ClearCache verifies the cache reset endpoint.
func TestAPI_ClearCache(t *testing.T) {
	// Setup
	tracker := new(mocks.MockTracker)
	tracker.On("Tracked", "esp32-01").Return(true)
	tracker.On("ClearCache", "esp32-01").Return(nil)
	router := newRouter(tracker)

	// Execute
	rec := doRequest(t, router, http.MethodDelete, "/api/v1/devices/esp32-01/cache")

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	tracker.AssertCalled(t, "ClearCache", "esp32-01")
	assert.Contains(t, rec.Body.String(), `"cleared":true`)
}

// TestAPI_ClearCache_Failure verifies a backend failure maps to 500.
func TestAPI_ClearCache_Failure(t *testing.T) {
	// Setup
	tracker := new(mocks.MockTracker)
	tracker.On("Tracked", "esp32-01").Return(true)
	tracker.On("ClearCache", "esp32-01").Return(errors.New("read-only filesystem"))
	router := newRouter(tracker)

	// Execute
	rec := doRequest(t, router, http.MethodDelete, "/api/v1/devices/esp32-01/cache")

	// Assert
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// TestAPI_CORSPreflight verifies OPTIONS requests short-circuit with the CORS headers.
func TestAPI_CORSPreflight(t *testing.T) {
	// Setup
	router := newRouter(new(mocks.MockTracker))
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()

	// Execute
	router.ServeHTTP(rec, req)

	// Assert
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// TestAPI_Metrics verifies the Prometheus registry is exposed.
func TestAPI_Metrics(t *testing.T) {
	// Setup
	router := newRouter(new(mocks.MockTracker))
	metrics.UpdateDevicesTracked(2)

	// Execute
	rec := doRequest(t, router, http.MethodGet, "/metrics")

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fieldtrack_tracker_devices_tracked")
}
