package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/internal/models"
	"github.com/fieldtrack/agent/internal/reconcile"
	"github.com/fieldtrack/agent/pkg/identity"
	"github.com/fieldtrack/agent/pkg/response"
)

// Tracker is the slice of the tracker service the API consumes.
type Tracker interface {
	Devices() []string
	Tracked(deviceID string) bool
	Snapshot(deviceID string) (models.TrackSnapshot, bool)
	Statuses() []models.DeviceStatus
	Refresh(deviceID string) (models.TrackSnapshot, error)
	ClearCache(deviceID string) error
}

// TrackHandler handles HTTP requests for device tracks
type TrackHandler struct {
	tracker   Tracker
	agentInfo identity.AgentInfoInterface
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(tracker Tracker, agentInfo identity.AgentInfoInterface) *TrackHandler {
	return &TrackHandler{
		tracker:   tracker,
		agentInfo: agentInfo,
	}
}

// Health handles GET /health
func (h *TrackHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"agent_id": h.agentInfo.GetAgentID(),
		"version":  constants.AgentVersion,
	})
}

// ListDevices handles GET /api/v1/devices
func (h *TrackHandler) ListDevices(c *gin.Context) {
	response.Success(c, h.tracker.Statuses())
}

// GetTrack handles GET /api/v1/devices/:id/track
func (h *TrackHandler) GetTrack(c *gin.Context) {
	id := c.Param("id")
	if !h.tracker.Tracked(id) {
		response.NotFound(c, "Device is not tracked")
		return
	}

	snap, ok := h.tracker.Snapshot(id)
	if !ok {
		// No cycle has completed yet; answer with an empty snapshot
		// rather than an error.
		snap = models.TrackSnapshot{DeviceID: id, Source: constants.SourceNone}
	}
	response.Success(c, snap)
}

// RefreshDevice handles POST /api/v1/devices/:id/refresh
func (h *TrackHandler) RefreshDevice(c *gin.Context) {
	id := c.Param("id")
	if !h.tracker.Tracked(id) {
		response.NotFound(c, "Device is not tracked")
		return
	}

	snap, err := h.tracker.Refresh(id)
	if err != nil {
		var verr *reconcile.ValidationError
		var ferr *reconcile.FetchError
		switch {
		case errors.As(err, &verr):
			response.BadRequest(c, err.Error())
		case errors.As(err, &ferr):
			response.BadGateway(c, err.Error())
		default:
			response.InternalError(c, err.Error())
		}
		return
	}
	response.Success(c, snap)
}

// ClearCache handles DELETE /api/v1/devices/:id/cache
func (h *TrackHandler) ClearCache(c *gin.Context) {
	id := c.Param("id")
	if !h.tracker.Tracked(id) {
		response.NotFound(c, "Device is not tracked")
		return
	}

	if err := h.tracker.ClearCache(id); err != nil {
		response.InternalError(c, err.Error())
		return
	}
	response.Success(c, gin.H{"device_id": id, "cleared": true})
}
