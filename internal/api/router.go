package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fieldtrack/agent/internal/middleware"
)

// Mutating endpoints trigger remote fetches or destroy cache state, so
// they carry a per-client budget.
const (
	mutationLimit  = 10
	mutationWindow = time.Minute
)

// SetupRouter builds the gin engine with all console routes attached.
func SetupRouter(handler *TrackHandler, registry *prometheus.Registry, allowedOrigins []string, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.RequestLogger(logger), gin.Recovery(), middleware.CORS(allowedOrigins))

	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		devices := api.Group("/devices")
		{
			devices.GET("", handler.ListDevices)
			devices.GET("/:id/track", handler.GetTrack)

			mutating := devices.Group("", middleware.RateLimit(mutationLimit, mutationWindow))
			{
				mutating.POST("/:id/refresh", handler.RefreshDevice)
				mutating.DELETE("/:id/cache", handler.ClearCache)
			}
		}
	}

	return r
}
