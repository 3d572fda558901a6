// Package api serves the read-mostly console surface for dashboards:
// device listings, reconciled tracks, manual refresh and cache reset,
// plus health and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// APIService runs the HTTP server as a managed service.
type APIService struct {
	// Configuration fields
	listen string

	// Dependencies
	server *http.Server
	logger zerolog.Logger

	// Internal state management
	running bool
}

// NewAPIService creates a new APIService serving the given router.
func NewAPIService(listen string, router *gin.Engine, logger zerolog.Logger) *APIService {
	return &APIService{
		listen: listen,
		server: &http.Server{
			Addr:              listen,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listen address and begins serving. Bind failures are
// returned synchronously so a bad address fails agent startup.
func (a *APIService) Start() error {
	if a.running {
		a.logger.Warn().Msg("APIService is already running")
		return errors.New("api service is already running")
	}

	listener, err := net.Listen("tcp", a.listen)
	if err != nil {
		a.logger.Error().Err(err).Str("listen", a.listen).Msg("Failed to bind API listen address")
		return err
	}

	a.running = true
	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("API server terminated unexpectedly")
		}
	}()

	a.logger.Info().Str("listen", a.listen).Msg("APIService started")
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (a *APIService) Stop() error {
	if !a.running {
		a.logger.Warn().Msg("APIService is not running")
		return errors.New("api service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shut down API server cleanly")
		return err
	}

	a.running = false
	a.logger.Info().Msg("APIService stopped")
	return nil
}
