package service_registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/fieldtrack/agent/internal/api"
	"github.com/fieldtrack/agent/internal/reconcile"
	"github.com/fieldtrack/agent/internal/registry"
	"github.com/fieldtrack/agent/internal/services"
	"github.com/fieldtrack/agent/internal/store"
	"github.com/fieldtrack/agent/internal/utils"
	"github.com/fieldtrack/agent/pkg/identity"
	"github.com/fieldtrack/agent/pkg/metrics"
	"github.com/fieldtrack/agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of the agent's long-running services.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with shared dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
// The tracker is registered first so the API always observes a constructed tracker.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, engine *reconcile.Engine,
	cache store.Store, agentInfo identity.AgentInfoInterface) error {
	var tracker *services.TrackerService

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "tracker",
			enabled: true,
			constructor: func() (registry.Service, error) {
				var publisher mqtt.MQTTClient
				if config.MQTT.Enabled {
					publisher = sr.mqttClient
				}
				tracker = services.NewTrackerService(
					config.Tracker.Devices,
					time.Duration(config.Tracker.Interval)*time.Second,
					config.MQTT.TopicPrefix,
					config.MQTT.QOS,
					config.Tracker.Workers,
					config.Tracker.Workers*2,
					engine,
					cache,
					publisher,
					sr.Logger,
				)
				return tracker, nil
			},
		},
		{
			name:    "api",
			enabled: config.API.Enabled,
			constructor: func() (registry.Service, error) {
				handler := api.NewTrackHandler(tracker, agentInfo)
				router := api.SetupRouter(handler, metrics.GetRegistry(), config.API.AllowedOrigins, sr.Logger)
				return api.NewAPIService(config.API.Listen, router, sr.Logger), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
