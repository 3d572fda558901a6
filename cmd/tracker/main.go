package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fieldtrack/agent/internal/constants"
	"github.com/fieldtrack/agent/internal/reconcile"
	"github.com/fieldtrack/agent/internal/service_registry"
	"github.com/fieldtrack/agent/internal/store"
	"github.com/fieldtrack/agent/internal/utils"
	"github.com/fieldtrack/agent/pkg/encryption"
	"github.com/fieldtrack/agent/pkg/file"
	"github.com/fieldtrack/agent/pkg/geocode"
	"github.com/fieldtrack/agent/pkg/identity"
	"github.com/fieldtrack/agent/pkg/metrics"
	"github.com/fieldtrack/agent/pkg/mqtt"
	"github.com/fieldtrack/agent/pkg/remote"
	"github.com/fieldtrack/agent/pkg/trace"
)

func main() {
	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	configPath := os.Getenv("FIELDTRACK_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		log.Warn().Str("level", config.Logging.Level).Msg("Unknown log level, staying on info")
		level = zerolog.InfoLevel
	}
	log = log.Level(level)

	// Establish the agent identity, minting one on first run
	agentInfo := identity.NewAgentInfo(config.Identity.AgentFile, fileClient)
	if err := agentInfo.LoadAgentInfo(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load agent identity")
	}
	agentID, err := agentInfo.EnsureAgentID()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to establish agent identity")
	}
	log.Info().Str("agent_id", agentID).Str("version", constants.AgentVersion).Msg("Agent identity ready")

	// Cache encryption at rest, optional
	var encryptionManager encryption.EncryptionManagerInterface
	if config.Cache.Encryption.Enabled {
		manager := encryption.NewEncryptionManager(fileClient)
		if config.Cache.Encryption.KeyFile != "" {
			err = manager.Initialize(config.Cache.Encryption.KeyFile)
		} else {
			err = manager.InitializeFromPassphrase(config.Cache.Encryption.Passphrase, config.Cache.Encryption.SaltFile)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize cache encryption")
		}
		encryptionManager = manager
	}

	// Trace cache backend
	var cache store.Store
	switch config.Cache.Backend {
	case "sqlite":
		cache, err = store.NewSQLiteStore(config.Cache.SQLitePath, encryptionManager, agentID, log)
	default:
		cache, err = store.NewFileStore(config.Cache.Directory, fileClient, encryptionManager, agentID, log)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", config.Cache.Backend).Msg("Failed to open trace cache")
	}

	// Tracker backend the cycles fetch from
	var remoteClient remote.Client
	switch config.Remote.Source {
	case "serial":
		remoteClient = remote.NewSerialClient(config.Remote.GPSDevicePort, config.Remote.GPSBaudRate,
			time.Duration(config.Remote.Timeout)*time.Second)
	default:
		remoteClient = remote.NewHTTPClient(config.Remote.BaseURL, config.Remote.APIToken,
			time.Duration(config.Remote.Timeout)*time.Second)
	}

	// Reverse geocoding of latest reports, optional
	var geocoder geocode.Geocoder
	if config.Geocode.Enabled {
		g, err := geocode.NewGoogleGeocoder(config.Geocode.MapsAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create geocoder")
		}
		geocoder = g
	}

	engine := reconcile.NewEngine(remoteClient, cache, geocoder, trace.Options{
		MinYear:         config.Tracker.MinYear,
		JumpKmThreshold: config.Tracker.JumpKmThreshold,
		MaxFutureSec:    config.Tracker.MaxFutureSec,
	}, log)

	// Shared MQTT connection for retained snapshot publishing, optional
	mqttClient := mqtt.NewMqttService(fileClient)
	if config.MQTT.Enabled {
		clientID := config.MQTT.ClientID
		if clientID == "" {
			clientID = "fieldtrack-" + agentID
		}
		// Append a UUID so broker-side takeover never kicks a sibling agent
		clientID = clientID + "-" + uuid.New().String()
		log.Info().Str("client_id", clientID).Msg("Using MQTT client ID")
		if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.Username,
			config.MQTT.Password, config.MQTT.CACertificate); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
	}

	// Periodic process gauge refresh
	var metricsStop chan struct{}
	if config.Metrics.Enabled {
		metrics.RefreshProcessGauges()
		metricsStop = make(chan struct{})
		go func() {
			ticker := time.NewTicker(time.Duration(config.Metrics.Interval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					metrics.RefreshProcessGauges()
				case <-metricsStop:
					return
				}
			}
		}()
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, log)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, engine, cache, agentInfo); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if metricsStop != nil {
		close(metricsStop)
	}
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Service shutdown reported errors")
	}
	if err := remoteClient.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close tracker backend client")
	}
	if err := cache.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close trace cache")
	}
	if config.MQTT.Enabled {
		mqttClient.Disconnect(constants.MQTTDisconnectQuiesce)
	}
}
