package utils

import (
	"time"

	"github.com/fieldtrack/agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Logging struct {
		Level string `yaml:"level"` // Zerolog level name: trace, debug, info, warn, error
	} `yaml:"logging"`

	MQTT struct {
		Enabled       bool   `yaml:"enabled"`        // Enable/disable snapshot publishing
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		Username      string `yaml:"username"`       // MQTT username, optional
		Password      string `yaml:"password"`       // MQTT password, optional
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, enables TLS
		TopicPrefix   string `yaml:"topic_prefix"`   // Prefix for snapshot topics
		QOS           int    `yaml:"qos"`            // MQTT QoS level for snapshot messages
	} `yaml:"mqtt"`

	Identity struct {
		AgentFile string `yaml:"agent_file"` // Path to the agent identity file
	} `yaml:"identity"`

	Remote struct {
		Source        string        `yaml:"source"`          // Tracker source: http or serial
		BaseURL       string        `yaml:"base_url"`        // Base URL of the tracker backend
		APIToken      string        `yaml:"api_token"`       // Bearer token for the tracker backend
		Timeout       time.Duration `yaml:"timeout"`         // HTTP request timeout (in seconds)
		GPSDevicePort string        `yaml:"gps_device_port"` // UNIX port where the docked GPS unit is mounted
		GPSBaudRate   int           `yaml:"gps_baud_rate"`   // Baud rate for the docked GPS unit
	} `yaml:"remote"`

	Tracker struct {
		Devices         []string      `yaml:"devices"`           // Device IDs to reconcile each cycle
		Interval        time.Duration `yaml:"interval"`          // Interval between reconcile cycles (in seconds)
		Workers         int           `yaml:"workers"`           // Concurrent device reconciles per cycle
		MinYear         int           `yaml:"min_year"`          // Points before this calendar year are rejected
		JumpKmThreshold float64       `yaml:"jump_km_threshold"` // Displacement above this is a spike candidate
		MaxFutureSec    int64         `yaml:"max_future_sec"`    // Tolerated clock skew into the future
	} `yaml:"tracker"`

	Geocode struct {
		Enabled    bool   `yaml:"enabled"`      // Enable/disable reverse geocoding of latest reports
		MapsAPIKey string `yaml:"maps_api_key"` // Google Maps API key
	} `yaml:"geocode"`

	Cache struct {
		Backend    string `yaml:"backend"`     // Cache backend: file or sqlite
		Directory  string `yaml:"directory"`   // Directory for file cache entries
		SQLitePath string `yaml:"sqlite_path"` // Path to the sqlite cache database
		Encryption struct {
			Enabled    bool   `yaml:"enabled"`    // Encrypt cache entries at rest
			Passphrase string `yaml:"passphrase"` // Passphrase for key derivation
			KeyFile    string `yaml:"key_file"`   // Path to a raw 32-byte AES key, overrides passphrase
			SaltFile   string `yaml:"salt_file"`  // Path to the key derivation salt
		} `yaml:"encryption"`
	} `yaml:"cache"`

	API struct {
		Enabled        bool     `yaml:"enabled"`         // Enable/disable the HTTP API
		Listen         string   `yaml:"listen"`          // Listen address for the HTTP API
		AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins allowed to call the API
	} `yaml:"api"`

	Metrics struct {
		Enabled  bool          `yaml:"enabled"`  // Enable/disable Prometheus metrics
		Interval time.Duration `yaml:"interval"` // Interval between process gauge refreshes (in seconds)
	} `yaml:"metrics"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	// Use the ReadYamlFile method from fileClient
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills in the settings a minimal config file leaves out.
// Sanitizer thresholds stay zero here; the trace package resolves those.
func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Remote.Source == "" {
		c.Remote.Source = "http"
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 10
	}
	if c.Tracker.Interval == 0 {
		c.Tracker.Interval = 60
	}
	if c.Tracker.Workers == 0 {
		c.Tracker.Workers = 4
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 15
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "fieldtrack/devices"
	}
}
