package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

// Config is the root configuration structure for the KNX/IP device daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Multicast MulticastConfig `yaml:"multicast"`
	Storage   StorageConfig   `yaml:"storage"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig contains the KNX device identity and table sizes.
type DeviceConfig struct {
	// PhysicalAddress is the factory address in "area.line.member" form.
	// A stored address replaces it once the device has been saved.
	PhysicalAddress string `yaml:"physical_address"`

	// Capacities are the fixed table sizes. Changing any of them
	// invalidates previously saved data.
	Capacities knxip.Capacities `yaml:"capacities"`

	// Dispatch is "first" or "all".
	Dispatch string `yaml:"dispatch"`

	IgnoreSelfEcho bool `yaml:"ignore_self_echo"`
	SendChecksum   bool `yaml:"send_checksum"`
}

// MulticastConfig contains the KNX/IP routing multicast settings.
type MulticastConfig struct {
	Group       string        `yaml:"group"`
	Port        int           `yaml:"port"`
	Interface   string        `yaml:"interface"`
	Loopback    bool          `yaml:"loopback"`
	TTL         int           `yaml:"ttl"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// StorageConfig selects the non-volatile store backing save/load.
type StorageConfig struct {
	// Backend is "memory", "file" or "sqlite".
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Size        int    `yaml:"size"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled         bool                `yaml:"enabled"`
	Broker          MQTTBrokerConfig    `yaml:"broker"`
	Auth            MQTTAuthConfig      `yaml:"auth"`
	QoS             int                 `yaml:"qos"`
	TopicPrefix     string              `yaml:"topic_prefix"`
	PublishInterval time.Duration       `yaml:"publish_interval"`
	Reconnect       MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MetricsConfig controls the Prometheus endpoint on the API server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KNXIP_SECTION_KEY
// For example: KNXIP_STORAGE_PATH, KNXIP_API_PORT
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. The daemon runs on it
// when no config file is given.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			PhysicalAddress: "1.1.250",
			Capacities:      knxip.DefaultCapacities(),
			Dispatch:        "first",
		},
		Multicast: MulticastConfig{
			Group:       "224.0.23.12",
			Port:        3671,
			Loopback:    false,
			TTL:         16,
			ReadTimeout: time.Second,
		},
		Storage: StorageConfig{
			Backend:     "file",
			Path:        "./data/knxip.eeprom",
			Size:        4096,
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:             1,
			TopicPrefix:     "knxip",
			PublishInterval: 10 * time.Second,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KNXIP_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device
	if v := os.Getenv("KNXIP_DEVICE_PHYSICAL_ADDRESS"); v != "" {
		cfg.Device.PhysicalAddress = v
	}

	// Multicast
	if v := os.Getenv("KNXIP_MULTICAST_INTERFACE"); v != "" {
		cfg.Multicast.Interface = v
	}

	// Storage
	if v := os.Getenv("KNXIP_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("KNXIP_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}

	// MQTT
	if v := os.Getenv("KNXIP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KNXIP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KNXIP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("KNXIP_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("KNXIP_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing KNXIP_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// InfluxDB
	if v := os.Getenv("KNXIP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("KNXIP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if _, err := knxip.ParsePhysicalAddress(c.Device.PhysicalAddress); err != nil {
		errs = append(errs, fmt.Sprintf("device.physical_address %q is not area.line.member", c.Device.PhysicalAddress))
	}
	if err := c.Device.Capacities.Validate(); err != nil {
		errs = append(errs, "device.capacities: "+err.Error())
	}
	if _, err := knxip.ParseDispatchPolicy(c.Device.Dispatch); err != nil {
		errs = append(errs, "device.dispatch must be first or all")
	}

	// Multicast validation
	if c.Multicast.Port < 1 || c.Multicast.Port > 65535 {
		errs = append(errs, "multicast.port must be between 1 and 65535")
	}
	if c.Multicast.TTL < 0 || c.Multicast.TTL > 255 {
		errs = append(errs, "multicast.ttl must be between 0 and 255")
	}

	// Storage validation
	switch c.Storage.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, "storage.path is required for the "+c.Storage.Backend+" backend")
		}
	default:
		errs = append(errs, "storage.backend must be memory, file or sqlite")
	}
	if need := knxip.ImageSize(c.Device.Capacities); c.Storage.Size < need {
		errs = append(errs, fmt.Sprintf("storage.size must be at least %d bytes for the configured capacities", need))
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PhysicalAddress returns the parsed device address. Call after Validate.
func (c *Config) PhysicalAddress() knxip.Address {
	pa, _ := knxip.ParsePhysicalAddress(c.Device.PhysicalAddress)
	return pa
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
