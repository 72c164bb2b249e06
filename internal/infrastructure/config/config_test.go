package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/knxip-device/internal/knxip"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  physical_address: "1.2.42"
  capacities:
    callbacks: 4
    assignments: 8
  dispatch: all
  ignore_self_echo: true
multicast:
  interface: eth0
  read_timeout: 250ms
storage:
  backend: sqlite
  path: "/tmp/knxip.db"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
  topic_prefix: "house/knx"
api:
  port: 8081
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.PhysicalAddress(); got != knxip.PhysicalAddress(1, 2, 42) {
		t.Errorf("PhysicalAddress() = %s, want 1.2.42", got.PhysicalString())
	}
	if cfg.Device.Capacities.Callbacks != 4 || cfg.Device.Capacities.Assignments != 8 {
		t.Errorf("Capacities = %+v", cfg.Device.Capacities)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Device.Capacities.ConfigSpace != 512 {
		t.Errorf("Capacities.ConfigSpace = %d, want default 512", cfg.Device.Capacities.ConfigSpace)
	}
	if cfg.Multicast.Group != "224.0.23.12" || cfg.Multicast.Port != 3671 {
		t.Errorf("Multicast = %s:%d, want 224.0.23.12:3671", cfg.Multicast.Group, cfg.Multicast.Port)
	}
	if cfg.Multicast.ReadTimeout != 250*time.Millisecond {
		t.Errorf("Multicast.ReadTimeout = %v, want 250ms", cfg.Multicast.ReadTimeout)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "/tmp/knxip.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.MQTT.TopicPrefix != "house/knx" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "house/knx")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
device:
  physical_address: "1/2/3"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for group-form physical address, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory backend without path", func(c *Config) { c.Storage.Backend = "memory"; c.Storage.Path = "" }, false},
		{"bad physical address", func(c *Config) { c.Device.PhysicalAddress = "16.0.1" }, true},
		{"capacity out of range", func(c *Config) { c.Device.Capacities.Callbacks = 255 }, true},
		{"unknown dispatch", func(c *Config) { c.Device.Dispatch = "random" }, true},
		{"multicast port", func(c *Config) { c.Multicast.Port = 0 }, true},
		{"ttl", func(c *Config) { c.Multicast.TTL = 300 }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "flash" }, true},
		{"file backend without path", func(c *Config) { c.Storage.Path = "" }, true},
		{"store smaller than image", func(c *Config) { c.Storage.Size = 64 }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"mqtt without prefix", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicPrefix = "" }, true},
		{"influxdb without bucket", func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.URL = "http://influx:8086" }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("KNXIP_DEVICE_PHYSICAL_ADDRESS", "3.3.3")
	t.Setenv("KNXIP_MULTICAST_INTERFACE", "wlan0")
	t.Setenv("KNXIP_STORAGE_BACKEND", "sqlite")
	t.Setenv("KNXIP_STORAGE_PATH", "/custom/path.db")
	t.Setenv("KNXIP_MQTT_HOST", "mqtt.example.com")
	t.Setenv("KNXIP_MQTT_USERNAME", "testuser")
	t.Setenv("KNXIP_MQTT_PASSWORD", "testpass")
	t.Setenv("KNXIP_API_HOST", "192.168.1.1")
	t.Setenv("KNXIP_API_PORT", "9090")
	t.Setenv("KNXIP_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("KNXIP_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	checks := []struct {
		name, got, want string
	}{
		{"Device.PhysicalAddress", cfg.Device.PhysicalAddress, "3.3.3"},
		{"Multicast.Interface", cfg.Multicast.Interface, "wlan0"},
		{"Storage.Backend", cfg.Storage.Backend, "sqlite"},
		{"Storage.Path", cfg.Storage.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestApplyEnvOverrides_BadPort(t *testing.T) {
	t.Setenv("KNXIP_API_PORT", "eighty")
	if err := applyEnvOverrides(Default()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port, got nil")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Device.Capacities != knxip.DefaultCapacities() {
		t.Errorf("Default capacities = %+v", cfg.Device.Capacities)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Default API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Device.SendChecksum {
		t.Error("Default SendChecksum = true, want false")
	}
}
