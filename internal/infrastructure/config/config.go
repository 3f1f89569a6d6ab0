package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/bluerial/internal/protocol"
)

// Keying schemes for the presence cache.
const (
	// KeyingAddress keys devices by their 48-bit radio address.
	KeyingAddress = "address"

	// KeyingStableID keys devices by a resolved identity that survives address rotation.
	KeyingStableID = "stable_id"
)

// Config is the root configuration structure for Bluerial.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	BLE      BLEConfig      `yaml:"ble"`
	Serial   SerialConfig   `yaml:"serial"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BLEConfig contains advertisement scanning and presence cache settings.
type BLEConfig struct {
	// DeviceID is the HCI adapter index (hci0 = 0).
	DeviceID int `yaml:"device_id"`

	// Autostart begins listening as soon as the service is up.
	// When false, listening starts on the first ble-start command.
	Autostart bool `yaml:"autostart"`

	// Keying selects how devices are identified: "address" or "stable_id".
	// The scheme is fixed for the lifetime of the process.
	Keying string `yaml:"keying"`

	// HeartbeatTimeout is the silence (seconds) after which a device is evicted.
	// Default: 30
	HeartbeatTimeout int `yaml:"heartbeat_timeout"`

	// SweepInterval is how often (seconds) the periodic eviction sweep runs.
	// Default: 5
	SweepInterval int `yaml:"sweep_interval"`

	// AllowDuplicates asks the controller to report every advertisement
	// rather than filtering repeats.
	AllowDuplicates bool `yaml:"allow_duplicates"`

	// ActiveScan sends scan requests so scan responses (names) are received.
	ActiveScan bool `yaml:"active_scan"`

	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// KnownDevices seeds the known-device registry on startup.
	KnownDevices []KnownDeviceConfig `yaml:"known_devices"`
}

// EnrichmentConfig contains settings for the best-effort identity lookup.
type EnrichmentConfig struct {
	Enabled bool `yaml:"enabled"`

	// Timeout bounds a single lookup (milliseconds). Default: 500
	Timeout int `yaml:"timeout_ms"`

	// CacheTTL is how long (seconds) a lookup result is reused. Default: 60
	CacheTTL int `yaml:"cache_ttl"`

	// Workers is the number of concurrent lookups. Default: 2
	Workers int `yaml:"workers"`

	// QueueSize bounds pending lookups; requests beyond it are dropped. Default: 64
	QueueSize int `yaml:"queue_size"`
}

// KnownDeviceConfig describes one entry of the known-device seed list.
type KnownDeviceConfig struct {
	Address  string `yaml:"address"`
	StableID string `yaml:"stable_id"`
	Name     string `yaml:"name"`
	Pairable bool   `yaml:"pairable"`
	Paired   bool   `yaml:"paired"`
}

// SerialConfig contains the UART framer settings.
type SerialConfig struct {
	Enabled bool `yaml:"enabled"`

	// Port is opened at startup when set (e.g. "/dev/ttyUSB0", "COM3").
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	Parity   string `yaml:"parity"`
	DataBits int    `yaml:"data_bits"`
	StopBits string `yaml:"stop_bits"`

	// STX and ETX are comma-separated hex bytes wrapped around every frame.
	STX string `yaml:"stx"`
	ETX string `yaml:"etx"`

	// Forward lists device keys whose vendor payload is written to the port
	// whenever it changes.
	Forward []string `yaml:"forward"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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

// MQTTTopicsConfig names the queues carrying the text command protocol.
// Consumer topics carry commands into a service, producer topics carry
// notifications out of it.
type MQTTTopicsConfig struct {
	BLEConsumer    string `yaml:"ble_consumer"`
	BLEProducer    string `yaml:"ble_producer"`
	SerialConsumer string `yaml:"serial_consumer"`
	SerialProducer string `yaml:"serial_producer"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	WALMode     bool          `yaml:"wal_mode"`
	BusyTimeout int           `yaml:"busy_timeout"`
	History     HistoryConfig `yaml:"history"`
}

// HistoryConfig contains sighting history settings.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// QueueSize bounds pending history writes. Default: 256
	QueueSize int `yaml:"queue_size"`

	// RetentionDays prunes sightings older than this many days.
	// 0 keeps history forever. Default: 30
	RetentionDays int `yaml:"retention_days"`
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
// Environment variables follow the pattern: BLUERIAL_SECTION_KEY
// For example: BLUERIAL_DATABASE_PATH, BLUERIAL_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
// Used by tooling that only needs broker settings (e.g. the console).
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		BLE: BLEConfig{
			Keying:           KeyingAddress,
			HeartbeatTimeout: 30,
			SweepInterval:    5,
			ActiveScan:       true,
			Enrichment: EnrichmentConfig{
				Timeout:   500,
				CacheTTL:  60,
				Workers:   2,
				QueueSize: 64,
			},
		},
		Serial: SerialConfig{
			BaudRate: 9600,
			Parity:   "None",
			DataBits: 8,
			StopBits: "One",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bluerial",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			Topics: MQTTTopicsConfig{
				BLEConsumer:    "bluerial/ble/consumer",
				BLEProducer:    "bluerial/ble/producer",
				SerialConsumer: "bluerial/serial/consumer",
				SerialProducer: "bluerial/serial/producer",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/bluerial.db",
			WALMode:     true,
			BusyTimeout: 5,
			History: HistoryConfig{
				Enabled:       true,
				QueueSize:     256,
				RetentionDays: 30,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BLUERIAL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// BLE
	if v := os.Getenv("BLUERIAL_BLE_KEYING"); v != "" {
		cfg.BLE.Keying = v
	}
	if v := os.Getenv("BLUERIAL_BLE_DEVICE_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.BLE.DeviceID = id
		}
	}

	// Serial
	if v := os.Getenv("BLUERIAL_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}

	// Database
	if v := os.Getenv("BLUERIAL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BLUERIAL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BLUERIAL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BLUERIAL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BLUERIAL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// BLE validation
	switch c.BLE.Keying {
	case KeyingAddress, KeyingStableID:
	default:
		errs = append(errs, fmt.Sprintf("ble.keying must be %q or %q", KeyingAddress, KeyingStableID))
	}
	if c.BLE.HeartbeatTimeout <= 0 {
		errs = append(errs, "ble.heartbeat_timeout must be positive")
	}
	if c.BLE.SweepInterval <= 0 {
		errs = append(errs, "ble.sweep_interval must be positive")
	}
	if c.BLE.Keying == KeyingStableID && !c.BLE.Enrichment.Enabled {
		errs = append(errs, "ble.enrichment.enabled is required for stable_id keying")
	}

	// Serial validation
	if _, err := protocol.ParseHexBytes(c.Serial.STX); err != nil {
		errs = append(errs, fmt.Sprintf("serial.stx: %v", err))
	}
	if _, err := protocol.ParseHexBytes(c.Serial.ETX); err != nil {
		errs = append(errs, fmt.Sprintf("serial.etx: %v", err))
	}
	if c.Serial.Enabled && c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.History.RetentionDays < 0 {
		errs = append(errs, "database.history.retention_days must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.BLEConsumer == "" || c.MQTT.Topics.BLEProducer == "" {
		errs = append(errs, "mqtt.topics.ble_consumer and ble_producer are required")
	}
	if c.Serial.Enabled && (c.MQTT.Topics.SerialConsumer == "" || c.MQTT.Topics.SerialProducer == "") {
		errs = append(errs, "mqtt.topics.serial_consumer and serial_producer are required when serial is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHeartbeatTimeout returns the presence heartbeat timeout as a Duration.
func (c *Config) GetHeartbeatTimeout() time.Duration {
	return time.Duration(c.BLE.HeartbeatTimeout) * time.Second
}

// GetSweepInterval returns the periodic eviction interval as a Duration.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.BLE.SweepInterval) * time.Second
}

// GetEnrichmentTimeout returns the per-lookup enrichment timeout as a Duration.
func (c *Config) GetEnrichmentTimeout() time.Duration {
	return time.Duration(c.BLE.Enrichment.Timeout) * time.Millisecond
}

// GetHistoryRetention returns how long sightings are kept, or 0 for forever.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Database.History.RetentionDays) * 24 * time.Hour
}

// GetEnrichmentCacheTTL returns how long enrichment results are reused.
func (c *Config) GetEnrichmentCacheTTL() time.Duration {
	return time.Duration(c.BLE.Enrichment.CacheTTL) * time.Second
}
