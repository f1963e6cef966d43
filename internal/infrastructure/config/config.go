package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the EDUSAT bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Serial    SerialConfig    `yaml:"serial"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Network   NetworkConfig   `yaml:"network"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SerialConfig contains MCU serial link settings.
type SerialConfig struct {
	// Path selects a port explicitly (e.g. "/dev/ttyACM0"). Empty means discover.
	Path string `yaml:"path"`

	// VendorID and ProductID narrow discovery to a USB device (hex, e.g. "2341").
	VendorID  string `yaml:"vendor_id"`
	ProductID string `yaml:"product_id"`

	BaudRate int `yaml:"baud_rate"`

	// ReadBufferSize is the chunk size handed to the frame parser per read.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// CommandPrefix is written before every outbound command.
	CommandPrefix string `yaml:"command_prefix"`

	Retry SerialRetryConfig `yaml:"retry"`
}

// SerialRetryConfig controls background retry of device discovery and open.
type SerialRetryConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"` // seconds
	MaxDelay     int  `yaml:"max_delay"`     // seconds
}

// ProtocolConfig contains serial frame protocol settings.
type ProtocolConfig struct {
	MaxFrameBytes int             `yaml:"max_frame_bytes"`
	FieldOrder    string          `yaml:"field_order"`  // interleaved | sequential
	FieldFormat   string          `yaml:"field_format"` // plain | indexed
	Channels      []ChannelConfig `yaml:"channels"`
}

// ChannelConfig declares one sensor channel and its fixed slot count.
type ChannelConfig struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
	Tag  string `yaml:"tag"` // group letter for indexed frames; defaults to the name's first letter
}

// SensorConfig contains sensor update policy settings.
type SensorConfig struct {
	Jitter JitterConfig `yaml:"jitter"`
}

// JitterConfig describes the transformation applied to one channel on update.
type JitterConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Channel   string  `yaml:"channel"`
	Amplitude float64 `yaml:"amplitude"`
	Mode      string  `yaml:"mode"` // replace | offset
}

// NetworkConfig contains settings for the upstream event channel.
type NetworkConfig struct {
	Transport        string          `yaml:"transport"` // websocket | mqtt
	Greeting         string          `yaml:"greeting"`
	ReconnectMessage string          `yaml:"reconnect_message"`
	WebSocket        WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig contains WebSocket client settings.
type WebSocketConfig struct {
	URL            string                   `yaml:"url"`
	MaxMessageSize int                      `yaml:"max_message_size"`
	PingInterval   int                      `yaml:"ping_interval"` // seconds
	PongTimeout    int                      `yaml:"pong_timeout"`  // seconds
	HandshakeTime  int                      `yaml:"handshake_timeout"`
	Reconnect      WebSocketReconnectConfig `yaml:"reconnect"`
}

// WebSocketReconnectConfig contains WebSocket reconnection settings.
type WebSocketReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"` // seconds
	MaxDelay     int `yaml:"max_delay"`     // seconds
	MaxAttempts  int `yaml:"max_attempts"`  // 0 = unlimited
}

// BroadcastConfig controls the periodic snapshot push.
type BroadcastConfig struct {
	// RateHz is the push frequency. 0 disables the periodic push.
	RateHz float64 `yaml:"rate_hz"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`

	// ConnectTimeout bounds each dial and the wait for the first
	// connection at startup, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
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

// APIConfig contains status API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	Advertise bool             `yaml:"advertise"` // announce over mDNS

	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite telemetry journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// MinInterval is the minimum spacing between journal rows in milliseconds.
	MinInterval int `yaml:"min_interval"`
	// Retention is how many rows are kept. 0 keeps everything.
	Retention int `yaml:"retention"`
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
	Output string `yaml:"output"` // stdout | stderr | file
	File   string `yaml:"file"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EDUSAT_SECTION_KEY
// For example: EDUSAT_SERIAL_PATH, EDUSAT_NETWORK_URL
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

// Default returns the built-in configuration with environment overrides applied.
// Used when no config file is present.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with the values the MCU firmware expects.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:   "edusat-01",
			Name: "EDUSAT Bridge",
		},
		Serial: SerialConfig{
			BaudRate:       9600,
			ReadBufferSize: 256,
			CommandPrefix:  "c",
			Retry: SerialRetryConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Protocol: ProtocolConfig{
			MaxFrameBytes: 512,
			FieldOrder:    "interleaved",
			FieldFormat:   "plain",
			Channels: []ChannelConfig{
				{Name: "voltage", Size: 6},
				{Name: "current", Size: 6},
				{Name: "temperature", Size: 4},
			},
		},
		Sensor: SensorConfig{
			Jitter: JitterConfig{
				Channel:   "temperature",
				Amplitude: 5,
				Mode:      "replace",
			},
		},
		Network: NetworkConfig{
			Transport:        "websocket",
			Greeting:         "Hello from client!",
			ReconnectMessage: "Number of reconnects: %d",
			WebSocket: WebSocketConfig{
				URL:            "ws://localhost:3000/ws",
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
				HandshakeTime:  10,
				Reconnect: WebSocketReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     30,
				},
			},
		},
		Broadcast: BroadcastConfig{
			RateHz: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:           1883,
				ClientID:       "edusat-bridge",
				ConnectTimeout: 10,
			},
			QoS:         1,
			TopicPrefix: "edusat",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/edusat.db",
			WALMode:     true,
			BusyTimeout: 5,
			MinInterval: 1000,
			Retention:   100000,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "edusat",
			Bucket:        "telemetry",
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
// Environment variables follow the pattern: EDUSAT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("EDUSAT_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}

	// Serial
	if v := os.Getenv("EDUSAT_SERIAL_PATH"); v != "" {
		cfg.Serial.Path = v
	}
	if v := os.Getenv("EDUSAT_SERIAL_BAUD_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Serial.BaudRate = n
		}
	}

	// Network
	if v := os.Getenv("EDUSAT_NETWORK_TRANSPORT"); v != "" {
		cfg.Network.Transport = v
	}
	if v := os.Getenv("EDUSAT_NETWORK_URL"); v != "" {
		cfg.Network.WebSocket.URL = v
	}

	// MQTT
	if v := os.Getenv("EDUSAT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EDUSAT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("EDUSAT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("EDUSAT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("EDUSAT_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("EDUSAT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("EDUSAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	// Serial
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}
	if c.Serial.ReadBufferSize <= 0 {
		errs = append(errs, "serial.read_buffer_size must be positive")
	}
	if c.Serial.Retry.Enabled && c.Serial.Retry.InitialDelay <= 0 {
		errs = append(errs, "serial.retry.initial_delay must be positive when retry is enabled")
	}

	// Protocol
	if c.Protocol.MaxFrameBytes <= 0 {
		errs = append(errs, "protocol.max_frame_bytes must be positive")
	}
	switch c.Protocol.FieldOrder {
	case "interleaved", "sequential":
	default:
		errs = append(errs, "protocol.field_order must be interleaved or sequential")
	}
	switch c.Protocol.FieldFormat {
	case "", "plain", "indexed":
	default:
		errs = append(errs, "protocol.field_format must be plain or indexed")
	}
	if len(c.Protocol.Channels) == 0 {
		errs = append(errs, "protocol.channels must declare at least one channel")
	}
	seen := make(map[string]bool, len(c.Protocol.Channels))
	for i, ch := range c.Protocol.Channels {
		if ch.Name == "" {
			errs = append(errs, fmt.Sprintf("protocol.channels[%d].name is required", i))
		} else if seen[ch.Name] {
			errs = append(errs, fmt.Sprintf("protocol.channels[%d].name %q is duplicated", i, ch.Name))
		}
		seen[ch.Name] = true
		if ch.Size <= 0 {
			errs = append(errs, fmt.Sprintf("protocol.channels[%d].size must be positive", i))
		}
		if len(ch.Tag) > 1 {
			errs = append(errs, fmt.Sprintf("protocol.channels[%d].tag must be a single letter", i))
		}
	}

	// Sensor
	if c.Sensor.Jitter.Enabled {
		if !seen[c.Sensor.Jitter.Channel] {
			errs = append(errs, fmt.Sprintf("sensor.jitter.channel %q is not a declared channel", c.Sensor.Jitter.Channel))
		}
		switch c.Sensor.Jitter.Mode {
		case "replace", "offset":
		default:
			errs = append(errs, "sensor.jitter.mode must be replace or offset")
		}
	}

	// Network
	switch c.Network.Transport {
	case "websocket":
		if c.Network.WebSocket.URL == "" {
			errs = append(errs, "network.websocket.url is required for the websocket transport")
		}
	case "mqtt":
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required for the mqtt transport")
		}
	default:
		errs = append(errs, "network.transport must be websocket or mqtt")
	}

	if c.Broadcast.RateHz < 0 {
		errs = append(errs, "broadcast.rate_hz must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Logging.Output == "file" && c.Logging.File == "" {
		errs = append(errs, "logging.file is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BroadcastInterval returns the periodic push interval, or 0 when disabled.
func (c *Config) BroadcastInterval() time.Duration {
	if c.Broadcast.RateHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.Broadcast.RateHz)
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
