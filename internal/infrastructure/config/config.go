package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/icu-core/internal/lifecycle"
)

// DefaultPath is used when ICU_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for the ICU controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Logging     LoggingConfig     `yaml:"logging"`
	Loop        LoopConfig        `yaml:"loop"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Serial      SerialConfig      `yaml:"serial"`
	Demo        DemoConfig        `yaml:"demo"`
	Display     DisplayConfig     `yaml:"display"`
	Actuator    ActuatorConfig    `yaml:"actuator"`
	Indicator   IndicatorConfig   `yaml:"indicator"`
	Environment EnvironmentConfig `yaml:"environment"`
	Fan         FanConfig         `yaml:"fan"`
}

// DeviceConfig identifies this unit.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LoopConfig contains control-loop settings.
type LoopConfig struct {
	TickIntervalMS int `yaml:"tick_interval_ms"`
	// EventBuffer is the capacity of the outbound reporting queue.
	EventBuffer int `yaml:"event_buffer"`
}

// DatabaseConfig contains SQLite journal settings.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket live-feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// SerialConfig contains the perception-node UART settings.
type SerialConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Port     string             `yaml:"port"`
	BaudRate int                `yaml:"baud_rate"`
	Reopen   SerialReopenConfig `yaml:"reopen"`
}

// SerialReopenConfig is the backoff schedule used while the port is absent.
type SerialReopenConfig struct {
	InitialIntervalMS int `yaml:"initial_interval_ms"`
	MaxIntervalMS     int `yaml:"max_interval_ms"`
	MaxElapsedMS      int `yaml:"max_elapsed_ms"`
}

// DemoConfig contains the demonstration schedule.
type DemoConfig struct {
	RestartStartupOnWrap bool          `yaml:"restart_startup_on_wrap"`
	Phases               []PhaseConfig `yaml:"phases"`
}

// PhaseConfig is one row of the demonstration schedule.
type PhaseConfig struct {
	Name       string `yaml:"name"`
	State      string `yaml:"state"`
	DurationMS int    `yaml:"duration_ms"`
	Enabled    bool   `yaml:"enabled"`
}

// DisplayConfig contains display timing and copy.
type DisplayConfig struct {
	Width               int      `yaml:"width"`
	Height              int      `yaml:"height"`
	WakeUpDurationMS    int      `yaml:"wake_up_duration_ms"`
	ScanningTextMS      int      `yaml:"scanning_text_ms"`
	ScanningAnimationMS int      `yaml:"scanning_animation_ms"`
	DetectionTextMS     int      `yaml:"detection_text_ms"`
	RingWidth           int      `yaml:"ring_width"`
	ScanningMessages    []string `yaml:"scanning_messages"`
	DetectionMessages   []string `yaml:"detection_messages"`
}

// ActuatorConfig contains servo calibration and animation timing.
type ActuatorConfig struct {
	FrequencyHz int                    `yaml:"frequency_hz"`
	Channels    ActuatorChannelsConfig `yaml:"channels"`
	Pulses      ActuatorPulsesConfig   `yaml:"pulses"`
	BlinkMinMS  int                    `yaml:"blink_min_ms"`
	BlinkMaxMS  int                    `yaml:"blink_max_ms"`
	GazeMinMS   int                    `yaml:"gaze_min_ms"`
	GazeMaxMS   int                    `yaml:"gaze_max_ms"`
	BlinkShutMS int                    `yaml:"blink_shut_ms"`
	OpenStepMS  int                    `yaml:"open_step_ms"`
	CloseStepMS int                    `yaml:"close_step_ms"`
	Seed        uint64                 `yaml:"seed"`
}

// ActuatorChannelsConfig maps servos onto PWM outputs.
type ActuatorChannelsConfig struct {
	Eyelid int `yaml:"eyelid"`
	EyeX   int `yaml:"eye_x"`
	EyeY   int `yaml:"eye_y"`
}

// ActuatorPulsesConfig holds calibrated pulse widths in driver ticks.
type ActuatorPulsesConfig struct {
	EyelidOpen   int `yaml:"eyelid_open"`
	EyelidClosed int `yaml:"eyelid_closed"`
	EyeXMiddle   int `yaml:"eye_x_middle"`
	EyeXLeft     int `yaml:"eye_x_left"`
	EyeXRight    int `yaml:"eye_x_right"`
	EyeYMiddle   int `yaml:"eye_y_middle"`
	EyeYUp       int `yaml:"eye_y_up"`
	EyeYDown     int `yaml:"eye_y_down"`
}

// IndicatorConfig contains LED ring pulse-protocol settings.
type IndicatorConfig struct {
	EmitPulses     bool `yaml:"emit_pulses"`
	PulseWidthMS   int  `yaml:"pulse_width_ms"`
	PulseSpacingMS int  `yaml:"pulse_spacing_ms"`
	// Realtime times pulse trains on the wall clock with the loop's thread
	// pinned. Off, they run on a virtual timeline and never block.
	Realtime bool `yaml:"realtime"`
}

// EnvironmentConfig contains climate sampling settings.
type EnvironmentConfig struct {
	Enabled          bool `yaml:"enabled"`
	SampleIntervalMS int  `yaml:"sample_interval_ms"`
}

// FanConfig contains enclosure fan settings.
type FanConfig struct {
	Enabled      bool `yaml:"enabled"`
	Channel      int  `yaml:"channel"`
	SpeedPercent int  `yaml:"speed_percent"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ICU_SECTION_KEY
// For example: ICU_DATABASE_PATH, ICU_SERIAL_PORT
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

// Defaults returns the built-in configuration with environment overrides
// applied. It is used when no config file exists at the default path.
func Defaults() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with the stock rig's settings.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "icu-001",
			Name: "ICU",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Loop: LoopConfig{
			TickIntervalMS: 5,
			EventBuffer:    256,
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/icu.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "icu-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "icu",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "icu",
			Bucket:        "icu",
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
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
			Reopen: SerialReopenConfig{
				InitialIntervalMS: 500,
				MaxIntervalMS:     10000,
			},
		},
		Demo: DemoConfig{
			RestartStartupOnWrap: true,
			Phases: []PhaseConfig{
				{Name: "scan_1", State: "SCANNING", DurationMS: 20000, Enabled: true},
				{Name: "nap", State: "NAPPING", DurationMS: 8000},
				{Name: "wake_from_nap", State: "WAKE_UP", DurationMS: 5000},
				{Name: "scan_2", State: "SCANNING", DurationMS: 15000},
				{Name: "detect", State: "DETECTION", DurationMS: 7000, Enabled: true},
				{Name: "scan_3", State: "SCANNING", DurationMS: 20000, Enabled: true},
				{Name: "sleep", State: "FULL_ASLEEP", DurationMS: 15000, Enabled: true},
			},
		},
		Display: DisplayConfig{
			Width:               240,
			Height:              240,
			WakeUpDurationMS:    3000,
			ScanningTextMS:      5000,
			ScanningAnimationMS: 10000,
			DetectionTextMS:     5000,
			RingWidth:           10,
		},
		Actuator: ActuatorConfig{
			FrequencyHz: 50,
			Channels:    ActuatorChannelsConfig{Eyelid: 0, EyeX: 1, EyeY: 2},
			Pulses: ActuatorPulsesConfig{
				EyelidOpen:   412,
				EyelidClosed: 534,
				EyeXMiddle:   370,
				EyeXLeft:     420,
				EyeXRight:    350,
				EyeYMiddle:   370,
				EyeYUp:       383,
				EyeYDown:     315,
			},
			BlinkMinMS:  500,
			BlinkMaxMS:  5000,
			GazeMinMS:   800,
			GazeMaxMS:   3000,
			BlinkShutMS: 190,
			OpenStepMS:  5,
			CloseStepMS: 10,
		},
		Indicator: IndicatorConfig{
			EmitPulses:     true,
			PulseWidthMS:   20,
			PulseSpacingMS: 50,
		},
		Environment: EnvironmentConfig{
			SampleIntervalMS: 10000,
		},
		Fan: FanConfig{
			Channel:      3,
			SpeedPercent: 40,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ICU_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ICU_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	if v := os.Getenv("ICU_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ICU_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("ICU_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ICU_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ICU_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("ICU_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ICU_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("ICU_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("ICU_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	if c.Loop.TickIntervalMS < 1 {
		errs = append(errs, "loop.tick_interval_ms must be at least 1")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Serial.Enabled && c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}

	errs = append(errs, c.Demo.validate()...)

	if c.Actuator.BlinkMinMS > c.Actuator.BlinkMaxMS {
		errs = append(errs, "actuator.blink_min_ms must not exceed blink_max_ms")
	}
	if c.Actuator.GazeMinMS > c.Actuator.GazeMaxMS {
		errs = append(errs, "actuator.gaze_min_ms must not exceed gaze_max_ms")
	}

	if c.Fan.SpeedPercent < 0 || c.Fan.SpeedPercent > 100 {
		errs = append(errs, "fan.speed_percent must be between 0 and 100")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d DemoConfig) validate() []string {
	var errs []string
	enabled := 0
	for i, p := range d.Phases {
		if _, err := lifecycle.ParseState(p.State); err != nil {
			errs = append(errs, fmt.Sprintf("demo.phases[%d].state %q is not a lifecycle state", i, p.State))
		}
		if p.DurationMS <= 0 {
			errs = append(errs, fmt.Sprintf("demo.phases[%d].duration_ms must be positive", i))
		}
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, "demo.phases must contain at least one enabled phase")
	}
	return errs
}

// GetTickInterval returns the control-loop period as a Duration.
func (c *Config) GetTickInterval() time.Duration {
	return time.Duration(c.Loop.TickIntervalMS) * time.Millisecond
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
