package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/aeroradar/internal/broker"
	"github.com/roman-kulish/aeroradar/internal/mission"
	"github.com/roman-kulish/aeroradar/internal/observability"
	"github.com/roman-kulish/aeroradar/internal/registry"
	"github.com/roman-kulish/aeroradar/internal/rockblock"
	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"

	defaultAddress        = ":8080"
	defaultRequestTimeout = 15 * time.Second
	defaultDataDirectory  = "data"
	defaultFileName       = "aeroradar.sqlite"
)

// TimeDuration is a time.Duration read from strings such as "15s" or "2m".
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d *TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(*d).String())
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings                    `yaml:"settings"`
	Server    ServerConfig                `yaml:"server"`
	Vehicles  []registry.Entry            `yaml:"vehicles"`
	Telemetry TelemetryConfig             `yaml:"telemetry"`
	Storage   StorageConfig               `yaml:"storage"`
	MQTT      broker.Config               `yaml:"mqtt"`
	Missions  MissionsConfig              `yaml:"missions"`
	Commands  CommandsConfig              `yaml:"commands"`
	Tracing   observability.TracingConfig `yaml:"tracing"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Level returns the configured log level, info when unset.
func (s *Settings) Level() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(s.LogLevel))
	return level
}

// ServerConfig represents the HTTP server settings
type ServerConfig struct {
	Address           string       `yaml:"address"`
	TrustForwardedFor bool         `yaml:"trustForwardedFor"`
	RequestTimeout    TimeDuration `yaml:"requestTimeout"`

	// AllowedOrigins lists the networks RockBLOCK webhooks may come from.
	AllowedOrigins []string `yaml:"allowedOrigins"`

	// DashboardOrigins restricts the Origin header of live stream clients.
	// Empty allows any origin.
	DashboardOrigins []string `yaml:"dashboardOrigins"`
}

// TelemetryConfig represents record extraction settings
type TelemetryConfig struct {
	InFlightThreshold *float64 `yaml:"inFlightThreshold"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	FileName      string `yaml:"fileName"`
}

// MissionsConfig represents the in-process mission logger settings
type MissionsConfig struct {
	Enabled      bool     `yaml:"enabled"`
	TakeoffSpeed *float64 `yaml:"takeoffSpeed"`
}

// CommandsConfig represents the Rock7 mobile terminated message settings
type CommandsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Endpoint string `yaml:"endpoint"`
}

// LoadConfig reads, defaults and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("app.Config: %w", err)
	}

	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = LogFormatText
	}
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = TimeDuration(defaultRequestTimeout)
	}
	if c.Telemetry.InFlightThreshold == nil {
		v := telemetry.DefaultInFlightThreshold
		c.Telemetry.InFlightThreshold = &v
	}
	if c.Storage.DataDirectory == "" {
		c.Storage.DataDirectory = defaultDataDirectory
	}
	if c.Storage.FileName == "" {
		c.Storage.FileName = defaultFileName
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "aeroradar-receiver"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = broker.DefaultTopicPrefix
	}
	if c.Missions.TakeoffSpeed == nil {
		v := mission.DefaultTakeoffSpeed
		c.Missions.TakeoffSpeed = &v
	}
	if c.Commands.Endpoint == "" {
		c.Commands.Endpoint = rockblock.DefaultMTEndpoint
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "aeroradar-receiver"
	}
}

func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); c.Settings.LogLevel != "" && err != nil {
		return fmt.Errorf("app.Config: invalid settings.logLevel: %q", c.Settings.LogLevel)
	}
	if c.Settings.LogFormat != LogFormatText && c.Settings.LogFormat != LogFormatJSON {
		return fmt.Errorf("app.Config: invalid settings.logFormat: %q", c.Settings.LogFormat)
	}

	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("app.Config: server.requestTimeout must not be negative: %s", time.Duration(c.Server.RequestTimeout))
	}
	if _, err := rockblock.ParseAllowList(c.Server.AllowedOrigins); err != nil {
		return fmt.Errorf("app.Config: invalid server.allowedOrigins: %w", err)
	}

	if len(c.Vehicles) == 0 {
		return errors.New("app.Config: no vehicles configured")
	}
	if _, err := registry.New(c.Vehicles); err != nil {
		return fmt.Errorf("app.Config: invalid vehicles: %w", err)
	}

	if *c.Telemetry.InFlightThreshold < 0 {
		return fmt.Errorf("app.Config: telemetry.inFlightThreshold must not be negative: %0.2f", *c.Telemetry.InFlightThreshold)
	}
	if *c.Missions.TakeoffSpeed <= 0 {
		return fmt.Errorf("app.Config: missions.takeoffSpeed must be positive: %0.2f", *c.Missions.TakeoffSpeed)
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("app.Config: mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("app.Config: invalid mqtt.qos: %d", c.MQTT.QoS)
	}

	if c.Commands.Enabled && (c.Commands.Username == "" || c.Commands.Password == "") {
		return errors.New("app.Config: commands.username and commands.password are required when commands are enabled")
	}

	return nil
}
