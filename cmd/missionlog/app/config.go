package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/aeroradar/internal/broker"
	"github.com/roman-kulish/aeroradar/internal/mission"
)

// Config represents the mission logger configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	MQTT     broker.Config  `yaml:"mqtt"`
	Storage  StorageConfig  `yaml:"storage"`
	Missions MissionsConfig `yaml:"missions"`

	// MetricsAddress serves /metrics when set.
	MetricsAddress string `yaml:"metricsAddress"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

func (s *Settings) Level() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(s.LogLevel))
	return level
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// MissionsConfig represents mission detection settings
type MissionsConfig struct {
	TakeoffSpeed float64 `yaml:"takeoffSpeed"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := Config{
		MQTT:     broker.Config{ClientID: "aeroradar-missionlog", TopicPrefix: broker.DefaultTopicPrefix, QoS: 1},
		Storage:  StorageConfig{Path: "data/aeroradar.sqlite"},
		Missions: MissionsConfig{TakeoffSpeed: mission.DefaultTakeoffSpeed},
	}
	if err = yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("app.Config: %w", err)
	}

	// the logger only makes sense against a broker
	c.MQTT.Enabled = true

	if err = c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return errors.New("app.Config: mqtt.broker is required")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("app.Config: invalid mqtt.qos: %d", c.MQTT.QoS)
	}
	if c.Storage.Path == "" {
		return errors.New("app.Config: storage.path is required")
	}
	if c.Missions.TakeoffSpeed <= 0 {
		return fmt.Errorf("app.Config: missions.takeoffSpeed must be positive: %0.2f", c.Missions.TakeoffSpeed)
	}
	return nil
}
