package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
settings:
  logLevel: debug
server:
  address: ":9090"
  requestTimeout: 5s
  allowedOrigins: ["109.74.196.135", "212.71.235.32/32"]
vehicles:
  - imei: "300434063839690"
    vehicleId: AR-1
  - imei: "300434063839691"
    vehicleId: AR-2
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  qos: 1
missions:
  enabled: true
  takeoffSpeed: 40
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receiver.yaml")
	if err := os.WriteFile(path, []byte(validConfig), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if c.Settings.Level() != slog.LevelDebug {
		t.Errorf("Expected debug level, got %s", c.Settings.Level())
	}
	if c.Settings.LogFormat != LogFormatText {
		t.Errorf("Expected default log format %q, got %q", LogFormatText, c.Settings.LogFormat)
	}
	if c.Server.Address != ":9090" {
		t.Errorf("Expected address :9090, got %s", c.Server.Address)
	}
	if time.Duration(c.Server.RequestTimeout) != 5*time.Second {
		t.Errorf("Expected request timeout 5s, got %s", time.Duration(c.Server.RequestTimeout))
	}
	if len(c.Vehicles) != 2 || c.Vehicles[1].VehicleID != "AR-2" {
		t.Errorf("Expected 2 vehicles, got %+v", c.Vehicles)
	}
	if *c.Telemetry.InFlightThreshold != 65 {
		t.Errorf("Expected default in-flight threshold 65, got %v", *c.Telemetry.InFlightThreshold)
	}
	if *c.Missions.TakeoffSpeed != 40 {
		t.Errorf("Expected takeoff speed 40, got %v", *c.Missions.TakeoffSpeed)
	}
	if c.MQTT.TopicPrefix != "aeroradar" || c.MQTT.ClientID != "aeroradar-receiver" {
		t.Errorf("Expected MQTT defaults, got %+v", c.MQTT)
	}
	if c.Storage.DataDirectory != "data" || c.Storage.FileName != "aeroradar.sqlite" {
		t.Errorf("Expected storage defaults, got %+v", c.Storage)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	vehicles := "vehicles: [{imei: \"1\", vehicleId: AR-1}]\n"

	testCases := []struct {
		name   string
		config string
		key    string
	}{
		{"malformed yaml", "settings: [", "app.Config"},
		{"log level", vehicles + "settings: {logLevel: loud}", "settings.logLevel"},
		{"log format", vehicles + "settings: {logFormat: xml}", "settings.logFormat"},
		{"request timeout", vehicles + "server: {requestTimeout: soon}", "app.TimeDuration"},
		{"allowed origins", vehicles + "server: {allowedOrigins: [not-an-ip]}", "server.allowedOrigins"},
		{"no vehicles", "server: {address: \":1\"}", "no vehicles"},
		{"duplicate imei", "vehicles: [{imei: \"1\", vehicleId: A}, {imei: \"1\", vehicleId: B}]", "vehicles"},
		{"empty imei", "vehicles: [{imei: \"\", vehicleId: A}]", "vehicles"},
		{"nested vehicle id", "vehicles: [{imei: \"1\", vehicleId: AR/1}]", "invalid vehicle id"},
		{"negative threshold", vehicles + "telemetry: {inFlightThreshold: -1}", "telemetry.inFlightThreshold"},
		{"zero takeoff speed", vehicles + "missions: {takeoffSpeed: 0}", "missions.takeoffSpeed"},
		{"mqtt without broker", vehicles + "mqtt: {enabled: true}", "mqtt.broker"},
		{"mqtt qos", vehicles + "mqtt: {qos: 3}", "mqtt.qos"},
		{"commands without credentials", vehicles + "commands: {enabled: true}", "commands.username"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.config))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Errorf("Expected error to mention %q, got %v", tc.key, err)
			}
		})
	}
}
