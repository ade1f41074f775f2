package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "missionlog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, "mqtt: {broker: \"tcp://broker:1883\"}\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if !c.MQTT.Enabled {
		t.Error("Expected MQTT to be enabled")
	}
	if c.MQTT.TopicPrefix != "aeroradar" || c.MQTT.QoS != 1 {
		t.Errorf("Expected MQTT defaults, got %+v", c.MQTT)
	}
	if c.Storage.Path != "data/aeroradar.sqlite" {
		t.Errorf("Expected default storage path, got %s", c.Storage.Path)
	}
	if c.Missions.TakeoffSpeed != 65 {
		t.Errorf("Expected default takeoff speed 65, got %v", c.Missions.TakeoffSpeed)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name, config, key string
	}{
		{"no broker", "storage: {path: x.sqlite}", "mqtt.broker"},
		{"qos", "mqtt: {broker: tcp://b:1883, qos: 5}", "mqtt.qos"},
		{"empty storage", "mqtt: {broker: tcp://b:1883}\nstorage: {path: \"\"}", "storage.path"},
		{"takeoff speed", "mqtt: {broker: tcp://b:1883}\nmissions: {takeoffSpeed: -3}", "missions.takeoffSpeed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.config))
			if err == nil || !strings.Contains(err.Error(), tc.key) {
				t.Errorf("Expected error mentioning %q, got %v", tc.key, err)
			}
		})
	}
}
