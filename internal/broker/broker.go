// Package broker publishes live telemetry records to an MQTT broker and
// consumes them back, so that other services can follow vehicles without
// polling the store.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config describes the broker connection and topic layout.
type Config struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"clientId"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topicPrefix"`
	QoS         byte          `yaml:"qos"`
	Retained    bool          `yaml:"retained"`
	Timeout     time.Duration `yaml:"timeout"`
}

const (
	DefaultTopicPrefix = "aeroradar"
	DefaultTimeout     = 10 * time.Second
)

// Client is the subset of mqtt.Client used by this package.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Connect opens a connection to the configured broker. The client
// reconnects on its own after the connection drops.
func Connect(ctx context.Context, cfg Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(timeout(cfg))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect(), timeout(cfg)); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// LiveTopic is the topic carrying the live records of one vehicle.
func LiveTopic(prefix, vehicleID string) string {
	return strings.TrimSuffix(prefix, "/") + "/live/" + vehicleID
}

// LiveWildcard matches the live topics of all vehicles.
func LiveWildcard(prefix string) string {
	return LiveTopic(prefix, "+")
}

func vehicleFromTopic(prefix, topic string) string {
	return strings.TrimPrefix(topic, LiveTopic(prefix, ""))
}

func timeout(cfg Config) time.Duration {
	if cfg.Timeout <= 0 {
		return DefaultTimeout
	}
	return cfg.Timeout
}

func topicPrefix(cfg Config) string {
	if cfg.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return cfg.TopicPrefix
}

// wait blocks until the token completes, the context is done or d elapses.
func wait(ctx context.Context, token mqtt.Token, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", d)
	}
}
