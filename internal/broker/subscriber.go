package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

// Subscriber consumes the live records of all vehicles.
type Subscriber struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

func NewSubscriber(client Client, cfg Config, opts ...func(*options)) *Subscriber {
	o := newOptions(opts)
	return &Subscriber{
		client:  client,
		prefix:  topicPrefix(cfg),
		qos:     cfg.QoS,
		timeout: timeout(cfg),
		logger:  o.logger,
	}
}

// Run subscribes to the live topics and calls handle for every record until
// ctx is done. Records are handled one at a time, in arrival order.
// Retained messages are skipped: they replay the last record of every
// vehicle, which may be long stale. Undecodable messages and handler errors
// are logged and skipped.
func (s *Subscriber) Run(ctx context.Context, handle func(ctx context.Context, rec telemetry.Record) error) error {
	topic := LiveWildcard(s.prefix)
	messages := make(chan mqtt.Message, 64)

	token := s.client.Subscribe(topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case messages <- msg:
		case <-ctx.Done():
		}
	})
	if err := wait(ctx, token, s.timeout); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	s.logger.Info("subscribed", slog.String("topic", topic))

	defer func() {
		// the subscription context is gone; unsubscribe on a fresh one
		uctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := wait(uctx, s.client.Unsubscribe(topic), s.timeout); err != nil {
			s.logger.Warn("unsubscribing", slog.String("topic", topic), slog.String("error", err.Error()))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg := <-messages:
			if msg.Retained() {
				s.logger.Debug("skipping retained record", slog.String("topic", msg.Topic()))
				continue
			}

			var rec telemetry.Record
			if err := json.Unmarshal(msg.Payload(), &rec); err != nil {
				s.logger.Warn("decoding record", slog.String("topic", msg.Topic()), slog.String("error", err.Error()))
				continue
			}
			if rec.VehicleID == "" {
				rec.VehicleID = vehicleFromTopic(s.prefix, msg.Topic())
			}

			if err := handle(ctx, rec); err != nil {
				s.logger.Error("handling record",
					slog.String("vehicleID", rec.VehicleID),
					slog.String("error", err.Error()))
			}
		}
	}
}
