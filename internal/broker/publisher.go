package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*options) {
	return func(o *options) {
		o.logger = logger.With(slog.String("component", "mqtt"))
	}
}

type options struct {
	logger *slog.Logger
}

func newOptions(opts []func(*options)) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Publisher sends live records to <prefix>/live/<vehicleId> as JSON.
type Publisher struct {
	client   Client
	prefix   string
	qos      byte
	retained bool
	timeout  time.Duration
	logger   *slog.Logger
}

func NewPublisher(client Client, cfg Config, opts ...func(*options)) *Publisher {
	o := newOptions(opts)
	return &Publisher{
		client:   client,
		prefix:   topicPrefix(cfg),
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  timeout(cfg),
		logger:   o.logger,
	}
}

// Publish sends rec and waits for the broker to acknowledge it according to
// the configured QoS.
func (p *Publisher) Publish(ctx context.Context, rec telemetry.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	topic := LiveTopic(p.prefix, rec.VehicleID)
	if err = wait(ctx, p.client.Publish(topic, p.qos, p.retained, payload), p.timeout); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.logger.Debug("record published", slog.String("topic", topic), slog.Int("bytes", len(payload)))
	return nil
}
