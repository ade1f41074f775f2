// Package observability exposes the receiver's Prometheus metrics and sets up
// OpenTelemetry tracing.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the receiver metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Envelopes       *prometheus.CounterVec
	HandleDurations *prometheus.HistogramVec
	FramesDropped   *prometheus.CounterVec
	Published       *prometheus.CounterVec
	Missions        prometheus.Counter
	LiveClients     prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	envelopes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rockblock_envelopes_total",
		Help: "Total number of handled RockBLOCK envelopes, labeled by outcome.",
	}, []string{"outcome"}), "rockblock_envelopes_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rockblock_envelope_duration_seconds",
		Help:    "Envelope handling latency in seconds, including persistence.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"outcome"}), "rockblock_envelope_duration_seconds")
	if err != nil {
		return nil, err
	}

	dropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mavlink_frames_dropped_total",
		Help: "Total number of MAVLink frames skipped while decoding, labeled by reason.",
	}, []string{"reason"}), "mavlink_frames_dropped_total")
	if err != nil {
		return nil, err
	}

	published, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_published_total",
		Help: "Total number of live records handed to publishers, labeled by publisher and result.",
	}, []string{"publisher", "result"}), "telemetry_published_total")
	if err != nil {
		return nil, err
	}

	missions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "missions_completed_total",
		Help: "Total number of missions archived after touchdown.",
	}), "missions_completed_total")
	if err != nil {
		return nil, err
	}

	clients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "live_stream_clients",
		Help: "Current number of connected live stream clients.",
	}), "live_stream_clients")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		Envelopes:       envelopes,
		HandleDurations: durations,
		FramesDropped:   dropped,
		Published:       published,
		Missions:        missions,
		LiveClients:     clients,
	}, nil
}

// ObserveEnvelope records one handled envelope.
func (c *Collector) ObserveEnvelope(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Envelopes.WithLabelValues(outcome).Inc()
	c.HandleDurations.WithLabelValues(outcome).Observe(d.Seconds())
}

// FrameDropped counts a skipped MAVLink frame.
func (c *Collector) FrameDropped(reason string) {
	if c == nil {
		return
	}
	c.FramesDropped.WithLabelValues(reason).Inc()
}

// ObservePublish counts one delivery attempt to a publisher.
func (c *Collector) ObservePublish(publisher string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Published.WithLabelValues(publisher, result).Inc()
}

func (c *Collector) MissionCompleted() {
	if c == nil {
		return
	}
	c.Missions.Inc()
}

func (c *Collector) SetLiveClients(n int) {
	if c == nil {
		return
	}
	c.LiveClients.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
