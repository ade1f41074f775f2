package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCollector_ObserveEnvelope(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	c.ObserveEnvelope("telemetry", 5*time.Millisecond)
	c.ObserveEnvelope("telemetry", 7*time.Millisecond)
	c.ObserveEnvelope("forbidden", time.Millisecond)

	if got := testutil.ToFloat64(c.Envelopes.WithLabelValues("telemetry")); got != 2 {
		t.Errorf("Expected 2 telemetry envelopes, got %v", got)
	}
	if got := testutil.ToFloat64(c.Envelopes.WithLabelValues("forbidden")); got != 1 {
		t.Errorf("Expected 1 forbidden envelope, got %v", got)
	}
	if count := histogramSampleCount(t, reg, "rockblock_envelope_duration_seconds", map[string]string{"outcome": "telemetry"}); count != 2 {
		t.Errorf("Expected 2 duration samples, got %d", count)
	}
}

func TestCollector_Counters(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	c.FrameDropped("bad_checksum")
	c.ObservePublish("mqtt", nil)
	c.ObservePublish("mqtt", errors.New("not connected"))
	c.MissionCompleted()
	c.SetLiveClients(3)

	if got := testutil.ToFloat64(c.FramesDropped.WithLabelValues("bad_checksum")); got != 1 {
		t.Errorf("Expected 1 dropped frame, got %v", got)
	}
	if got := testutil.ToFloat64(c.Published.WithLabelValues("mqtt", "error")); got != 1 {
		t.Errorf("Expected 1 failed publish, got %v", got)
	}
	if got := testutil.ToFloat64(c.Missions); got != 1 {
		t.Errorf("Expected 1 mission, got %v", got)
	}
	if got := testutil.ToFloat64(c.LiveClients); got != 3 {
		t.Errorf("Expected 3 live clients, got %v", got)
	}
}

func TestCollector_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("Expected second registration to reuse collectors, got %v", err)
	}

	first.FrameDropped("truncated")
	if got := testutil.ToFloat64(second.FramesDropped.WithLabelValues("truncated")); got != 1 {
		t.Errorf("Expected shared counter, got %v", got)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveEnvelope("telemetry", time.Second)
	c.FrameDropped("truncated")
	c.ObservePublish("mqtt", nil)
	c.MissionCompleted()
	c.SetLiveClients(1)
}

func TestCollector_Handler(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	c.ObserveEnvelope("config", time.Millisecond)
	c.FrameDropped("truncated")

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"rockblock_envelopes_total",
		"rockblock_envelope_duration_seconds",
		"mavlink_frames_dropped_total",
		"missions_completed_total",
		"live_stream_clients",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected %q in /metrics output", metric)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
