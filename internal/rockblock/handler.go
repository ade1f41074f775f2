// Package rockblock handles RockBLOCK webhooks: it authorizes the sender,
// tells control messages from telemetry, decodes the MAVLink payload and
// persists the resulting live record.
package rockblock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roman-kulish/aeroradar/internal/mavlink"
	"github.com/roman-kulish/aeroradar/internal/storage"
	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

const (
	configMarker = "config,"
	bootMarker   = "bootup"

	trailerLen = 4

	DefaultPublishQueue   = 256
	DefaultPublishTimeout = 10 * time.Second
)

// ErrPublishQueueFull is reported to metrics when an accepted record could
// not be queued for publishing.
var ErrPublishQueueFull = errors.New("publish queue full")

// Store persists handler output under slash separated paths.
type Store interface {
	Set(ctx context.Context, path string, value any) error
}

// Vehicles resolves modem IMEIs to vehicle ids.
type Vehicles interface {
	Lookup(imei string) (vehicleID string, ok bool)
}

// Publisher receives every accepted live record after it has been persisted.
// Records reach publishers in the order they were accepted, off the request
// path.
type Publisher interface {
	Publish(ctx context.Context, rec telemetry.Record) error
}

// Metrics observes handled envelopes and publisher deliveries.
type Metrics interface {
	ObserveEnvelope(outcome string, d time.Duration)
	ObservePublish(publisher string, err error)
}

// Request is one webhook delivery.
type Request struct {
	ID          string
	Origin      netip.Addr
	ContentType string
	Body        []byte
}

type namedPublisher struct {
	name string
	Publisher
}

type publication struct {
	ctx    context.Context
	rec    telemetry.Record
	logger *slog.Logger
}

// WithLogger sets the handler logger
func WithLogger(logger *slog.Logger) func(h *Handler) {
	return func(h *Handler) {
		h.logger = logger.With(slog.String("component", "rockblock"))
	}
}

// WithClock replaces time.Now, used for handshake timestamps.
func WithClock(now func() time.Time) func(h *Handler) {
	return func(h *Handler) {
		h.now = now
	}
}

// WithDecoder replaces the MAVLink decoder built from the common registry.
func WithDecoder(d *mavlink.Decoder) func(h *Handler) {
	return func(h *Handler) {
		h.decoder = d
	}
}

// WithExtractor replaces the default telemetry extractor.
func WithExtractor(e *telemetry.Extractor) func(h *Handler) {
	return func(h *Handler) {
		h.extractor = e
	}
}

// WithPublisher adds a publisher notified of accepted records. Publishers
// are called in the order they were added.
func WithPublisher(name string, p Publisher) func(h *Handler) {
	return func(h *Handler) {
		h.publishers = append(h.publishers, namedPublisher{name: name, Publisher: p})
	}
}

// WithPublishQueue sets how many accepted records may wait for publishers.
// Records arriving while the queue is full are not published.
func WithPublishQueue(n int) func(h *Handler) {
	return func(h *Handler) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithPublishTimeout bounds the time all publishers together may spend on
// one record.
func WithPublishTimeout(d time.Duration) func(h *Handler) {
	return func(h *Handler) {
		if d > 0 {
			h.publishTimeout = d
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) func(h *Handler) {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithTrustForwardedFor makes the HTTP adapter take the origin address from
// the first X-Forwarded-For hop.
func WithTrustForwardedFor(trust bool) func(h *Handler) {
	return func(h *Handler) {
		h.trustForwardedFor = trust
	}
}

// Handler processes RockBLOCK envelopes. It keeps no per-request state and
// is safe for concurrent use. Close must be called to drain the publishers.
type Handler struct {
	store             Store
	vehicles          Vehicles
	allowList         []netip.Prefix
	decoder           *mavlink.Decoder
	extractor         *telemetry.Extractor
	publishers        []namedPublisher
	metrics           Metrics
	logger            *slog.Logger
	tracer            trace.Tracer
	now               func() time.Time
	trustForwardedFor bool

	queueSize      int
	publishTimeout time.Duration

	mu     sync.Mutex
	queue  chan publication
	closed bool
	done   chan struct{}
}

// NewHandler creates a Handler accepting envelopes from origins within
// allowList. An empty allow list rejects every request.
func NewHandler(store Store, vehicles Vehicles, allowList []netip.Prefix, options ...func(h *Handler)) *Handler {
	h := Handler{
		store:     store,
		vehicles:  vehicles,
		allowList: allowList,
		extractor: telemetry.NewExtractor(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    otel.Tracer("github.com/roman-kulish/aeroradar/internal/rockblock"),
		now:       time.Now,

		queueSize:      DefaultPublishQueue,
		publishTimeout: DefaultPublishTimeout,
	}

	for _, option := range options {
		option(&h)
	}

	if h.decoder == nil {
		h.decoder = mavlink.NewDecoder(mavlink.CommonRegistry(), mavlink.WithLogger(h.logger))
	}

	if len(h.publishers) > 0 {
		h.queue = make(chan publication, h.queueSize)
		h.done = make(chan struct{})
		go h.publishLoop()
	}

	return &h
}

// Close stops accepting records for publishing and waits until the queued
// ones have been delivered. Envelopes handled afterwards are still persisted.
func (h *Handler) Close() error {
	h.mu.Lock()
	if !h.closed && h.queue != nil {
		close(h.queue)
	}
	h.closed = true
	h.mu.Unlock()

	if h.done != nil {
		<-h.done
	}
	return nil
}

// Handle runs one envelope through authorization, validation,
// classification and processing. It never panics and always returns an
// outcome that can be sent to the client.
func (h *Handler) Handle(ctx context.Context, req Request) Outcome {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	ctx, span := h.tracer.Start(ctx, "rockblock.Handle", trace.WithAttributes(
		attribute.String("rockblock.request_id", req.ID),
		attribute.String("rockblock.origin", req.Origin.String()),
		attribute.Int("rockblock.body_bytes", len(req.Body)),
	))
	defer span.End()

	logger := h.logger.With(slog.String("requestID", req.ID), slog.String("origin", req.Origin.String()))

	r := run{}
	out := r.finish(h.handle(ctx, &r, req, logger))

	span.SetAttributes(
		attribute.String("rockblock.outcome", string(out.Kind)),
		attribute.Int("http.status_code", out.Status),
	)
	if out.VehicleID != "" {
		span.SetAttributes(attribute.String("rockblock.vehicle_id", out.VehicleID))
	}
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Reason)
	}

	if h.metrics != nil {
		h.metrics.ObserveEnvelope(string(out.Kind), time.Since(start))
	}

	attrs := []any{
		slog.String("outcome", string(out.Kind)),
		slog.Int("status", out.Status),
		slog.String("vehicleID", out.VehicleID),
		slog.Duration("elapsed", time.Since(start)),
	}
	switch {
	case out.Err != nil:
		logger.Error("envelope handling failed", append(attrs, slog.String("error", out.Err.Error()))...)
	case out.OK():
		logger.Info("envelope handled", attrs...)
	default:
		logger.Warn("envelope rejected", append(attrs, slog.String("reason", out.Reason))...)
	}

	if out.Kind == OutcomeTelemetry && out.Record != nil {
		h.enqueue(ctx, *out.Record, logger)
	}

	return out
}

func (h *Handler) handle(ctx context.Context, r *run, req Request, logger *slog.Logger) Outcome {
	r.enter(StateReceived)

	if !allowed(h.allowList, req.Origin) {
		return reject(OutcomeForbidden, http.StatusForbidden, ReasonForbidden)
	}
	r.enter(StateAuthorized)

	env, err := ParseEnvelope(req.ContentType, req.Body)
	if err != nil {
		logger.Debug("invalid envelope", slog.String("error", err.Error()))
		return reject(OutcomeInvalid, http.StatusBadRequest, ReasonInvalid)
	}

	vehicleID, ok := h.vehicles.Lookup(env.IMEI)
	if !ok {
		logger.Warn("unknown modem", slog.String("imei", env.IMEI))
		return reject(OutcomeIncomplete, http.StatusBadRequest, ReasonMissingBoth)
	}

	out := h.process(ctx, r, &env, vehicleID, logger)
	out.VehicleID = vehicleID
	if out.Kind == OutcomeFailed {
		h.storeError(ctx, &env, logger)
	}
	return out
}

// process covers everything past vehicle resolution. Store failures and
// panics become OutcomeFailed.
func (h *Handler) process(ctx context.Context, r *run, env *Envelope, vehicleID string, logger *slog.Logger) (out Outcome) {
	defer func() {
		if v := recover(); v != nil {
			out = reject(OutcomeFailed, http.StatusBadRequest, ReasonFailed)
			out.Err = fmt.Errorf("panic: %v", v)
		}
	}()

	payload, err := env.Payload()
	if err != nil {
		return reject(OutcomeInvalid, http.StatusBadRequest, ReasonInvalid)
	}
	r.enter(StateClassified)

	logger.Debug("payload received",
		slog.String("vehicleID", vehicleID),
		slog.String("size", humanize.Bytes(uint64(len(payload)))),
		slog.Int64("momsn", env.MOMSN))

	text := string(payload)
	switch {
	case strings.Contains(text, configMarker):
		r.enter(StateConfigHandled)
		if err = h.handleConfig(ctx, vehicleID, text); err != nil {
			return failed(err)
		}
		return Outcome{Kind: OutcomeConfig, Status: http.StatusOK, Reason: ReasonConfig}

	case strings.Contains(text, bootMarker):
		r.enter(StateBootHandled)
		if err = h.handleBoot(ctx, vehicleID); err != nil {
			return failed(err)
		}
		return Outcome{Kind: OutcomeBoot, Status: http.StatusOK, Reason: ReasonBoot}
	}

	r.enter(StateTelemetryProcessed)

	res := h.extractor.Extract(h.decoder.Messages(payload))
	switch {
	case !res.AttitudeSeen && !res.PositionSeen:
		return reject(OutcomeIncomplete, http.StatusBadRequest, ReasonMissingBoth)
	case !res.AttitudeSeen:
		return reject(OutcomeIncomplete, http.StatusBadRequest, ReasonMissingAttitude)
	case !res.PositionSeen:
		return reject(OutcomeIncomplete, http.StatusBadRequest, ReasonMissingGlobalPosInt)
	}

	rec := res.Record
	rec.VehicleID = vehicleID
	rec.UploadTime = uploadTime(payload)

	if err = h.store.Set(ctx, storage.LivePath(vehicleID), rec); err != nil {
		return failed(fmt.Errorf("storing live record: %w", err))
	}

	return Outcome{Kind: OutcomeTelemetry, Status: http.StatusOK, Record: &rec}
}

// handleConfig persists the handshake fields of a config message, a comma
// separated list such as "config,GPSFix=true,".
func (h *Handler) handleConfig(ctx context.Context, vehicleID, text string) error {
	for _, field := range strings.Split(text, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok || strings.TrimSpace(key) != "GPSFix" {
			continue
		}

		gpsFix := strings.Trim(value, " \t\r\n\x00") == "true"
		if err := h.store.Set(ctx, storage.ConfigPath(vehicleID, "GPSFix"), gpsFix); err != nil {
			return fmt.Errorf("storing GPSFix: %w", err)
		}
	}

	if err := h.store.Set(ctx, storage.ConfigPath(vehicleID, "receivedConfig"), true); err != nil {
		return fmt.Errorf("storing receivedConfig: %w", err)
	}
	if err := h.store.Set(ctx, storage.ConfigPath(vehicleID, "lastHandshake"), h.now().UnixMilli()); err != nil {
		return fmt.Errorf("storing lastHandshake: %w", err)
	}
	return nil
}

func (h *Handler) handleBoot(ctx context.Context, vehicleID string) error {
	if err := h.store.Set(ctx, storage.ConfigPath(vehicleID, "ready"), false); err != nil {
		return fmt.Errorf("storing ready: %w", err)
	}
	if err := h.store.Set(ctx, storage.ConfigPath(vehicleID, "receivedConfig"), false); err != nil {
		return fmt.Errorf("storing receivedConfig: %w", err)
	}
	return nil
}

// storeError keeps the envelope that could not be handled for inspection.
func (h *Handler) storeError(ctx context.Context, env *Envelope, logger *slog.Logger) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("storing failed envelope panicked", slog.Any("panic", v))
		}
	}()

	if err := h.store.Set(ctx, storage.ErrorPath, env); err != nil {
		logger.Error("storing failed envelope", slog.String("error", err.Error()))
	}
}

// enqueue hands rec to the publish loop without waiting for publishers.
func (h *Handler) enqueue(ctx context.Context, rec telemetry.Record, logger *slog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.queue == nil {
		return
	}
	if h.closed {
		logger.Warn("handler closed, not publishing live record", slog.String("vehicleID", rec.VehicleID))
		return
	}

	select {
	case h.queue <- publication{ctx: context.WithoutCancel(ctx), rec: rec, logger: logger}:
	default:
		logger.Warn("publish queue full, dropping live record", slog.String("vehicleID", rec.VehicleID))
		if h.metrics != nil {
			h.metrics.ObservePublish("queue", ErrPublishQueueFull)
		}
	}
}

func (h *Handler) publishLoop() {
	defer close(h.done)

	for p := range h.queue {
		h.publish(p)
	}
}

func (h *Handler) publish(p publication) {
	ctx, cancel := context.WithTimeout(p.ctx, h.publishTimeout)
	defer cancel()

	for _, pub := range h.publishers {
		err := safePublish(ctx, pub, p.rec)
		if h.metrics != nil {
			h.metrics.ObservePublish(pub.name, err)
		}
		if err != nil {
			p.logger.Warn("publishing live record",
				slog.String("publisher", pub.name),
				slog.String("vehicleID", p.rec.VehicleID),
				slog.String("error", err.Error()))
		}
	}
}

func safePublish(ctx context.Context, p Publisher, rec telemetry.Record) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("publisher panic: %v", v)
		}
	}()
	return p.Publish(ctx, rec)
}

func failed(err error) Outcome {
	out := reject(OutcomeFailed, http.StatusBadRequest, ReasonFailed)
	out.Err = err
	return out
}

// uploadTime reads the little-endian Unix time the modem firmware appends
// to every telemetry payload.
func uploadTime(payload []byte) int64 {
	if len(payload) < trailerLen {
		return 0
	}
	return int64(binary.LittleEndian.Uint32(payload[len(payload)-trailerLen:]))
}
