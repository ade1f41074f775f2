package mission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

// Uploader archives completed missions.
type Uploader interface {
	StoreMission(ctx context.Context, m *Mission) error
}

// WithLogger sets the tracker logger
func WithLogger(logger *slog.Logger) func(t *Tracker) {
	return func(t *Tracker) {
		t.logger = logger.With(slog.String("component", "mission"))
	}
}

// WithTakeoffSpeed overrides DefaultTakeoffSpeed
func WithTakeoffSpeed(v float64) func(t *Tracker) {
	return func(t *Tracker) {
		t.takeoffSpeed = v
	}
}

// WithClock replaces time.Now, used to timestamp flight log entries.
func WithClock(now func() time.Time) func(t *Tracker) {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithCompletionHook registers a callback invoked after a mission has been
// uploaded.
func WithCompletionHook(fn func(m *Mission)) func(t *Tracker) {
	return func(t *Tracker) {
		t.onComplete = fn
	}
}

// Tracker follows the missions of all vehicles. It is safe for concurrent
// use; records of different vehicles are independent.
type Tracker struct {
	uploader     Uploader
	takeoffSpeed float64
	logger       *slog.Logger
	now          func() time.Time
	onComplete   func(m *Mission)

	mu     sync.Mutex
	active map[string]*Mission

	// landed missions whose upload failed, by mission id
	unsaved map[string]*Mission
}

func NewTracker(uploader Uploader, options ...func(t *Tracker)) *Tracker {
	t := Tracker{
		uploader:     uploader,
		takeoffSpeed: DefaultTakeoffSpeed,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
		active:       make(map[string]*Mission),
		unsaved:      make(map[string]*Mission),
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// Publish feeds one live record into the tracker.
func (t *Tracker) Publish(ctx context.Context, rec telemetry.Record) error {
	_, err := t.Update(ctx, rec)
	return err
}

// Update advances the mission state of the record's vehicle. A record at or
// above takeoff speed starts a mission; every record received while a
// mission is active is appended to its flight log; the first record below
// takeoff speed ends the mission, which is then uploaded and returned.
func (t *Tracker) Update(ctx context.Context, rec telemetry.Record) (*Mission, error) {
	if rec.VehicleID == "" {
		return nil, nil
	}

	now := t.now()
	airborne := rec.GroundSpeed >= t.takeoffSpeed

	t.mu.Lock()
	m, ok := t.active[rec.VehicleID]
	switch {
	case !ok && airborne:
		m = &Mission{
			ID:        uuid.NewString(),
			VehicleID: rec.VehicleID,
			StartedAt: now,
		}
		m.FlightLog = append(m.FlightLog, newFlightLogEntry(&rec, now))
		t.active[rec.VehicleID] = m
		t.mu.Unlock()

		t.logger.Info("takeoff",
			slog.String("vehicleID", rec.VehicleID),
			slog.String("missionID", m.ID),
			slog.Float64("groundSpeed", rec.GroundSpeed))
		return nil, nil

	case ok && airborne:
		m.FlightLog = append(m.FlightLog, newFlightLogEntry(&rec, now))
		t.mu.Unlock()
		return nil, nil

	case ok:
		m.FlightLog = append(m.FlightLog, newFlightLogEntry(&rec, now))
		m.EndedAt = now
		delete(t.active, rec.VehicleID)
		t.mu.Unlock()

		t.logger.Info("touchdown",
			slog.String("vehicleID", rec.VehicleID),
			slog.String("missionID", m.ID),
			slog.String("started", humanize.Time(m.StartedAt)),
			slog.Duration("duration", m.Duration()),
			slog.Int("entries", len(m.FlightLog)))

		if err := t.upload(ctx, m); err != nil {
			t.keep(m)
			return m, err
		}
		if err := t.retry(ctx); err != nil {
			t.logger.Warn("uploading earlier missions", slog.String("error", err.Error()))
		}
		return m, nil

	default:
		t.mu.Unlock()
		return nil, nil
	}
}

// Active returns a copy of the vehicle's mission in progress.
func (t *Tracker) Active(vehicleID string) (Mission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.active[vehicleID]
	if !ok {
		return Mission{}, false
	}

	c := *m
	c.FlightLog = append([]FlightLogEntry(nil), m.FlightLog...)
	return c, true
}

// Flush ends and uploads every mission still in progress, as happens on
// shutdown, and retries missions whose upload failed earlier.
func (t *Tracker) Flush(ctx context.Context) error {
	now := t.now()

	t.mu.Lock()
	for id, m := range t.active {
		m.EndedAt = now
		t.unsaved[m.ID] = m
		delete(t.active, id)
	}
	t.mu.Unlock()

	return t.retry(ctx)
}

// Unsaved returns the number of landed missions waiting for a successful
// upload.
func (t *Tracker) Unsaved() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.unsaved)
}

// retry uploads the unsaved missions. Missions failing again stay unsaved.
func (t *Tracker) retry(ctx context.Context) error {
	t.mu.Lock()
	pending := make([]*Mission, 0, len(t.unsaved))
	for id, m := range t.unsaved {
		pending = append(pending, m)
		delete(t.unsaved, id)
	}
	t.mu.Unlock()

	var errs []error
	for _, m := range pending {
		if err := t.upload(ctx, m); err != nil {
			t.keep(m)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) keep(m *Mission) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsaved[m.ID] = m
}

func (t *Tracker) upload(ctx context.Context, m *Mission) error {
	if err := t.uploader.StoreMission(ctx, m); err != nil {
		return fmt.Errorf("uploading mission %s of %s: %w", m.ID, m.VehicleID, err)
	}

	if t.onComplete != nil {
		t.onComplete(m)
	}
	return nil
}
