package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/aeroradar/internal/broker"
	"github.com/roman-kulish/aeroradar/internal/mission"
	"github.com/roman-kulish/aeroradar/internal/observability"
	"github.com/roman-kulish/aeroradar/internal/storage"
	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Run follows the live feed and archives every completed mission until ctx
// is done. Missions still in the air on shutdown are archived as they are.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(config.Storage.Path), 0o755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}
	store := storage.NewSqliteStore(config.Storage.Path)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", slog.String("error", err.Error()))
		}
	}()

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	tracker := mission.NewTracker(store,
		mission.WithLogger(logger),
		mission.WithTakeoffSpeed(config.Missions.TakeoffSpeed),
		mission.WithCompletionHook(func(m *mission.Mission) {
			metrics.MissionCompleted()
			logger.Info("mission archived",
				slog.String("missionID", m.ID),
				slog.String("vehicleID", m.VehicleID),
				slog.String("entries", humanize.Comma(int64(len(m.FlightLog)))))
		}))

	client, err := broker.Connect(ctx, config.MQTT)
	if err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	defer client.Disconnect(250)

	subscriber := broker.NewSubscriber(client, config.MQTT, broker.WithLogger(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return subscriber.Run(gctx, func(ctx context.Context, rec telemetry.Record) error {
			_, err := tracker.Update(ctx, rec)
			return err
		})
	})

	if config.MetricsAddress != "" {
		server := &http.Server{Addr: config.MetricsAddress, Handler: metrics.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(err, tracker.Flush(flushCtx))
}
