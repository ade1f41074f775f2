package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/aeroradar/internal/broker"
	"github.com/roman-kulish/aeroradar/internal/live"
	"github.com/roman-kulish/aeroradar/internal/mavlink"
	"github.com/roman-kulish/aeroradar/internal/mission"
	"github.com/roman-kulish/aeroradar/internal/observability"
	"github.com/roman-kulish/aeroradar/internal/registry"
	"github.com/roman-kulish/aeroradar/internal/rockblock"
	"github.com/roman-kulish/aeroradar/internal/storage"
	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	mqttQuiesce       = 250 // ms
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", slog.String("error", err.Error()))
		}
	}()

	vehicles, err := registry.New(config.Vehicles)
	if err != nil {
		return fmt.Errorf("failed to create vehicle registry: %w", err)
	}
	allowList, err := rockblock.ParseAllowList(config.Server.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("failed to parse allow list: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, config.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	hub := live.NewHub(
		live.WithLogger(logger),
		live.WithSnapshot(func(ctx context.Context) ([]telemetry.Record, error) {
			records, err := liveRecords(ctx, store)
			if err != nil {
				return nil, err
			}
			out := make([]telemetry.Record, 0, len(records))
			for _, id := range slices.Sorted(maps.Keys(records)) {
				out = append(out, records[id])
			}
			return out, nil
		}),
		live.WithClientsHook(metrics.SetLiveClients),
		live.WithAllowedOrigins(config.Server.DashboardOrigins...),
	)

	decoder := mavlink.NewDecoder(mavlink.CommonRegistry(),
		mavlink.WithLogger(logger),
		mavlink.WithDropHook(func(reason mavlink.DropReason) {
			metrics.FrameDropped(string(reason))
		}))

	options := []func(*rockblock.Handler){
		rockblock.WithLogger(logger),
		rockblock.WithDecoder(decoder),
		rockblock.WithExtractor(telemetry.NewExtractor(telemetry.WithInFlightThreshold(*config.Telemetry.InFlightThreshold))),
		rockblock.WithMetrics(metrics),
		rockblock.WithTrustForwardedFor(config.Server.TrustForwardedFor),
		rockblock.WithPublisher("live", hub),
	}

	if config.MQTT.Enabled {
		client, err := broker.Connect(ctx, config.MQTT)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer client.Disconnect(mqttQuiesce)

		options = append(options, rockblock.WithPublisher("mqtt",
			broker.NewPublisher(client, config.MQTT, broker.WithLogger(logger))))
	}

	var tracker *mission.Tracker
	if config.Missions.Enabled {
		tracker = mission.NewTracker(store,
			mission.WithLogger(logger),
			mission.WithTakeoffSpeed(*config.Missions.TakeoffSpeed),
			mission.WithCompletionHook(func(*mission.Mission) { metrics.MissionCompleted() }))

		options = append(options, rockblock.WithPublisher("missions", tracker))
	}

	handler := rockblock.NewHandler(store, vehicles, allowList, options...)
	if len(allowList) == 0 {
		logger.Warn("server.allowedOrigins is empty, every webhook will be rejected")
	}

	timeout := time.Duration(config.Server.RequestTimeout)
	mux := http.NewServeMux()
	mux.Handle("POST /rockblock", http.TimeoutHandler(handler, timeout, "Request timed out"))
	mux.Handle("GET /api/live", http.TimeoutHandler(liveHandler(store, logger), timeout, "Request timed out"))
	mux.Handle("GET /api/live/ws", hub)
	mux.Handle("GET /metrics", metrics.Handler())

	if config.Commands.Enabled {
		mt := rockblock.NewMTClient(config.Commands.Username, config.Commands.Password,
			rockblock.WithMTEndpoint(config.Commands.Endpoint),
			rockblock.WithMTLogger(logger))
		mux.Handle("POST /api/vehicles/{vehicleID}/commands",
			http.TimeoutHandler(commandHandler(mt, vehicles, logger), timeout, "Request timed out"))
	}

	server := &http.Server{
		Addr:              config.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("receiver listening",
			slog.String("address", server.Addr),
			slog.Int("vehicles", vehicles.Len()))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// stop taking webhooks, then drain queued records into the publishers
		err := server.Shutdown(shutdownCtx)
		_ = handler.Close()
		_ = hub.Close()
		if tracker != nil {
			// missions still in the air are archived as they are
			err = errors.Join(err, tracker.Flush(shutdownCtx))
		}

		logger.Info("receiver stopped")
		return err
	})

	return g.Wait()
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	return storage.NewSqliteStore(filepath.Join(dir, config.FileName)), nil
}
