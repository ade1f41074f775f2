package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roman-kulish/aeroradar/internal/rockblock"
	"github.com/roman-kulish/aeroradar/internal/storage"
	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

type liveLister interface {
	List(ctx context.Context, prefix string) (map[string]json.RawMessage, error)
}

type commandSender interface {
	Send(ctx context.Context, imei string, payload []byte) (string, error)
}

type modems interface {
	IMEI(vehicleID string) (string, bool)
}

// liveRecords loads the latest record of every vehicle.
func liveRecords(ctx context.Context, store liveLister) (map[string]telemetry.Record, error) {
	nodes, err := store.List(ctx, storage.LivePrefix)
	if err != nil {
		return nil, err
	}

	records := make(map[string]telemetry.Record, len(nodes))
	for vehicleID, raw := range nodes {
		if strings.Contains(vehicleID, "/") {
			continue
		}
		var rec telemetry.Record
		if err = json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		records[vehicleID] = rec
	}
	return records, nil
}

func liveHandler(store liveLister, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := liveRecords(r.Context(), store)
		if err != nil {
			logger.Error("listing live records", slog.String("error", err.Error()))
			http.Error(w, "Error reading live records", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	}
}

// commandHandler forwards the request body to the vehicle's modem as a
// mobile terminated message.
func commandHandler(sender commandSender, vehicles modems, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicleID := r.PathValue("vehicleID")
		imei, ok := vehicles.IMEI(vehicleID)
		if !ok {
			http.Error(w, "Unknown vehicle", http.StatusNotFound)
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rockblock.MaxMTPayload))
		if err != nil {
			http.Error(w, "Command too large", http.StatusRequestEntityTooLarge)
			return
		}
		if len(payload) == 0 {
			http.Error(w, "Empty command", http.StatusBadRequest)
			return
		}

		messageID, err := sender.Send(r.Context(), imei, payload)
		switch {
		case errors.Is(err, rockblock.ErrMTPayloadTooLarge):
			http.Error(w, "Command too large", http.StatusRequestEntityTooLarge)
			return
		case err != nil:
			logger.Error("sending command",
				slog.String("vehicleID", vehicleID),
				slog.String("error", err.Error()))
			http.Error(w, "Error sending command", http.StatusBadGateway)
			return
		}

		logger.Info("command queued",
			slog.String("vehicleID", vehicleID),
			slog.String("messageID", messageID))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": messageID})
	}
}
