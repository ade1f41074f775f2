package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roman-kulish/aeroradar/internal/rockblock"
	"github.com/roman-kulish/aeroradar/internal/storage"
	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeLister struct {
	nodes map[string]json.RawMessage
	err   error
}

func (f fakeLister) List(_ context.Context, prefix string) (map[string]json.RawMessage, error) {
	if prefix != storage.LivePrefix {
		return nil, fmt.Errorf("unexpected prefix %s", prefix)
	}
	return f.nodes, f.err
}

type fakeSender struct {
	imei    string
	payload []byte
	err     error
}

func (f *fakeSender) Send(_ context.Context, imei string, payload []byte) (string, error) {
	f.imei, f.payload = imei, payload
	return "4321", f.err
}

type fakeModems map[string]string

func (m fakeModems) IMEI(vehicleID string) (string, bool) {
	imei, ok := m[vehicleID]
	return imei, ok
}

func TestLiveHandler(t *testing.T) {
	lister := fakeLister{nodes: map[string]json.RawMessage{
		"AR-1":        json.RawMessage(`{"droneID":"AR-1","groundSpeed":70.71}`),
		"AR-2":        json.RawMessage(`{"droneID":"AR-2"}`),
		"AR-2/nested": json.RawMessage(`{}`),
		"AR-3":        json.RawMessage(`"not a record"`),
	}}

	rec := httptest.NewRecorder()
	liveHandler(lister, discard).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var got map[string]telemetry.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d: %v", len(got), got)
	}
	if got["AR-1"].GroundSpeed != 70.71 {
		t.Errorf("Expected ground speed 70.71, got %v", got["AR-1"].GroundSpeed)
	}
}

func TestLiveHandler_StoreError(t *testing.T) {
	rec := httptest.NewRecorder()
	liveHandler(fakeLister{err: errors.New("locked")}, discard).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/live", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}
}

func TestCommandHandler(t *testing.T) {
	modems := fakeModems{"AR-1": "300434063839690"}

	testCases := []struct {
		name       string
		vehicleID  string
		body       string
		sendErr    error
		wantStatus int
	}{
		{"queued", "AR-1", "RTL", nil, http.StatusAccepted},
		{"unknown vehicle", "AR-9", "RTL", nil, http.StatusNotFound},
		{"empty", "AR-1", "", nil, http.StatusBadRequest},
		{"too large", "AR-1", strings.Repeat("x", rockblock.MaxMTPayload+1), nil, http.StatusRequestEntityTooLarge},
		{"rejected", "AR-1", "RTL", rockblock.ErrMTRejected, http.StatusBadGateway},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &fakeSender{err: tc.sendErr}
			mux := http.NewServeMux()
			mux.Handle("POST /api/vehicles/{vehicleID}/commands", commandHandler(sender, modems, discard))

			req := httptest.NewRequest(http.MethodPost, "/api/vehicles/"+tc.vehicleID+"/commands", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusAccepted {
				return
			}

			if sender.imei != "300434063839690" || string(sender.payload) != tc.body {
				t.Errorf("Expected command for 300434063839690, got %s %q", sender.imei, sender.payload)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["messageId"] != "4321" {
				t.Errorf("Expected messageId 4321, got %s (%v)", rec.Body.String(), err)
			}
		})
	}
}
