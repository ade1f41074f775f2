package rockblock

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/aeroradar/internal/storage"
	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

func TestServeHTTP_JSON(t *testing.T) {
	store := newMemoryStore()
	h := newTestHandler(t, store)

	req := httptest.NewRequest(http.MethodPost, "/rockblock", bytes.NewReader(envelopeBody(t, testIMEI, telemetryPayload(t, 1714564800, testAttitude, testPosition))))
	req.RemoteAddr = "109.74.196.135:41234"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "req-1")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON response, got %q", ct)
	}
	if id := rr.Header().Get("X-Request-Id"); id != "req-1" {
		t.Errorf("Expected request id to be echoed, got %q", id)
	}

	var rec telemetry.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if rec.VehicleID != testVehicle || rec.UploadTime != 1714564800 {
		t.Errorf("Unexpected response record: %+v", rec)
	}
	if _, ok := store.get(storage.LivePath(testVehicle)); !ok {
		t.Error("Expected live record to be stored")
	}
}

func TestServeHTTP_SlowPublisherBehindTimeout(t *testing.T) {
	store := newMemoryStore()
	pub := newBlockingPublisher()
	h := newTestHandler(t, store, WithPublisher("blocking", pub))
	srv := http.TimeoutHandler(h, 200*time.Millisecond, "timeout")

	req := httptest.NewRequest(http.MethodPost, "/rockblock", bytes.NewReader(envelopeBody(t, testIMEI, telemetryPayload(t, 1, testAttitude, testPosition))))
	req.RemoteAddr = "109.74.196.135:41234"
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 while the publisher is blocked, got %d: %s", rr.Code, rr.Body.String())
	}
	if _, ok := store.get(storage.LivePath(testVehicle)); !ok {
		t.Error("Expected live record to be stored")
	}

	select {
	case <-pub.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the record to reach the publisher")
	}
	close(pub.release)
	if err := h.Close(); err != nil {
		t.Fatalf("Failed to close handler: %v", err)
	}
	if got := pub.count(); got != 1 {
		t.Errorf("Expected 1 published record, got %d", got)
	}
}

func TestServeHTTP_Form(t *testing.T) {
	form := url.Values{
		"imei":          {testIMEI},
		"data":          {hex.EncodeToString([]byte("config,GPSFix=true,"))},
		"momsn":         {"12"},
		"transmit_time": {"24-05-01 12:00:00"},
		"iridium_cep":   {"3.5"},
	}

	req := httptest.NewRequest(http.MethodPost, "/rockblock", strings.NewReader(form.Encode()))
	req.RemoteAddr = "212.71.235.32:5555"
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	newTestHandler(t, newMemoryStore()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != ReasonConfig {
		t.Errorf("Expected 200 %q, got %d %q", ReasonConfig, rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("Expected a generated request id")
	}
}

func TestServeHTTP_Origin(t *testing.T) {
	body := envelopeBody(t, testIMEI, []byte("bootup"))

	testCases := []struct {
		name       string
		trust      bool
		remoteAddr string
		xff        string
		want       int
	}{
		{"allowed remote", false, "109.74.196.135:1000", "", http.StatusOK},
		{"allowed ipv4-mapped remote", false, "[::ffff:109.74.196.135]:1000", "", http.StatusOK},
		{"denied remote", false, "10.1.1.1:1000", "", http.StatusForbidden},
		{"forwarded ignored when untrusted", false, "10.1.1.1:1000", "109.74.196.135", http.StatusForbidden},
		{"forwarded trusted", true, "10.1.1.1:1000", "109.74.196.135, 10.1.1.1", http.StatusOK},
		{"forwarded trusted denied", true, "109.74.196.135:1000", "10.9.9.9", http.StatusForbidden},
		{"forwarded garbage falls back to remote", true, "109.74.196.135:1000", "unknown", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, newMemoryStore(), WithTrustForwardedFor(tc.trust))

			req := httptest.NewRequest(http.MethodPost, "/rockblock", bytes.NewReader(body))
			req.RemoteAddr = tc.remoteAddr
			req.Header.Set("Content-Type", "application/json")
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Errorf("Expected status %d, got %d %q", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestServeHTTP_Forbidden(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/rockblock", strings.NewReader("{}"))
	req.RemoteAddr = "198.51.100.7:80"

	rr := httptest.NewRecorder()
	newTestHandler(t, newMemoryStore()).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden || rr.Body.String() != ReasonForbidden {
		t.Errorf("Expected 403 %q, got %d %q", ReasonForbidden, rr.Code, rr.Body.String())
	}
}

func TestServeHTTP_BodyTooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/rockblock", bytes.NewReader(make([]byte, MaxBodySize+1)))
	req.RemoteAddr = "109.74.196.135:80"
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	newTestHandler(t, newMemoryStore()).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest || rr.Body.String() != ReasonInvalid {
		t.Errorf("Expected 400 %q, got %d %q", ReasonInvalid, rr.Code, rr.Body.String())
	}
}
