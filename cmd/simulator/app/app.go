package app

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/aeroradar/internal/mavlink"
)

const (
	systemID    = 1
	componentID = 1 // autopilot
)

// Sender posts envelopes to a receiver as the RockBLOCK service does.
type Sender struct {
	client *http.Client
	url    string
	imei   string
	momsn  int64
	logger *slog.Logger
}

func NewSender(client *http.Client, url, imei string, logger *slog.Logger) *Sender {
	return &Sender{client: client, url: url, imei: imei, logger: logger}
}

// Send posts payload as a form encoded mobile-originated message and returns
// the response body.
func (s *Sender) Send(ctx context.Context, payload []byte, at time.Time) (string, error) {
	s.momsn++
	form := url.Values{
		"imei":          {s.imei},
		"momsn":         {strconv.FormatInt(s.momsn, 10)},
		"transmit_time": {at.UTC().Format("06-01-02 15:04:05")},
		"device_type":   {"ROCKBLOCK"},
		"serial":        {"0"},
		"iridium_cep":   {"3.0"},
		"data":          {hex.EncodeToString(payload)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting envelope: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	s.logger.Debug("envelope sent",
		slog.Int64("momsn", s.momsn),
		slog.String("size", humanize.Bytes(uint64(len(payload)))),
		slog.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return string(body), fmt.Errorf("receiver responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// TelemetryPayload frames the messages back to back and appends the Unix
// time trailer the flight computer adds to every satellite message.
func TelemetryPayload(enc *mavlink.Encoder, v1 bool, at time.Time, msgs ...mavlink.Message) ([]byte, error) {
	var buf []byte
	var err error
	for _, m := range msgs {
		if v1 {
			buf, err = enc.AppendV1(buf, m)
		} else {
			buf, err = enc.AppendV2(buf, m)
		}
		if err != nil {
			return nil, err
		}
	}
	return binary.LittleEndian.AppendUint32(buf, uint32(at.Unix())), nil
}

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	sender := NewSender(&http.Client{Timeout: 30 * time.Second}, config.URL, config.IMEI, logger)
	enc := mavlink.NewEncoder(mavlink.CommonRegistry(), systemID, componentID)
	flight := NewFlight(config)

	if config.Handshake {
		for _, msg := range []string{"bootup", "config,GPSFix=true,"} {
			body, err := sender.Send(ctx, []byte(msg), time.Now())
			if err != nil {
				return fmt.Errorf("sending %q: %w", msg, err)
			}
			logger.Info("handshake", slog.String("message", msg), slog.String("response", body))
		}
	}

	ticker := time.NewTicker(max(config.Interval, time.Millisecond))
	defer ticker.Stop()

	var failures int
	for i := range config.Steps {
		now := time.Now()
		att, pos := flight.Step(i)

		payload, err := TelemetryPayload(enc, config.V1, now, att, pos)
		if err != nil {
			return fmt.Errorf("encoding step %d: %w", i, err)
		}

		if _, err = sender.Send(ctx, payload, now); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			logger.Warn("sending telemetry", slog.Int("step", i), slog.String("error", err.Error()))
		} else {
			logger.Info("telemetry sent",
				slog.Int("step", i),
				slog.Float64("groundSpeed", flight.Speed(i)))
		}

		if i == config.Steps-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d messages rejected", failures, config.Steps)
	}
	return nil
}
