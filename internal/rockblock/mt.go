package rockblock

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMTEndpoint is the Rock7 mobile-terminated message API.
const DefaultMTEndpoint = "https://rockblock.rock7.com/rockblock/MT"

// MaxMTPayload is the largest mobile-terminated payload the modem accepts.
const MaxMTPayload = 270

var (
	// ErrMTRejected is returned when Rock7 refuses a message. The wrapped
	// text carries the API error code and description.
	ErrMTRejected = errors.New("mobile-terminated message rejected")

	ErrMTPayloadTooLarge = errors.New("mobile-terminated payload too large")
)

// WithMTEndpoint overrides DefaultMTEndpoint
func WithMTEndpoint(endpoint string) func(c *MTClient) {
	return func(c *MTClient) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient replaces the HTTP client used to reach Rock7.
func WithHTTPClient(client *http.Client) func(c *MTClient) {
	return func(c *MTClient) {
		c.client = client
	}
}

// WithMTLogger sets the client logger
func WithMTLogger(logger *slog.Logger) func(c *MTClient) {
	return func(c *MTClient) {
		c.logger = logger.With(slog.String("component", "rockblock-mt"))
	}
}

// MTClient queues mobile-terminated messages, such as configuration
// commands, for delivery to a modem on its next satellite session.
type MTClient struct {
	endpoint string
	username string
	password string
	client   *http.Client
	logger   *slog.Logger
}

func NewMTClient(username, password string, options ...func(c *MTClient)) *MTClient {
	c := MTClient{
		endpoint: DefaultMTEndpoint,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Send queues payload for the modem with the given IMEI and returns the
// message id assigned by Rock7.
func (c *MTClient) Send(ctx context.Context, imei string, payload []byte) (string, error) {
	if len(payload) > MaxMTPayload {
		return "", fmt.Errorf("%w: %d bytes", ErrMTPayloadTooLarge, len(payload))
	}

	form := url.Values{
		"imei":     {imei},
		"username": {c.username},
		"password": {c.password},
		"data":     {hex.EncodeToString(payload)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending mobile-terminated message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", ErrMTRejected, resp.StatusCode)
	}

	// OK,12345678 or FAILED,10,Invalid login credentials
	status, rest, _ := strings.Cut(strings.TrimSpace(string(body)), ",")
	if status != "OK" {
		return "", fmt.Errorf("%w: %s", ErrMTRejected, rest)
	}

	c.logger.Info("mobile-terminated message queued", slog.String("imei", imei), slog.String("messageID", rest))
	return rest, nil
}
