package rockblock

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidEnvelope is returned for request bodies that are not a usable
// RockBLOCK mobile-originated message.
var ErrInvalidEnvelope = errors.New("invalid rockblock message")

// Envelope is a mobile-originated message as delivered by the RockBLOCK
// webhook. Only IMEI and Data drive processing; the rest is kept for
// diagnostics.
type Envelope struct {
	IMEI             string  `json:"imei"`
	Data             string  `json:"data"` // hex encoded payload
	MOMSN            int64   `json:"momsn"`
	TransmitTime     string  `json:"transmit_time"`
	JWT              string  `json:"JWT"`
	DeviceType       string  `json:"device_type"`
	IridiumCEP       float64 `json:"iridium_cep"`
	IridiumLatitude  float64 `json:"iridium_latitude"`
	IridiumLongitude float64 `json:"iridium_longitude"`
	Serial           int64   `json:"serial"`
}

// ParseEnvelope decodes a webhook body. JSON and URL-encoded form bodies are
// accepted; the format is chosen by the content type, defaulting to JSON.
func ParseEnvelope(contentType string, body []byte) (Envelope, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)

	var env Envelope
	var err error
	switch mediaType {
	case "application/x-www-form-urlencoded":
		env, err = parseForm(body)
	default:
		err = json.Unmarshal(body, &env)
	}
	if err != nil {
		return env, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	if err = env.Validate(); err != nil {
		return env, err
	}
	return env, nil
}

// Validate checks the fields the pipeline depends on.
func (e *Envelope) Validate() error {
	if strings.TrimSpace(e.IMEI) == "" {
		return fmt.Errorf("%w: missing imei", ErrInvalidEnvelope)
	}
	if e.Data == "" {
		return fmt.Errorf("%w: missing data", ErrInvalidEnvelope)
	}
	if len(e.Data)%2 != 0 {
		return fmt.Errorf("%w: odd length data", ErrInvalidEnvelope)
	}
	if _, err := hex.DecodeString(e.Data); err != nil {
		return fmt.Errorf("%w: data is not hex: %w", ErrInvalidEnvelope, err)
	}
	return nil
}

// Payload returns the decoded data bytes.
func (e *Envelope) Payload() ([]byte, error) {
	p, err := hex.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return p, nil
}

func parseForm(body []byte) (Envelope, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		IMEI:         values.Get("imei"),
		Data:         values.Get("data"),
		TransmitTime: values.Get("transmit_time"),
		JWT:          values.Get("JWT"),
		DeviceType:   values.Get("device_type"),
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"momsn", &env.MOMSN},
		{"serial", &env.Serial},
	}
	for _, f := range ints {
		v := values.Get(f.name)
		if v == "" {
			continue
		}
		if *f.dst, err = strconv.ParseInt(v, 10, 64); err != nil {
			return env, fmt.Errorf("field %s: %w", f.name, err)
		}
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"iridium_cep", &env.IridiumCEP},
		{"iridium_latitude", &env.IridiumLatitude},
		{"iridium_longitude", &env.IridiumLongitude},
	}
	for _, f := range floats {
		v := values.Get(f.name)
		if v == "" {
			continue
		}
		if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
			return env, fmt.Errorf("field %s: %w", f.name, err)
		}
	}

	return env, nil
}
