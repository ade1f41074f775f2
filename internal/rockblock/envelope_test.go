package rockblock

import (
	"errors"
	"net/netip"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	body := `{"imei":"300434063839690","data":"626f6f747570","momsn":7,"transmit_time":"24-05-01 12:00:00",` +
		`"JWT":"x.y.z","device_type":"ROCKBLOCK","iridium_cep":4,"iridium_latitude":-33.7,"iridium_longitude":151.1,"serial":206899}`

	env, err := ParseEnvelope("application/json; charset=utf-8", []byte(body))
	if err != nil {
		t.Fatalf("Failed to parse envelope: %v", err)
	}
	if env.IMEI != "300434063839690" || env.MOMSN != 7 || env.Serial != 206899 || env.IridiumLatitude != -33.7 {
		t.Errorf("Unexpected envelope: %+v", env)
	}

	payload, err := env.Payload()
	if err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if string(payload) != "bootup" {
		t.Errorf("Expected payload bootup, got %q", payload)
	}
}

func TestParseEnvelope_Form(t *testing.T) {
	env, err := ParseEnvelope("application/x-www-form-urlencoded",
		[]byte("imei=300434063839690&data=00ff&momsn=3&iridium_longitude=151.25&JWT=abc"))
	if err != nil {
		t.Fatalf("Failed to parse envelope: %v", err)
	}
	if env.MOMSN != 3 || env.IridiumLongitude != 151.25 || env.JWT != "abc" || env.Data != "00ff" {
		t.Errorf("Unexpected envelope: %+v", env)
	}
}

func TestParseEnvelope_Invalid(t *testing.T) {
	for _, body := range []string{"", "null", `{"imei":" ","data":"00"}`, `{"imei":"1","data":"0g"}`} {
		if _, err := ParseEnvelope("", []byte(body)); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("Expected ErrInvalidEnvelope for %q, got %v", body, err)
		}
	}
}

func TestParseAllowList(t *testing.T) {
	prefixes, err := ParseAllowList([]string{"109.74.196.135", " 10.0.0.0/8 ", "2001:db8::/32", "::ffff:192.0.2.1"})
	if err != nil {
		t.Fatalf("Failed to parse allow list: %v", err)
	}

	testCases := []struct {
		addr string
		want bool
	}{
		{"109.74.196.135", true},
		{"109.74.196.136", false},
		{"10.20.30.40", true},
		{"2001:db8::1", true},
		{"192.0.2.1", true},
		{"::ffff:10.1.1.1", true},
		{"2001:db9::1", false},
	}
	for _, tc := range testCases {
		if got := allowed(prefixes, netip.MustParseAddr(tc.addr)); got != tc.want {
			t.Errorf("allowed(%s): expected %v, got %v", tc.addr, tc.want, got)
		}
	}

	if _, err = ParseAllowList([]string{"not-an-ip"}); err == nil {
		t.Error("Expected error for invalid entry")
	}
	if _, err = ParseAllowList([]string{"10.0.0.0/33"}); err == nil {
		t.Error("Expected error for invalid prefix")
	}
}
