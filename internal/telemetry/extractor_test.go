package telemetry

import (
	"encoding/json"
	"iter"
	"math"
	"slices"
	"testing"

	"github.com/roman-kulish/aeroradar/internal/mavlink"
)

func testMessages() (*mavlink.Attitude, *mavlink.GlobalPositionInt) {
	att := &mavlink.Attitude{
		TimeBootMs: 90500,
		Roll:       0.5,
		Pitch:      -0.25,
		Yaw:        math.Pi,
	}
	pos := &mavlink.GlobalPositionInt{
		TimeBootMs:  90500,
		Lat:         -337500000,
		Lon:         1511234567,
		Alt:         123456,
		RelativeAlt: 45000,
		Vx:          7000,
		Vy:          -1000,
		Vz:          -25,
		Hdg:         27000,
	}
	return att, pos
}

func TestExtract_Complete(t *testing.T) {
	att, pos := testMessages()
	res := NewExtractor().Extract(slices.Values([]mavlink.Message{att, pos}))

	if !res.Complete() {
		t.Fatalf("Expected complete result, got attitude=%v position=%v", res.AttitudeSeen, res.PositionSeen)
	}

	want := Record{
		Roll:             28.65,
		Pitch:            -14.32,
		Yaw:              180,
		Latitude:         -33.75,
		Longitude:        151.1234567,
		Altitude:         123.456,
		RelativeAltitude: 45,
		Vx:               70,
		Vy:               -10,
		Vz:               -0.25,
		GroundSpeed:      70.71,
		Heading:          270,
		FlightTime:       90.5,
		InFlight:         true,
	}
	if res.Record != want {
		t.Errorf("Expected record %+v, got %+v", want, res.Record)
	}
}

func TestExtract_Completeness(t *testing.T) {
	att, pos := testMessages()
	unknown := &mavlink.Unknown{ID: 0}

	testCases := []struct {
		name     string
		msgs     []mavlink.Message
		attitude bool
		position bool
	}{
		{"nothing", nil, false, false},
		{"unknown only", []mavlink.Message{unknown}, false, false},
		{"attitude only", []mavlink.Message{att, unknown}, true, false},
		{"position only", []mavlink.Message{unknown, pos}, false, true},
		{"both", []mavlink.Message{pos, unknown, att}, true, true},
	}

	e := NewExtractor()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Extract(slices.Values(tc.msgs))
			if res.AttitudeSeen != tc.attitude || res.PositionSeen != tc.position {
				t.Errorf("Expected attitude=%v position=%v, got attitude=%v position=%v",
					tc.attitude, tc.position, res.AttitudeSeen, res.PositionSeen)
			}
			if res.Complete() != (tc.attitude && tc.position) {
				t.Errorf("Unexpected Complete() = %v", res.Complete())
			}
		})
	}
}

func TestExtract_AbsentFieldsStayZero(t *testing.T) {
	att, _ := testMessages()
	res := NewExtractor().Extract(slices.Values([]mavlink.Message{att}))

	r := res.Record
	if r.Latitude != 0 || r.Longitude != 0 || r.GroundSpeed != 0 || r.InFlight {
		t.Errorf("Expected zero position fields, got %+v", r)
	}
}

func TestExtract_InFlightThreshold(t *testing.T) {
	testCases := []struct {
		name      string
		vx        int16
		threshold float64
		want      bool
	}{
		{"above default", 6600, DefaultInFlightThreshold, true},
		{"at default", 6500, DefaultInFlightThreshold, false},
		{"below default", 100, DefaultInFlightThreshold, false},
		{"reverse", -7000, DefaultInFlightThreshold, false},
		{"custom threshold", 6600, 80, false},
		{"zero threshold", 1, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewExtractor(WithInFlightThreshold(tc.threshold))
			res := e.Extract(slices.Values([]mavlink.Message{&mavlink.GlobalPositionInt{Vx: tc.vx}}))
			if res.Record.InFlight != tc.want {
				t.Errorf("Expected inFlight %v for vx=%d, got %v", tc.want, tc.vx, res.Record.InFlight)
			}
		})
	}
}

func TestExtract_LastMessageWins(t *testing.T) {
	first := &mavlink.Attitude{Roll: 0.1}
	second := &mavlink.Attitude{Roll: 0.2}

	var seq iter.Seq[mavlink.Message] = slices.Values([]mavlink.Message{first, second})
	res := NewExtractor().Extract(seq)
	if res.Record.Roll != 11.46 {
		t.Errorf("Expected roll from the last attitude 11.46, got %v", res.Record.Roll)
	}
}

func TestRecord_JSONNames(t *testing.T) {
	b, err := json.Marshal(Record{VehicleID: "AR-1", UploadTime: 1700000000})
	if err != nil {
		t.Fatalf("Failed to marshal record: %v", err)
	}

	var fields map[string]any
	if err = json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("Failed to unmarshal record: %v", err)
	}

	for _, name := range []string{
		"roll", "pitch", "yaw", "rollSpeed", "pitchSpeed", "yawSpeed",
		"latitude", "longitude", "altitude", "relativeAltitude", "vx", "vy", "vz",
		"groundSpeed", "heading", "flightTime", "inFlight", "droneID", "uploadTime",
	} {
		if _, ok := fields[name]; !ok {
			t.Errorf("Expected field %q in %s", name, b)
		}
	}
	if fields["droneID"] != "AR-1" {
		t.Errorf("Expected droneID AR-1, got %v", fields["droneID"])
	}
}
