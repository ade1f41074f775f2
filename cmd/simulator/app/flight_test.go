package app

import (
	"testing"
	"time"
)

func TestFlight_SpeedProfile(t *testing.T) {
	config := NewConfig()
	config.Steps = 10

	f := NewFlight(config)
	want := []float64{0, 35, 70, 70, 70, 70, 70, 70, 35, 0}
	for i, w := range want {
		if got := f.Speed(i); got != w {
			t.Errorf("Step %d: expected speed %v, got %v", i, w, got)
		}
	}
}

func TestFlight_ShortFlightStaysOnGround(t *testing.T) {
	config := NewConfig()
	config.Steps = 2

	f := NewFlight(config)
	for i := range 2 {
		if got := f.Speed(i); got != 0 {
			t.Errorf("Step %d: expected speed 0, got %v", i, got)
		}
	}
}

func TestFlight_Step(t *testing.T) {
	config := NewConfig()
	config.Steps = 10
	config.Heading = 0
	config.Interval = 10 * time.Second

	f := NewFlight(config)
	_, before := f.Step(0)
	att, after := f.Step(3)

	if after.Lat <= before.Lat {
		t.Errorf("Expected northbound flight to increase latitude, got %d -> %d", before.Lat, after.Lat)
	}
	if after.Lon != before.Lon {
		t.Errorf("Expected longitude to stay at %d, got %d", before.Lon, after.Lon)
	}
	if after.Vx != 7000 || after.Vy != 0 {
		t.Errorf("Expected vx 7000 vy 0, got vx %d vy %d", after.Vx, after.Vy)
	}
	if after.RelativeAlt != 120_000 || after.Alt != 150_000 {
		t.Errorf("Expected relative altitude 120000 and altitude 150000, got %d and %d", after.RelativeAlt, after.Alt)
	}
	if att.TimeBootMs != 20_000 || after.TimeBootMs != att.TimeBootMs {
		t.Errorf("Expected boot time 20000 on both messages, got %d and %d", att.TimeBootMs, after.TimeBootMs)
	}
}
