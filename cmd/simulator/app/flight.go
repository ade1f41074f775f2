package app

import (
	"math"

	"github.com/roman-kulish/aeroradar/internal/mavlink"
)

const (
	metresPerDegree = 111_320.0

	// fraction of the flight spent accelerating and decelerating
	rampFraction = 0.2
)

// Flight produces a takeoff, cruise and landing profile along a straight
// course.
type Flight struct {
	config *Config
	lat    float64
	lon    float64
	bootMs uint32
}

func NewFlight(config *Config) *Flight {
	return &Flight{config: config, lat: config.Latitude, lon: config.Longitude}
}

// Speed is the ground speed at step i in m/s. The first and the last step
// are on the ground.
func (f *Flight) Speed(i int) float64 {
	n := f.config.Steps
	if n < 3 || i <= 0 || i >= n-1 {
		return 0
	}

	ramp := math.Max(1, math.Round(float64(n)*rampFraction))
	switch {
	case float64(i) < ramp:
		return f.config.CruiseSpeed * float64(i) / ramp
	case float64(n-1-i) < ramp:
		return f.config.CruiseSpeed * float64(n-1-i) / ramp
	default:
		return f.config.CruiseSpeed
	}
}

// Step advances the flight by one interval and returns the messages the
// flight computer would report.
func (f *Flight) Step(i int) (*mavlink.Attitude, *mavlink.GlobalPositionInt) {
	speed := f.Speed(i)
	heading := f.config.Heading * math.Pi / 180
	dt := f.config.Interval.Seconds()

	f.lat += speed * math.Cos(heading) * dt / metresPerDegree
	f.lon += speed * math.Sin(heading) * dt / (metresPerDegree * math.Cos(f.lat*math.Pi/180))
	f.bootMs += uint32(f.config.Interval.Milliseconds())

	relAlt := 0.0
	if speed > 0 {
		relAlt = f.config.Altitude * speed / f.config.CruiseSpeed
	}

	vx := speed * math.Cos(heading) * 100
	vy := speed * math.Sin(heading) * 100

	att := &mavlink.Attitude{
		TimeBootMs: f.bootMs,
		Roll:       float32(0.02 * math.Sin(float64(i))),
		Pitch:      float32(-0.05 * speed / f.config.CruiseSpeed),
		Yaw:        float32(heading),
		YawSpeed:   float32(0.001 * math.Cos(float64(i))),
	}
	pos := &mavlink.GlobalPositionInt{
		TimeBootMs:  f.bootMs,
		Lat:         int32(math.Round(f.lat * 1e7)),
		Lon:         int32(math.Round(f.lon * 1e7)),
		Alt:         int32(math.Round((f.config.Elevation + relAlt) * 1000)),
		RelativeAlt: int32(math.Round(relAlt * 1000)),
		Vx:          int16(math.Round(vx)),
		Vy:          int16(math.Round(vy)),
		Hdg:         uint16(math.Mod(f.config.Heading+360, 360) * 100),
	}
	return att, pos
}
