// Package mission turns the stream of live records into missions: a mission
// starts when a vehicle reaches takeoff speed and ends when it drops below it.
package mission

import (
	"time"

	"github.com/roman-kulish/aeroradar/internal/telemetry"
)

// DefaultTakeoffSpeed is the ground speed, in m/s, at which a mission starts.
const DefaultTakeoffSpeed = 65.0

// FlightLogEntry is one position fix recorded during a mission.
type FlightLogEntry struct {
	VehicleID   string    `json:"droneID"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Altitude    float64   `json:"altitude"`
	GroundSpeed float64   `json:"groundSpeed"`
	Heading     float64   `json:"heading"`
	Timestamp   time.Time `json:"timeStamp"`
}

// Mission is a completed or in-progress flight of one vehicle.
type Mission struct {
	ID        string           `json:"id"`
	VehicleID string           `json:"droneID"`
	StartedAt time.Time        `json:"startedAt"`
	EndedAt   time.Time        `json:"endedAt"`
	FlightLog []FlightLogEntry `json:"flightLog"`
}

// Duration returns the time between takeoff and touchdown.
func (m *Mission) Duration() time.Duration {
	return m.EndedAt.Sub(m.StartedAt)
}

func newFlightLogEntry(r *telemetry.Record, at time.Time) FlightLogEntry {
	return FlightLogEntry{
		VehicleID:   r.VehicleID,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Altitude:    r.Altitude,
		GroundSpeed: r.GroundSpeed,
		Heading:     r.Heading,
		Timestamp:   at,
	}
}
