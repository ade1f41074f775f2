package storage

import (
	"time"
)

type missionData struct {
	ID        string
	VehicleID string
	StartedAt time.Time
	EndedAt   time.Time
}

type flightLogData struct {
	MissionID   string
	Timestamp   time.Time
	Latitude    float64
	Longitude   float64
	Altitude    float64
	GroundSpeed float64
	Heading     float64
}
