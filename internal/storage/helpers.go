package storage

import (
	"database/sql"
	"errors"

	"github.com/roman-kulish/aeroradar/internal/mission"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError is deferred right after BeginTx; after a successful
// Commit the rollback is a no-op.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toMissionData(m *mission.Mission) *missionData {
	return &missionData{
		ID:        m.ID,
		VehicleID: m.VehicleID,
		StartedAt: m.StartedAt.UTC(),
		EndedAt:   m.EndedAt.UTC(),
	}
}

func toFlightLogData(missionID string, e mission.FlightLogEntry) *flightLogData {
	return &flightLogData{
		MissionID:   missionID,
		Timestamp:   e.Timestamp.UTC(),
		Latitude:    e.Latitude,
		Longitude:   e.Longitude,
		Altitude:    e.Altitude,
		GroundSpeed: e.GroundSpeed,
		Heading:     e.Heading,
	}
}

func fromMissionData(d *missionData) *mission.Mission {
	return &mission.Mission{
		ID:        d.ID,
		VehicleID: d.VehicleID,
		StartedAt: d.StartedAt,
		EndedAt:   d.EndedAt,
	}
}

func fromFlightLogData(vehicleID string, d *flightLogData) mission.FlightLogEntry {
	return mission.FlightLogEntry{
		VehicleID:   vehicleID,
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		Altitude:    d.Altitude,
		GroundSpeed: d.GroundSpeed,
		Heading:     d.Heading,
		Timestamp:   d.Timestamp,
	}
}
