package storage

import (
	"strings"
	"time"
)

// MissionOption narrows the missions returned by Missions.
type MissionOption func(*missionQuery)

// WithVehicle returns only missions flown by the given vehicle.
func WithVehicle(vehicleID string) MissionOption {
	return func(q *missionQuery) {
		q.vehicleID = &vehicleID
	}
}

// WithStartedAfter excludes missions that started before t.
func WithStartedAfter(t time.Time) MissionOption {
	return func(q *missionQuery) {
		t = t.UTC()
		q.startedAfter = &t
	}
}

// WithStartedBefore excludes missions that started at or after t.
func WithStartedBefore(t time.Time) MissionOption {
	return func(q *missionQuery) {
		t = t.UTC()
		q.startedBefore = &t
	}
}

// WithLimit caps the number of missions returned.
func WithLimit(n int) MissionOption {
	return func(q *missionQuery) {
		q.limit = n
	}
}

type missionQuery struct {
	vehicleID     *string
	startedAfter  *time.Time
	startedBefore *time.Time
	limit         int
}

func (q *missionQuery) build() (string, []any) {
	var where []string
	var args []any

	if q.vehicleID != nil {
		where = append(where, "vehicle_id = ?")
		args = append(args, *q.vehicleID)
	}
	if q.startedAfter != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *q.startedAfter)
	}
	if q.startedBefore != nil {
		where = append(where, "started_at < ?")
		args = append(args, *q.startedBefore)
	}

	var sb strings.Builder
	sb.WriteString(selectMissionsSQL)
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString("\nORDER BY started_at DESC")
	if q.limit > 0 {
		sb.WriteString("\nLIMIT ?")
		args = append(args, q.limit)
	}

	return sb.String(), args
}
