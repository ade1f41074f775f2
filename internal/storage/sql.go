package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	upsertNodeSQL = `
INSERT INTO nodes (path, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (path) DO UPDATE SET value      = excluded.value,
                                 updated_at = excluded.updated_at`

	deleteDescendantsSQL = `
DELETE FROM nodes
WHERE substr(path, 1, length(?1)) = ?1`

	selectNodeSQL = `
SELECT value
FROM nodes
WHERE path = ?`

	selectNodesSQL = `
SELECT path,
       value
FROM nodes
WHERE substr(path, 1, length(?1)) = ?1
ORDER BY path`

	insertMissionSQL = `
INSERT INTO missions (id,
                      vehicle_id,
                      started_at,
                      ended_at)
VALUES (?, ?, ?, ?)`

	insertFlightLogSQL = `
INSERT INTO flight_log (mission_id,
                        timestamp,
                        latitude,
                        longitude,
                        altitude,
                        ground_speed,
                        heading)
VALUES `

	selectMissionsSQL = `
SELECT id,
       vehicle_id,
       started_at,
       ended_at
FROM missions`

	selectFlightLogSQL = `
SELECT timestamp,
       latitude,
       longitude,
       altitude,
       ground_speed,
       heading
FROM flight_log
WHERE mission_id = ?
ORDER BY timestamp, id`
)
