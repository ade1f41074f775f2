package storage

import (
	"context"
	"encoding/json"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/aeroradar/internal/mission"
)

// ErrNotFound is returned when no value is stored at a path.
var ErrNotFound = errors.New("not found")

// Store is a path-keyed document store for live vehicle state plus an
// archive of completed missions.
//
// Paths are slash separated ("Live/AR-1", "Config/AR-1/GPSFix"). A value set
// at a path replaces the value at that path and everything below it, so
// writing "Config/AR-1" discards "Config/AR-1/GPSFix". Values are stored as
// JSON.
type Store interface {
	// Set stores value, marshaled as JSON, at path.
	//
	// Returns error if value cannot be marshaled, storage fails or the
	// context is cancelled.
	Set(ctx context.Context, path string, value any) error

	// Get unmarshals the value stored at path into dst.
	//
	// Returns ErrNotFound if nothing is stored at path.
	Get(ctx context.Context, path string, dst any) error

	// List returns the values stored directly or indirectly below prefix,
	// keyed by their path relative to prefix.
	List(ctx context.Context, prefix string) (map[string]json.RawMessage, error)

	// StoreMission archives a completed mission together with its flight log.
	// All entries are written in a single transaction.
	StoreMission(ctx context.Context, m *mission.Mission) error

	// Missions returns archived missions, most recent first, filtered by
	// the given options.
	Missions(ctx context.Context, opts ...MissionOption) ([]*mission.Mission, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
