// Package registry maps satellite modem IMEIs to the vehicles carrying them.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyIMEI     = errors.New("empty IMEI")
	ErrDuplicateIMEI = errors.New("duplicate IMEI")

	// ErrInvalidVehicleID is returned for vehicle ids that are empty or
	// contain a '/'. Ids become store keys and MQTT topic levels, where
	// '/' separates levels.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")
)

// Entry binds one modem to one vehicle.
type Entry struct {
	IMEI      string `yaml:"imei"`
	VehicleID string `yaml:"vehicleId"`
}

// Registry is an immutable IMEI lookup table, safe for concurrent reads.
type Registry struct {
	vehicles map[string]string
	modems   map[string]string
}

// New builds a Registry from entries. IMEIs and vehicle ids are trimmed of
// surrounding whitespace.
func New(entries []Entry) (*Registry, error) {
	r := Registry{
		vehicles: make(map[string]string, len(entries)),
		modems:   make(map[string]string, len(entries)),
	}

	for i, e := range entries {
		imei := strings.TrimSpace(e.IMEI)
		if imei == "" {
			return nil, fmt.Errorf("vehicle entry %d: %w", i, ErrEmptyIMEI)
		}
		vehicleID := strings.TrimSpace(e.VehicleID)
		if vehicleID == "" || strings.Contains(vehicleID, "/") {
			return nil, fmt.Errorf("vehicle entry %d (%s): %w %q", i, imei, ErrInvalidVehicleID, e.VehicleID)
		}
		if _, ok := r.vehicles[imei]; ok {
			return nil, fmt.Errorf("vehicle entry %d (%s): %w", i, imei, ErrDuplicateIMEI)
		}
		r.vehicles[imei] = vehicleID
		if _, ok := r.modems[vehicleID]; !ok {
			r.modems[vehicleID] = imei
		}
	}

	return &r, nil
}

// Lookup returns the vehicle carrying the modem with the given IMEI.
func (r *Registry) Lookup(imei string) (vehicleID string, ok bool) {
	vehicleID, ok = r.vehicles[strings.TrimSpace(imei)]
	return vehicleID, ok
}

// IMEI returns the modem of a vehicle. A vehicle listed with several modems
// resolves to the first one.
func (r *Registry) IMEI(vehicleID string) (imei string, ok bool) {
	imei, ok = r.modems[vehicleID]
	return imei, ok
}

// Len returns the number of registered modems.
func (r *Registry) Len() int {
	return len(r.vehicles)
}
