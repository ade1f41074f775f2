package storage

import "strings"

const (
	LivePrefix   = "Live"
	ConfigPrefix = "Config"

	// ErrorPath holds the last envelope that could not be handled.
	ErrorPath = "error"
)

// LivePath is where the live record of a vehicle is kept.
func LivePath(vehicleID string) string {
	return JoinPath(LivePrefix, vehicleID)
}

// ConfigPath is where one configuration field of a vehicle is kept.
func ConfigPath(vehicleID, field string) string {
	return JoinPath(ConfigPrefix, vehicleID, field)
}

// JoinPath joins path segments with slashes, ignoring empty segments and
// stray slashes at segment edges.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
