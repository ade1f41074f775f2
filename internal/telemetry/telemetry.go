// Package telemetry merges decoded MAVLink messages into the flat live record
// shown on the dashboard.
package telemetry

// Record is the normalized live state of one vehicle. Fields whose source
// message was absent keep their zero value.
type Record struct {
	Roll       float64 `json:"roll"`       // deg
	Pitch      float64 `json:"pitch"`      // deg
	Yaw        float64 `json:"yaw"`        // deg
	RollSpeed  float64 `json:"rollSpeed"`  // deg/s
	PitchSpeed float64 `json:"pitchSpeed"` // deg/s
	YawSpeed   float64 `json:"yawSpeed"`   // deg/s

	Latitude         float64 `json:"latitude"`         // deg
	Longitude        float64 `json:"longitude"`        // deg
	Altitude         float64 `json:"altitude"`         // m, MSL
	RelativeAltitude float64 `json:"relativeAltitude"` // m above home
	Vx               float64 `json:"vx"`               // m/s
	Vy               float64 `json:"vy"`               // m/s
	Vz               float64 `json:"vz"`               // m/s
	GroundSpeed      float64 `json:"groundSpeed"`      // m/s
	Heading          float64 `json:"heading"`          // deg
	FlightTime       float64 `json:"flightTime"`       // s since boot
	InFlight         bool    `json:"inFlight"`

	VehicleID  string `json:"droneID"`
	UploadTime int64  `json:"uploadTime"` // Unix seconds from the payload trailer
}
