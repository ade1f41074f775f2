package telemetry

import (
	"iter"

	"github.com/roman-kulish/aeroradar/internal/mavlink"
	"github.com/roman-kulish/aeroradar/internal/units"
)

// DefaultInFlightThreshold is the forward velocity, in m/s, above which a
// vehicle is reported as flying.
const DefaultInFlightThreshold = 65.0

// Result is a record under construction together with the message classes
// that contributed to it.
type Result struct {
	Record       Record
	AttitudeSeen bool
	PositionSeen bool
}

// Complete reports whether both attitude and position were seen.
func (r *Result) Complete() bool {
	return r.AttitudeSeen && r.PositionSeen
}

// WithInFlightThreshold overrides DefaultInFlightThreshold
func WithInFlightThreshold(v float64) func(e *Extractor) {
	return func(e *Extractor) {
		e.inFlightThreshold = v
	}
}

// Extractor classifies decoded messages and writes their fields, in display
// units, into a Result. It never fails: messages it does not know are ignored.
type Extractor struct {
	inFlightThreshold float64
}

func NewExtractor(options ...func(e *Extractor)) *Extractor {
	e := Extractor{inFlightThreshold: DefaultInFlightThreshold}

	for _, option := range options {
		option(&e)
	}

	return &e
}

// InFlightThreshold returns the configured threshold in m/s.
func (e *Extractor) InFlightThreshold() float64 {
	return e.inFlightThreshold
}

// Apply merges one message into res. Later messages of the same class
// overwrite earlier ones.
func (e *Extractor) Apply(res *Result, m mavlink.Message) {
	switch m := m.(type) {
	case *mavlink.Attitude:
		res.Record.Roll = units.RadiansToDegrees(float64(m.Roll))
		res.Record.Pitch = units.RadiansToDegrees(float64(m.Pitch))
		res.Record.Yaw = units.RadiansToDegrees(float64(m.Yaw))
		res.Record.RollSpeed = units.RadiansToDegrees(float64(m.RollSpeed))
		res.Record.PitchSpeed = units.RadiansToDegrees(float64(m.PitchSpeed))
		res.Record.YawSpeed = units.RadiansToDegrees(float64(m.YawSpeed))
		res.AttitudeSeen = true

	case *mavlink.GlobalPositionInt:
		res.Record.Latitude = units.DegreesE7(m.Lat)
		res.Record.Longitude = units.DegreesE7(m.Lon)
		res.Record.Altitude = units.Milli(m.Alt)
		res.Record.RelativeAltitude = units.Milli(m.RelativeAlt)
		res.Record.Vx = units.Centi(m.Vx)
		res.Record.Vy = units.Centi(m.Vy)
		res.Record.Vz = units.Centi(m.Vz)
		res.Record.Heading = units.Centi(m.Hdg)
		res.Record.GroundSpeed = units.GroundSpeed(m.Vx, m.Vy)
		res.Record.FlightTime = units.Milli(m.TimeBootMs)
		res.Record.InFlight = res.Record.Vx > e.inFlightThreshold
		res.PositionSeen = true
	}
}

// Extract folds all messages of seq into a fresh Result.
func (e *Extractor) Extract(seq iter.Seq[mavlink.Message]) Result {
	var res Result
	for m := range seq {
		e.Apply(&res, m)
	}
	return res
}
