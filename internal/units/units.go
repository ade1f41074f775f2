// Package units converts raw MAVLink field units into the display units used by
// telemetry records. All functions are pure.
package units

import "math"

const (
	centiScale = 100        // centi-units: heading cdeg, velocity cm/s
	milliScale = 1_000      // milli-units: altitude mm, time ms
	e7Scale    = 10_000_000 // degrees * 1e7: latitude, longitude

	// AnglePrecision is the number of decimals kept for angles and angular rates.
	AnglePrecision = 2
)

// Round rounds x half away from zero to the given number of decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}

// RadiansToDegrees converts an angle or angular rate from radians to degrees,
// rounded to AnglePrecision decimals.
func RadiansToDegrees(rad float64) float64 {
	return Round(rad*180/math.Pi, AnglePrecision)
}

// Centi converts a centi-unit value (cdeg, cm/s) to its base unit.
func Centi[T ~int16 | ~uint16 | ~int32 | ~float64](v T) float64 {
	return float64(v) / centiScale
}

// Milli converts a milli-unit value (mm, ms) to its base unit.
func Milli[T ~int32 | ~uint32 | ~int64 | ~float64](v T) float64 {
	return float64(v) / milliScale
}

// DegreesE7 converts a latitude or longitude encoded as degrees * 1e7.
func DegreesE7(v int32) float64 {
	return float64(v) / e7Scale
}

// GroundSpeed returns the horizontal speed in m/s from north/east velocity
// components in cm/s. The magnitude is rounded to a whole cm/s first.
func GroundSpeed(vx, vy int16) float64 {
	x, y := float64(vx), float64(vy)
	return math.Round(math.Sqrt(x*x+y*y)) / centiScale
}
