package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"
)

type Config struct {
	URL         string
	IMEI        string
	Steps       int
	Interval    time.Duration
	CruiseSpeed float64 // m/s
	Heading     float64 // deg
	Latitude    float64
	Longitude   float64
	Altitude    float64 // m above takeoff
	Elevation   float64 // m, MSL of the takeoff point
	V1          bool
	Handshake   bool
	Verbose     bool
}

func NewConfig() *Config {
	return &Config{
		URL:         "http://localhost:8080/rockblock",
		Steps:       60,
		Interval:    time.Second,
		CruiseSpeed: 70,
		Heading:     45,
		Latitude:    -33.8688,
		Longitude:   151.2093,
		Altitude:    120,
		Elevation:   30,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return ParseFlags(os.Args[0], os.Args[1:], os.Stderr)
}

// ParseFlags parses simulator flags from args.
func ParseFlags(name string, args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&c.URL, "url", c.URL, "Receiver webhook URL")
	fs.StringVar(&c.IMEI, "imei", "", "Modem IMEI to send as")
	fs.IntVar(&c.Steps, "n", c.Steps, "Number of telemetry messages in the flight")
	fs.DurationVar(&c.Interval, "i", c.Interval, "Interval between messages")
	fs.Float64Var(&c.CruiseSpeed, "speed", c.CruiseSpeed, "Cruise ground speed in m/s")
	fs.Float64Var(&c.Heading, "heading", c.Heading, "Course over ground in degrees")
	fs.Float64Var(&c.Latitude, "lat", c.Latitude, "Takeoff latitude")
	fs.Float64Var(&c.Longitude, "lon", c.Longitude, "Takeoff longitude")
	fs.Float64Var(&c.Altitude, "alt", c.Altitude, "Cruise altitude in metres above takeoff")
	fs.Float64Var(&c.Elevation, "elevation", c.Elevation, "Takeoff elevation in metres above MSL")
	fs.BoolVar(&c.V1, "v1", false, "Frame messages as MAVLink v1 instead of v2")
	fs.BoolVar(&c.Handshake, "handshake", false, "Send bootup and config messages before the flight")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if u, perr := url.Parse(c.URL); perr != nil || u.Scheme == "" || u.Host == "" {
		err = fmt.Errorf("invalid url: %s", c.URL)
	} else if c.IMEI == "" {
		err = errors.New("imei is required")
	} else if c.Steps < 1 {
		err = fmt.Errorf("number of messages must be positive: %d", c.Steps)
	} else if c.Interval < 0 {
		err = fmt.Errorf("interval must not be negative: %s", c.Interval)
	} else if c.CruiseSpeed <= 0 || c.CruiseSpeed > 327 {
		err = fmt.Errorf("cruise speed must be between 0 and 327 m/s: %0.1f", c.CruiseSpeed)
	} else if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		err = fmt.Errorf("invalid takeoff position: %0.4f,%0.4f", c.Latitude, c.Longitude)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}
