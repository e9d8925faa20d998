package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// Field counts per modality
const (
	stabilityFields = 12
	canFields       = 5
	gpsFields       = 9
	beaconFields    = 2
)

// gpsTimeLayout combines the GPS time and date columns
const gpsTimeLayout = "15:04:05 02/01/2006"

// noFixMarkers flag GPS rows written while the receiver had no fix
var noFixMarkers = []string{"sin datos gps", "no fix", "nofix"}

// rowParser turns the fields of one data row into a sample
type rowParser[T models.RawSample] func(fields []string, loc *time.Location) (T, error)

// fieldError names the offending column of a malformed row
type fieldError struct {
	column string
	value  string
	err    error
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("column %s: invalid value %q: %v", e.column, e.value, e.err)
}

func (e *fieldError) Unwrap() error { return e.err }

// floats parses consecutive numeric columns into dst
func floats(fields []string, names []string, dst ...*float64) error {
	for i, p := range dst {
		v, err := strconv.ParseFloat(strings.Replace(fields[i], ",", ".", 1), 64)
		if err != nil {
			return &fieldError{column: names[i], value: fields[i], err: err}
		}
		*p = v
	}
	return nil
}

func checkFieldCount(fields []string, want int) error {
	if len(fields) != want {
		return fmt.Errorf("expected %d fields, got %d", want, len(fields))
	}
	return nil
}

var stabilityColumns = []string{"ax", "ay", "az", "gx", "gy", "gz", "roll", "pitch", "yaw", "si", "accmag"}

func parseStabilityRow(fields []string, loc *time.Location) (models.StabilitySample, error) {
	var s models.StabilitySample
	if err := checkFieldCount(fields, stabilityFields); err != nil {
		return s, err
	}

	ts, err := parseTimestamp(fields[0], loc)
	if err != nil {
		return s, &fieldError{column: "timestamp", value: fields[0], err: err}
	}
	s.Timestamp = ts

	err = floats(fields[1:], stabilityColumns,
		&s.AX, &s.AY, &s.AZ,
		&s.GX, &s.GY, &s.GZ,
		&s.Roll, &s.Pitch, &s.Yaw,
		&s.SI, &s.AccMag,
	)
	return s, err
}

var canColumns = []string{"engine_rpm", "vehicle_speed", "fuel_rate", "pedal_position"}

func parseCANRow(fields []string, loc *time.Location) (models.CANSample, error) {
	var c models.CANSample
	if err := checkFieldCount(fields, canFields); err != nil {
		return c, err
	}

	ts, err := parseTimestamp(fields[0], loc)
	if err != nil {
		return c, &fieldError{column: "timestamp", value: fields[0], err: err}
	}
	c.Timestamp = ts

	err = floats(fields[1:], canColumns, &c.EngineRPM, &c.VehicleSpeedKmh, &c.FuelRate, &c.PedalPosition)
	return c, err
}

var gpsColumns = []string{"latitude", "longitude", "altitude", "hdop"}

func parseGPSRow(fields []string, loc *time.Location) (models.GPSSample, error) {
	var g models.GPSSample
	if err := checkFieldCount(fields, gpsFields); err != nil {
		return g, err
	}

	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(gpsTimeLayout, fields[0]+" "+fields[1], loc)
	if err != nil {
		return g, &fieldError{column: "time/date", value: fields[0] + "," + fields[1], err: err}
	}
	g.Timestamp = ts

	if err := floats(fields[2:6], gpsColumns, &g.Latitude, &g.Longitude, &g.Altitude, &g.HDOP); err != nil {
		return g, err
	}

	if g.FixQuality, err = strconv.Atoi(fields[6]); err != nil {
		return g, &fieldError{column: "fix", value: fields[6], err: err}
	}
	if g.Satellites, err = strconv.Atoi(fields[7]); err != nil {
		return g, &fieldError{column: "satellites", value: fields[7], err: err}
	}
	if err := floats(fields[8:], []string{"speed_kmh"}, &g.SpeedKmh); err != nil {
		return g, err
	}
	return g, nil
}

func parseBeaconRow(fields []string, loc *time.Location) (models.BeaconSample, error) {
	var b models.BeaconSample
	if err := checkFieldCount(fields, beaconFields); err != nil {
		return b, err
	}

	ts, err := parseTimestamp(fields[0], loc)
	if err != nil {
		return b, &fieldError{column: "timestamp", value: fields[0], err: err}
	}
	b.Timestamp = ts

	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return b, &fieldError{column: "code", value: fields[1], err: err}
	}
	b.Code = models.BeaconCode(code)
	return b, nil
}

// isNoFixRow reports whether a GPS line is a receiver no-fix marker
func isNoFixRow(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range noFixMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
