package states

import (
	"fmt"
	"time"
)

// Config holds the classifier thresholds
type Config struct {
	MovementSpeedKmh         float64       `yaml:"movementSpeedKmh" json:"movement_speed_kmh"`
	DwellDuration            time.Duration `yaml:"dwellDuration" json:"dwell_duration"`
	DwellRadiusMeters        float64       `yaml:"dwellRadiusMeters" json:"dwell_radius_meters"`
	ApproachWindow           time.Duration `yaml:"approachWindow" json:"approach_window"`
	ApproachMinClosingMeters float64       `yaml:"approachMinClosingMeters" json:"approach_min_closing_meters"`
	OriginRadiusMeters       float64       `yaml:"originRadiusMeters" json:"origin_radius_meters"`
	MinSatellites            int           `yaml:"minSatellites" json:"min_satellites"`
	MaxPlausibleSpeedKmh     float64       `yaml:"maxPlausibleSpeedKmh" json:"max_plausible_speed_kmh"`
	RejectNullIsland         bool          `yaml:"rejectNullIsland" json:"reject_null_island"` // Drop fixes reported at exactly 0,0

	// Without informative beacon codes, a session whose fixes stay within this
	// distance of the first fix is one parked segment. 0 disables the check.
	StationaryDisplacementMeters float64 `yaml:"stationaryDisplacementMeters" json:"stationary_displacement_meters"`
}

// DefaultConfig returns the starting-point thresholds
func DefaultConfig() Config {
	return Config{
		MovementSpeedKmh:         5,
		DwellDuration:            120 * time.Second,
		DwellRadiusMeters:        75,
		ApproachWindow:           60 * time.Second,
		ApproachMinClosingMeters: 150,
		OriginRadiusMeters:       150,
		MinSatellites:            4,
		MaxPlausibleSpeedKmh:     200,
		RejectNullIsland:         true,

		StationaryDisplacementMeters: 100,
	}
}

// Validate rejects non-positive thresholds
func (c Config) Validate() error {
	switch {
	case c.MovementSpeedKmh <= 0:
		return fmt.Errorf("movementSpeedKmh must be > 0, got %v", c.MovementSpeedKmh)
	case c.DwellDuration <= 0:
		return fmt.Errorf("dwellDuration must be > 0, got %v", c.DwellDuration)
	case c.DwellRadiusMeters <= 0:
		return fmt.Errorf("dwellRadiusMeters must be > 0, got %v", c.DwellRadiusMeters)
	case c.ApproachWindow <= 0:
		return fmt.Errorf("approachWindow must be > 0, got %v", c.ApproachWindow)
	case c.ApproachMinClosingMeters <= 0:
		return fmt.Errorf("approachMinClosingMeters must be > 0, got %v", c.ApproachMinClosingMeters)
	case c.OriginRadiusMeters <= 0:
		return fmt.Errorf("originRadiusMeters must be > 0, got %v", c.OriginRadiusMeters)
	case c.MinSatellites < 0:
		return fmt.Errorf("minSatellites must be >= 0, got %d", c.MinSatellites)
	case c.StationaryDisplacementMeters < 0:
		return fmt.Errorf("stationaryDisplacementMeters must be >= 0, got %v", c.StationaryDisplacementMeters)
	case c.MaxPlausibleSpeedKmh <= c.MovementSpeedKmh:
		return fmt.Errorf("maxPlausibleSpeedKmh must exceed movementSpeedKmh, got %v", c.MaxPlausibleSpeedKmh)
	}
	return nil
}
