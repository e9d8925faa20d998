package models

import (
	"strings"
	"time"
)

// Severity is the tier of a stability event
type Severity string

// Severity constants, mildest first
const (
	SeverityLight    Severity = "light"
	SeverityModerate Severity = "moderate"
	SeverityGrave    Severity = "grave"
	SeverityCritical Severity = "critical"
)

// Severities lists every tier, mildest first
var Severities = []Severity{SeverityLight, SeverityModerate, SeverityGrave, SeverityCritical}

// Rank orders severities; unknown values rank 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLight:
		return 1
	case SeverityModerate:
		return 2
	case SeverityGrave:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Worse returns the more severe of two tiers
func (s Severity) Worse(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// ParseSeverity parses a tier name (case-insensitive)
func ParseSeverity(v string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if s.Rank() == 0 {
		return "", false
	}
	return s, true
}

// StabilityEvent is one detected instability occurrence
type StabilityEvent struct {
	ID        string `json:"id" db:"id"`
	SessionID string `json:"session_id" db:"session_id"`
	VehicleID string `json:"vehicle_id" db:"vehicle_id"`

	Timestamp time.Time `json:"timestamp" db:"ts_ms"`
	EndTime   time.Time `json:"end_time" db:"end_ms"`
	Severity  Severity  `json:"severity" db:"severity"`

	StabilityIndex float64 `json:"stability_index" db:"stability_index"` // Lowest SI of the run
	SampleCount    int     `json:"sample_count" db:"sample_count"`

	// Telemetry at the worst sample
	Roll   float64 `json:"roll" db:"roll"`
	Pitch  float64 `json:"pitch" db:"pitch"`
	AccMag float64 `json:"acc_mag" db:"acc_mag"`

	// Nil when no GPS fix correlates within tolerance
	Location *GeoPoint `json:"location,omitempty"`
	SpeedKmh *float64  `json:"speed_kmh,omitempty" db:"speed_kmh"`
}

// Geotagged reports whether the event carries a location
func (e StabilityEvent) Geotagged() bool {
	return e.Location != nil
}
