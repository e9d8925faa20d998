package models

import (
	"fmt"
	"time"
)

// OperationalState is the state code of a session moment
type OperationalState int

// OperationalState constants (codes 0..5)
const (
	StateWorkshop           OperationalState = 0
	StateAtStation          OperationalState = 1
	StateEmergencyDeparture OperationalState = 2
	StateOnIncident         OperationalState = 3
	StateConcluding         OperationalState = 4
	StateReturning          OperationalState = 5
)

// OperationalStates lists every state in code order
var OperationalStates = []OperationalState{
	StateWorkshop,
	StateAtStation,
	StateEmergencyDeparture,
	StateOnIncident,
	StateConcluding,
	StateReturning,
}

var stateNames = map[OperationalState]string{
	StateWorkshop:           "Workshop",
	StateAtStation:          "AtStation",
	StateEmergencyDeparture: "EmergencyDeparture",
	StateOnIncident:         "OnIncident",
	StateConcluding:         "Concluding",
	StateReturning:          "Returning",
}

func (s OperationalState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid reports whether s is one of the six states
func (s OperationalState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// ParseOperationalState accepts a state name
func ParseOperationalState(name string) (OperationalState, bool) {
	for code, n := range stateNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// SegmentSource tells how confident a segment's state assignment is
type SegmentSource string

// SegmentSource constants
const (
	SourceBeacon   SegmentSource = "beacon"   // Confirmed by an informative beacon code
	SourceGPS      SegmentSource = "gps"      // Inferred from position, speed and geofences
	SourceFallback SegmentSource = "fallback" // No usable GPS
)

// StateSegment is one contiguous span of a session spent in one state
type StateSegment struct {
	SessionID string           `json:"session_id" db:"session_id"`
	Ordinal   int              `json:"ordinal" db:"ordinal"`
	State     OperationalState `json:"state" db:"state"`
	Source    SegmentSource    `json:"source" db:"source"`

	StartTime time.Time `json:"start_time" db:"start_ms"`
	EndTime   time.Time `json:"end_time" db:"end_ms"`

	StartLocation *GeoPoint `json:"start_location,omitempty"`
	EndLocation   *GeoPoint `json:"end_location,omitempty"`
	DistanceKm    float64   `json:"distance_km" db:"distance_km"`
}

// Duration returns end - start
func (s StateSegment) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// StateName renders the state name next to its code
func (s StateSegment) StateName() string {
	return s.State.String()
}
