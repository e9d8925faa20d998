package models

import "time"

// KPISummary is the aggregated view over a set of sessions
type KPISummary struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`

	SessionCount int      `json:"session_count"`
	VehicleIDs   []string `json:"vehicle_ids"`

	DurationByState map[OperationalState]time.Duration `json:"-"`
	SecondsByState  map[string]float64                 `json:"seconds_by_state"`
	TotalDuration   time.Duration                      `json:"-"`
	TotalSeconds    float64                            `json:"total_seconds"`

	DistanceKm    float64 `json:"distance_km"`
	RejectedPairs int     `json:"rejected_pairs"` // GPS point pairs discarded as corrupted

	EventCount       int              `json:"event_count"`
	EventsBySeverity map[Severity]int `json:"events_by_severity"`

	IncidentCount  int `json:"incident_count"`  // OnIncident segments
	EmergencyCount int `json:"emergency_count"` // EmergencyDeparture segments
}
