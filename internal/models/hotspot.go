package models

import "time"

// HotspotCluster is a spatial aggregation of geotagged stability events.
// Derived on demand, never stored authoritatively.
type HotspotCluster struct {
	Rank        int              `json:"rank"`
	Centroid    GeoPoint         `json:"centroid"`
	EventCount  int              `json:"event_count"`
	Histogram   map[Severity]int `json:"histogram"`
	Score       float64          `json:"score"` // Severity-weighted
	MaxSeverity Severity         `json:"max_severity"`

	SessionCount int      `json:"session_count"`
	VehicleIDs   []string `json:"vehicle_ids"`
	EventIDs     []string `json:"event_ids,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
