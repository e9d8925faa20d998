package models

import (
	"fmt"
	"time"
)

// SessionKey identifies a session independently of its storage ID
type SessionKey struct {
	VehicleID string    `json:"vehicle_id"`
	Start     time.Time `json:"start"`
	Sequence  int       `json:"sequence"`
}

// String renders the key in a stable form, used for deterministic IDs
func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%d/%d", k.VehicleID, k.Start.UTC().UnixMilli(), k.Sequence)
}

// FileRef points at one source file absorbed into a session
type FileRef struct {
	Path     string    `json:"path"`
	Modality Modality  `json:"modality"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Samples  int       `json:"samples"`
}

// Session is one vehicle's continuous operational period
type Session struct {
	ID             string `json:"id" db:"id"`
	VehicleID      string `json:"vehicle_id" db:"vehicle_id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Sequence       int    `json:"sequence" db:"sequence"`

	StartTime time.Time `json:"start_time" db:"start_ms"`
	EndTime   time.Time `json:"end_time" db:"end_ms"`

	// Source files per modality. GPS and beacon may be empty.
	Files        map[Modality][]FileRef `json:"files,omitempty"`
	SampleCounts map[Modality]int       `json:"sample_counts,omitempty"`

	GPSMissing    bool `json:"gps_missing" db:"gps_missing"`
	BeaconMissing bool `json:"beacon_missing" db:"beacon_missing"`

	Valid         bool   `json:"valid" db:"valid"`
	InvalidReason string `json:"invalid_reason,omitempty" db:"invalid_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Key returns the idempotency key of the session
func (s Session) Key() SessionKey {
	return SessionKey{VehicleID: s.VehicleID, Start: s.StartTime, Sequence: s.Sequence}
}

// Duration returns end - start
func (s Session) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Contains reports whether t lies inside [start, end]
func (s Session) Contains(t time.Time) bool {
	return !t.Before(s.StartTime) && !t.After(s.EndTime)
}

// HasModality reports whether at least one file of the modality was absorbed
func (s Session) HasModality(m Modality) bool {
	return len(s.Files[m]) > 0
}

// Invalidated returns a copy of the session flagged invalid
func (s Session) Invalidated(reason string) Session {
	s.Valid = false
	s.InvalidReason = reason
	return s
}
