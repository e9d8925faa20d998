package kpi

import (
	"fmt"
	"slices"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/spatial"
)

// Config holds the aggregation parameters
type Config struct {
	MaxJumpMeters float64 `yaml:"maxJumpMeters" json:"max_jump_meters"` // Consecutive fixes further apart are corrupt
}

// DefaultConfig rejects jumps above 2 km
func DefaultConfig() Config {
	return Config{MaxJumpMeters: 2000}
}

func (c Config) Validate() error {
	if c.MaxJumpMeters <= 0 {
		return fmt.Errorf("maxJumpMeters must be > 0, got %v", c.MaxJumpMeters)
	}
	return nil
}

// Filter selects sessions. Empty fields match everything; the range is [From, To).
type Filter struct {
	VehicleIDs     []string
	OrganizationID string
	From           time.Time
	To             time.Time
}

// FromModel converts the query filter (unix seconds) into a Filter
func FromModel(f models.KPIFilter) Filter {
	out := Filter{VehicleIDs: f.VehicleIDs, OrganizationID: f.OrganizationID}
	if f.StartTime > 0 {
		out.From = time.Unix(f.StartTime, 0).UTC()
	}
	if f.EndTime > 0 {
		out.To = time.Unix(f.EndTime, 0).UTC()
	}
	return out
}

func (f Filter) matchSession(s models.Session) bool {
	if len(f.VehicleIDs) > 0 && !slices.Contains(f.VehicleIDs, s.VehicleID) {
		return false
	}
	if f.OrganizationID != "" && s.OrganizationID != f.OrganizationID {
		return false
	}
	if !f.From.IsZero() && !s.EndTime.After(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.StartTime.Before(f.To) {
		return false
	}
	return true
}

func (f Filter) inRange(t time.Time) bool {
	return (f.From.IsZero() || !t.Before(f.From)) && (f.To.IsZero() || t.Before(f.To))
}

// clip returns the part of [start, end) inside the filter range
func (f Filter) clip(start, end time.Time) (time.Time, time.Time) {
	if !f.From.IsZero() && start.Before(f.From) {
		start = f.From
	}
	if !f.To.IsZero() && end.After(f.To) {
		end = f.To
	}
	return start, end
}

// Input is the already-computed per-session output to reduce
type Input struct {
	Sessions []models.Session
	Segments []models.StateSegment
	Events   []models.StabilityEvent
	Tracks   map[string][]models.GPSSample // By session ID, time-ordered
}

// Aggregate reduces sessions, segments, events and tracks into a KPI summary.
// It performs no classification of its own.
func Aggregate(in Input, f Filter, cfg Config) (models.KPISummary, error) {
	if err := cfg.Validate(); err != nil {
		return models.KPISummary{}, fmt.Errorf("invalid kpi config: %w", err)
	}

	summary := models.KPISummary{
		From:             f.From,
		To:               f.To,
		DurationByState:  make(map[models.OperationalState]time.Duration),
		SecondsByState:   make(map[string]float64),
		EventsBySeverity: make(map[models.Severity]int),
	}
	for _, st := range models.OperationalStates {
		summary.DurationByState[st] = 0
	}
	for _, sev := range models.Severities {
		summary.EventsBySeverity[sev] = 0
	}

	matched := make(map[string]bool)
	vehicles := make(map[string]struct{})
	for _, s := range in.Sessions {
		if !s.Valid || !f.matchSession(s) {
			continue
		}
		matched[s.ID] = true
		vehicles[s.VehicleID] = struct{}{}
		summary.SessionCount++

		meters, rejected := TrackDistance(inRange(in.Tracks[s.ID], f), cfg.MaxJumpMeters)
		summary.DistanceKm += meters / 1000
		summary.RejectedPairs += rejected
	}

	for _, seg := range in.Segments {
		if !matched[seg.SessionID] {
			continue
		}
		start, end := f.clip(seg.StartTime, seg.EndTime)
		if !end.After(start) {
			continue
		}
		d := end.Sub(start)
		summary.DurationByState[seg.State] += d
		summary.TotalDuration += d
		switch seg.State {
		case models.StateOnIncident:
			summary.IncidentCount++
		case models.StateEmergencyDeparture:
			summary.EmergencyCount++
		}
	}

	for _, e := range in.Events {
		if !matched[e.SessionID] || !f.inRange(e.Timestamp) {
			continue
		}
		summary.EventCount++
		summary.EventsBySeverity[e.Severity]++
	}

	for st, d := range summary.DurationByState {
		summary.SecondsByState[st.String()] = d.Seconds()
	}
	summary.TotalSeconds = summary.TotalDuration.Seconds()
	summary.VehicleIDs = make([]string, 0, len(vehicles))
	for v := range vehicles {
		summary.VehicleIDs = append(summary.VehicleIDs, v)
	}
	slices.Sort(summary.VehicleIDs)
	return summary, nil
}

func inRange(fixes []models.GPSSample, f Filter) []models.GPSSample {
	out := make([]models.GPSSample, 0, len(fixes))
	for _, fix := range fixes {
		if f.inRange(fix.Timestamp) {
			out = append(out, fix)
		}
	}
	return out
}

// TrackDistance sums Haversine distances between consecutive valid fixes.
// Pairs further apart than maxJump are skipped and counted as rejected.
func TrackDistance(fixes []models.GPSSample, maxJump float64) (float64, int) {
	var (
		total    float64
		rejected int
		prev     *models.GPSSample
	)
	for i := range fixes {
		f := &fixes[i]
		if !f.HasFix() {
			continue
		}
		if prev != nil {
			d := spatial.Distance(prev.Point(), f.Point())
			if d > maxJump {
				rejected++
			} else {
				total += d
			}
		}
		prev = f
	}
	return total, rejected
}
