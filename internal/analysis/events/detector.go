package events

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// eventNamespace seeds the deterministic event IDs
var eventNamespace = uuid.MustParse("b3a7f0c2-51d4-4e8e-8c6a-2f9d7e41a0c5")

// Thresholds are the upper SI bounds of each severity tier (exclusive)
type Thresholds struct {
	Critical float64 `yaml:"critical" json:"critical"`
	Grave    float64 `yaml:"grave" json:"grave"`
	Moderate float64 `yaml:"moderate" json:"moderate"`
	Light    float64 `yaml:"light" json:"light"`
}

// Classify returns the tier of a stability index, false when SI is at or above Light
func (t Thresholds) Classify(si float64) (models.Severity, bool) {
	switch {
	case math.IsNaN(si):
		return "", false
	case si < t.Critical:
		return models.SeverityCritical, true
	case si < t.Grave:
		return models.SeverityGrave, true
	case si < t.Moderate:
		return models.SeverityModerate, true
	case si < t.Light:
		return models.SeverityLight, true
	}
	return "", false
}

// Config holds the detector parameters
type Config struct {
	Thresholds      Thresholds    `yaml:"thresholds" json:"thresholds"`
	ReleaseMargin   float64       `yaml:"releaseMargin" json:"release_margin"`     // SI must reach Light+margin to close a run
	MaxSampleGap    time.Duration `yaml:"maxSampleGap" json:"max_sample_gap"`       // Larger gaps close a run
	GeotagTolerance time.Duration `yaml:"geotagTolerance" json:"geotag_tolerance"` // Max distance in time to a GPS fix
}

// DefaultConfig returns the default detector parameters
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			Critical: 0.10,
			Grave:    0.20,
			Moderate: 0.35,
			Light:    0.50,
		},
		ReleaseMargin:   0,
		MaxSampleGap:    2 * time.Second,
		GeotagTolerance: 5000 * time.Millisecond,
	}
}

// Validate checks that tiers are ordered and inside [0, 1]
func (c Config) Validate() error {
	t := c.Thresholds
	if !(0 <= t.Critical && t.Critical <= t.Grave && t.Grave <= t.Moderate && t.Moderate <= t.Light && t.Light <= 1) {
		return fmt.Errorf("thresholds must satisfy 0 <= critical <= grave <= moderate <= light <= 1, got %+v", t)
	}
	if c.ReleaseMargin < 0 {
		return fmt.Errorf("releaseMargin must be >= 0, got %v", c.ReleaseMargin)
	}
	if c.MaxSampleGap <= 0 {
		return fmt.Errorf("maxSampleGap must be > 0, got %v", c.MaxSampleGap)
	}
	if c.GeotagTolerance < 0 {
		return fmt.Errorf("geotagTolerance must be >= 0, got %v", c.GeotagTolerance)
	}
	return nil
}

// Summary is what one detection pass saw
type Summary struct {
	Scanned     int                     `json:"scanned"`
	OutOfRange  int                     `json:"out_of_range"` // Samples outside the session range
	Events      int                     `json:"events"`
	BySeverity  map[models.Severity]int `json:"by_severity"`
	Geotagged   int                     `json:"geotagged"`
	Ungeotagged int                     `json:"ungeotagged"`
}

// Detector turns a session's stability stream into events
type Detector struct {
	cfg Config
}

// NewDetector creates a detector
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event detector config: %w", err)
	}
	return &Detector{cfg: cfg}, nil
}

// run accumulates one sequence of below-threshold samples
type run struct {
	first    models.StabilitySample
	worst    models.StabilitySample
	last     time.Time
	severity models.Severity
	count    int
}

// Detect scans samples (time-ordered) and emits one event per run of
// below-threshold samples. fixes are used for geotagging and may be empty.
func (d *Detector) Detect(session models.Session, samples []models.StabilitySample, fixes []models.GPSSample) ([]models.StabilityEvent, Summary) {
	summary := Summary{BySeverity: make(map[models.Severity]int)}
	locator := newLocator(fixes, d.cfg.GeotagTolerance)

	var events []models.StabilityEvent
	var current *run
	var lastSeen time.Time

	closeRun := func() {
		if current == nil {
			return
		}
		event := d.emit(session, current, len(events)+1, locator)
		events = append(events, event)
		summary.Events++
		summary.BySeverity[event.Severity]++
		if event.Geotagged() {
			summary.Geotagged++
		} else {
			summary.Ungeotagged++
		}
		current = nil
	}

	for _, sample := range samples {
		if !session.Contains(sample.Timestamp) {
			summary.OutOfRange++
			continue
		}
		summary.Scanned++

		if current != nil && sample.Timestamp.Sub(lastSeen) > d.cfg.MaxSampleGap {
			closeRun()
		}
		lastSeen = sample.Timestamp

		severity, below := d.cfg.Thresholds.Classify(sample.SI)
		if !below {
			if current != nil && (math.IsNaN(sample.SI) || sample.SI >= d.cfg.Thresholds.Light+d.cfg.ReleaseMargin) {
				closeRun()
			}
			continue
		}

		if current == nil {
			current = &run{first: sample, worst: sample, severity: severity}
		}
		current.count++
		current.last = sample.Timestamp
		current.severity = current.severity.Worse(severity)
		if sample.SI < current.worst.SI {
			current.worst = sample
		}
	}
	closeRun()

	return events, summary
}

func (d *Detector) emit(session models.Session, r *run, ordinal int, locator *locator) models.StabilityEvent {
	event := models.StabilityEvent{
		ID:             EventID(session.ID, r.first.Timestamp, ordinal),
		SessionID:      session.ID,
		VehicleID:      session.VehicleID,
		Timestamp:      r.first.Timestamp,
		EndTime:        r.last,
		Severity:       r.severity,
		StabilityIndex: r.worst.SI,
		SampleCount:    r.count,
		Roll:           r.worst.Roll,
		Pitch:          r.worst.Pitch,
		AccMag:         r.worst.AccMag,
	}
	if fix, ok := locator.nearest(r.first.Timestamp); ok {
		p := fix.Point()
		speed := fix.SpeedKmh
		event.Location = &p
		event.SpeedKmh = &speed
	}
	return event
}

// EventID derives the deterministic ID of the ordinal-th event (1-based) of a
// session. Runs may share a start timestamp, so the ordinal is part of the seed.
func EventID(sessionID string, ts time.Time, ordinal int) string {
	seed := sessionID + "/" + strconv.FormatInt(ts.UnixMilli(), 10) + "/" + strconv.Itoa(ordinal)
	return uuid.NewSHA1(eventNamespace, []byte(seed)).String()
}

// locator finds the GPS fix closest in time
type locator struct {
	fixes     []models.GPSSample
	tolerance time.Duration
}

func newLocator(fixes []models.GPSSample, tolerance time.Duration) *locator {
	valid := make([]models.GPSSample, 0, len(fixes))
	for _, f := range fixes {
		if f.HasFix() {
			valid = append(valid, f)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Timestamp.Before(valid[j].Timestamp)
	})
	return &locator{fixes: valid, tolerance: tolerance}
}

func (l *locator) nearest(ts time.Time) (models.GPSSample, bool) {
	if len(l.fixes) == 0 {
		return models.GPSSample{}, false
	}

	i := sort.Search(len(l.fixes), func(i int) bool {
		return !l.fixes[i].Timestamp.Before(ts)
	})

	best := -1
	bestDelta := time.Duration(math.MaxInt64)
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(l.fixes) {
			continue
		}
		delta := l.fixes[j].Timestamp.Sub(ts)
		if delta < 0 {
			delta = -delta
		}
		if delta < bestDelta {
			best = j
			bestDelta = delta
		}
	}
	if best < 0 || bestDelta > l.tolerance {
		return models.GPSSample{}, false
	}
	return l.fixes[best], true
}
