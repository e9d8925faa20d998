package states

import (
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/geofence"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/spatial"
)

// ErrCoverage is returned when segments do not exactly tile the session range
var ErrCoverage = errors.New("state segments do not cover the session")

// Mode tells which signals drove a classification
type Mode string

// Mode constants
const (
	ModeGPS      Mode = "gps"      // Geofences plus GPS, beacon when informative
	ModeGPSOnly  Mode = "gps-only" // No geofences; synthetic origin station
	ModeBeacon   Mode = "beacon"   // No usable GPS; informative beacon codes
	ModeFallback Mode = "fallback" // Neither GPS nor informative beacon
)

// Input is everything the classifier needs for one session
type Input struct {
	Session   models.Session
	GPS       []models.GPSSample    // Time-ordered
	Beacon    []models.BeaconSample // Time-ordered
	Geofences *geofence.Index       // May be nil or empty
}

// Summary is what one classification pass did
type Summary struct {
	Mode              Mode           `json:"mode"`
	Fixes             FilterStats    `json:"fixes"`
	BeaconSamples     int            `json:"beacon_samples"`
	BeaconInformative int            `json:"beacon_informative"`
	SyntheticOrigin   bool           `json:"synthetic_origin"`
	Displacement      float64        `json:"displacement_meters"` // Furthest accepted fix from the first one
	Stationary        bool           `json:"stationary"`
	InitialState      string         `json:"initial_state"`
	Transitions       int            `json:"transitions"`
	Signals           map[Signal]int `json:"signals"` // Signals that caused a transition
	Segments          int            `json:"segments"`
}

// Result is a session's state timeline
type Result struct {
	Segments []models.StateSegment
	Summary  Summary
}

// Classifier assigns operational states over a session
type Classifier struct {
	cfg   Config
	table TransitionTable
}

// NewClassifier creates a classifier. A nil table selects DefaultTransitions.
func NewClassifier(cfg Config, table TransitionTable) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state classifier config: %w", err)
	}
	if table == nil {
		table = DefaultTransitions()
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transition table: %w", err)
	}
	return &Classifier{cfg: cfg, table: table}, nil
}

// change is the moment the machine entered a state
type change struct {
	at       time.Time
	state    models.OperationalState
	source   models.SegmentSource
	location *models.GeoPoint
}

// Classify builds the state timeline of a session. On ErrCoverage the
// segments are still returned for inspection and must not be persisted.
func (c *Classifier) Classify(in Input) (Result, error) {
	session := in.Session
	if !session.EndTime.After(session.StartTime) {
		return Result{}, fmt.Errorf("%w: empty session range %s - %s", ErrCoverage, session.StartTime, session.EndTime)
	}

	summary := Summary{Signals: make(map[Signal]int)}
	beacon := beaconInRange(session, in.Beacon)
	summary.BeaconSamples = len(beacon)
	for _, b := range beacon {
		if b.Code.Informative() {
			summary.BeaconInformative++
		}
	}

	fixes, stats := filterFixes(session, in.GPS, c.cfg)
	summary.Fixes = stats

	var changes []change
	if len(fixes) == 0 {
		changes = c.classifyBeacon(session, beacon, &summary)
	} else {
		var err error
		changes, err = c.classifyGPS(in, fixes, beacon, &summary)
		if err != nil {
			return Result{}, err
		}
	}

	segments := buildSegments(session, changes, fixes)
	summary.Segments = len(segments)
	if len(segments) > 0 {
		summary.InitialState = segments[0].StateName()
	}

	result := Result{Segments: segments, Summary: summary}
	if err := ValidateCoverage(session, segments); err != nil {
		return result, err
	}
	return result, nil
}

// beaconInRange keeps the beacon samples up to the session end, including
// those before the start which seed the initial code
func beaconInRange(session models.Session, samples []models.BeaconSample) []models.BeaconSample {
	out := make([]models.BeaconSample, 0, len(samples))
	for _, b := range samples {
		if b.Timestamp.After(session.EndTime) {
			break
		}
		out = append(out, b)
	}
	return out
}

// classifyBeacon maps informative beacon codes straight to states
func (c *Classifier) classifyBeacon(session models.Session, beacon []models.BeaconSample, summary *Summary) []change {
	state := models.StateAtStation
	source := models.SourceFallback
	summary.Mode = ModeFallback

	i := 0
	for ; i < len(beacon) && !beacon[i].Timestamp.After(session.StartTime); i++ {
		if s, ok := beaconStates[beacon[i].Code]; ok {
			state, source = s, models.SourceBeacon
		}
	}
	changes := []change{{at: session.StartTime, state: state, source: source}}
	if source == models.SourceBeacon {
		summary.Mode = ModeBeacon
	}

	var last models.BeaconCode = -1
	if i > 0 {
		last = beacon[i-1].Code
	}
	for ; i < len(beacon); i++ {
		b := beacon[i]
		if b.Code == last {
			continue
		}
		last = b.Code
		next, ok := beaconStates[b.Code]
		if !ok || next == state {
			continue
		}
		state = next
		summary.Mode = ModeBeacon
		summary.Transitions++
		changes = append(changes, change{at: b.Timestamp, state: state, source: models.SourceBeacon})
	}
	return changes
}

// classifyGPS runs the transition table over fixes and beacon codes in time order
func (c *Classifier) classifyGPS(in Input, fixes []models.GPSSample, beacon []models.BeaconSample, summary *Summary) ([]change, error) {
	fences := in.Geofences
	first := fixes[0]
	summary.Mode = ModeGPS

	summary.Displacement = displacement(fixes)
	if summary.BeaconInformative == 0 && summary.Displacement < c.cfg.StationaryDisplacementMeters {
		return parked(first, fences, in.Session.StartTime, summary), nil
	}

	if !fences.HasStations() {
		var err error
		origin := geofence.OriginStation(first.Point(), c.cfg.OriginRadiusMeters, in.Session.OrganizationID)
		if fences, err = fences.WithStation(origin); err != nil {
			return nil, fmt.Errorf("failed to build origin station: %w", err)
		}
		summary.Mode = ModeGPSOnly
		summary.SyntheticOrigin = true
	}

	t := &tracker{
		cfg:     c.cfg,
		table:   c.table,
		fences:  fences,
		summary: summary,
	}

	// Beacon codes up to the first fix seed the initial state
	j := 0
	for ; j < len(beacon) && !beacon[j].Timestamp.After(first.Timestamp); j++ {
		t.lastBeacon, t.hasBeacon = beacon[j].Code, true
	}
	t.start(in.Session.StartTime, first)

	i := 1
	for i < len(fixes) || j < len(beacon) {
		if j < len(beacon) && (i >= len(fixes) || !beacon[j].Timestamp.After(fixes[i].Timestamp)) {
			t.onBeacon(beacon[j])
			j++
			continue
		}
		t.onFix(fixes[i])
		i++
	}
	return t.changes, nil
}

// displacement is the largest distance of any fix from the first one
func displacement(fixes []models.GPSSample) float64 {
	origin := fixes[0].Point()
	var furthest float64
	for _, f := range fixes[1:] {
		if d := spatial.Distance(origin, f.Point()); d > furthest {
			furthest = d
		}
	}
	return furthest
}

// parked covers a session whose vehicle never left its starting point with
// a single segment: Workshop when it stood in a workshop, AtStation otherwise
func parked(first models.GPSSample, fences *geofence.Index, start time.Time, summary *Summary) []change {
	p := first.Point()
	state := models.StateAtStation
	if _, ok := fences.WorkshopAt(p); ok {
		state = models.StateWorkshop
	}
	if !fences.HasStations() {
		summary.Mode = ModeGPSOnly
	}
	summary.Stationary = true
	return []change{{at: start, state: state, source: models.SourceGPS, location: &p}}
}

// dwellAnchor is where a stationary period began
type dwellAnchor struct {
	point models.GeoPoint
	since time.Time
	fired bool
}

// approachSample is the distance to the nearest station at one fix
type approachSample struct {
	at       time.Time
	distance float64
}

// tracker holds the running state of one GPS classification
type tracker struct {
	cfg     Config
	table   TransitionTable
	fences  *geofence.Index
	summary *Summary

	state   models.OperationalState
	changes []change

	last          models.GPSSample
	lastInStation bool
	dwell         *dwellAnchor
	incident      *models.GeoPoint
	history       []approachSample

	lastBeacon models.BeaconCode
	hasBeacon  bool
}

func (t *tracker) moving(f models.GPSSample) bool {
	return f.SpeedKmh >= t.cfg.MovementSpeedKmh
}

// start picks the initial state from the first fix
func (t *tracker) start(at time.Time, first models.GPSSample) {
	p := first.Point()
	_, inStation := t.fences.StationAt(p)
	_, inWorkshop := t.fences.WorkshopAt(p)
	source := models.SourceGPS

	switch {
	case inWorkshop:
		t.state = models.StateWorkshop
	case inStation:
		t.state = models.StateAtStation
	case t.hasBeacon && t.lastBeacon.Informative():
		t.state = beaconStates[t.lastBeacon]
		source = models.SourceBeacon
	case !t.moving(first):
		t.state = models.StateOnIncident
	case t.hasBeacon && t.lastBeacon == models.BeaconOff:
		t.state = models.StateReturning
	default:
		t.state = models.StateEmergencyDeparture
	}
	if t.state == models.StateOnIncident {
		t.incident = &p
	}

	t.changes = append(t.changes, change{at: at, state: t.state, source: source, location: &p})
	t.observe(first, inStation)
}

// observe updates the dwell anchor and approach history without emitting signals
func (t *tracker) observe(f models.GPSSample, inStation bool) {
	p := f.Point()
	if t.moving(f) {
		t.dwell = nil
	} else if t.dwell == nil || spatial.Distance(t.dwell.point, p) > t.cfg.DwellRadiusMeters {
		t.dwell = &dwellAnchor{point: p, since: f.Timestamp}
	}

	if _, d, ok := t.fences.NearestStation(p); ok {
		t.history = append(t.history, approachSample{at: f.Timestamp, distance: d})
		horizon := f.Timestamp.Add(-2 * t.cfg.ApproachWindow)
		k := 0
		for k < len(t.history) && t.history[k].at.Before(horizon) {
			k++
		}
		t.history = t.history[k:]
	}

	t.last = f
	t.lastInStation = inStation
}

// approaching reports whether the distance to the nearest station shrank
// by the closing threshold over the approach window
func (t *tracker) approaching(now time.Time) bool {
	n := len(t.history)
	if n < 2 {
		return false
	}
	current := t.history[n-1]
	cutoff := now.Add(-t.cfg.ApproachWindow)
	for k := n - 2; k >= 0; k-- {
		ref := t.history[k]
		if ref.at.After(cutoff) {
			continue
		}
		return ref.distance-current.distance >= t.cfg.ApproachMinClosingMeters
	}
	return false
}

func (t *tracker) onFix(f models.GPSSample) {
	p := f.Point()
	_, inStation := t.fences.StationAt(p)
	_, inWorkshop := t.fences.WorkshopAt(p)
	wasInStation := t.lastInStation
	t.observe(f, inStation)
	moving := t.moving(f)

	type candidate struct {
		signal Signal
		ok     bool
		at     models.GeoPoint
	}
	candidates := []candidate{
		{SignalEnteredStation, !wasInStation && inStation, p},
		{SignalLeftStation, t.state == models.StateAtStation && !inStation && moving, p},
		{SignalLeftWorkshop, t.state == models.StateWorkshop && !inWorkshop && moving, p},
		{SignalDwellAway, t.dwellElapsed(f.Timestamp) && !inStation, t.dwellPoint()},
		{SignalMotionResumed, t.state == models.StateOnIncident && moving && t.awayFromIncident(p), p},
		{SignalTowardStation, moving && t.approaching(f.Timestamp), p},
	}

	for _, cand := range candidates {
		if !cand.ok {
			continue
		}
		if t.apply(f.Timestamp, cand.signal, models.SourceGPS, cand.at) {
			if cand.signal == SignalDwellAway {
				t.dwell.fired = true
			}
			return
		}
	}
}

func (t *tracker) dwellElapsed(now time.Time) bool {
	return t.dwell != nil && !t.dwell.fired && now.Sub(t.dwell.since) >= t.cfg.DwellDuration
}

func (t *tracker) dwellPoint() models.GeoPoint {
	if t.dwell == nil {
		return t.last.Point()
	}
	return t.dwell.point
}

func (t *tracker) awayFromIncident(p models.GeoPoint) bool {
	return t.incident != nil && spatial.Distance(*t.incident, p) > t.cfg.DwellRadiusMeters
}

func (t *tracker) onBeacon(b models.BeaconSample) {
	changed := !t.hasBeacon || b.Code != t.lastBeacon
	t.lastBeacon, t.hasBeacon = b.Code, true
	if !changed {
		return
	}
	sig, ok := BeaconSignal(b.Code)
	if !ok {
		return
	}
	t.apply(b.Timestamp, sig, models.SourceBeacon, t.last.Point())
}

// apply moves the machine on sig and records the change
func (t *tracker) apply(at time.Time, sig Signal, source models.SegmentSource, loc models.GeoPoint) bool {
	next, ok := t.table.Next(t.state, sig)
	if !ok {
		return false
	}
	t.state = next
	if next == models.StateOnIncident {
		incident := loc
		t.incident = &incident
	}
	t.summary.Transitions++
	t.summary.Signals[sig]++
	t.changes = append(t.changes, change{at: at, state: next, source: source, location: &loc})
	return true
}
