package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/fleet-records-backend-go/internal/analysis"
	"github.com/jengzang/fleet-records-backend-go/internal/geofence"
	"github.com/jengzang/fleet-records-backend-go/internal/ingest"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/segment"
)

// OutcomeStore persists one analyzed session. It reports false when the
// session key was already stored.
type OutcomeStore interface {
	Save(ctx context.Context, s models.Session, segments []models.StateSegment, events []models.StabilityEvent, track []models.GPSSample) (bool, error)
}

// GeofenceLoader supplies one snapshot per organization
type GeofenceLoader interface {
	Load(ctx context.Context, organizationID string) geofence.Snapshot
}

// ProcessingConfig controls a batch run
type ProcessingConfig struct {
	Workers             int
	DefaultOrganization string
	Fleet               map[string]string // Vehicle ID -> organization ID
	Ingest              ingest.Options
}

// SessionFailure is a session that could not be analyzed or stored
type SessionFailure struct {
	Key    string `json:"key"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// BatchReport is the synchronous summary of one Run
type BatchReport struct {
	Directory string    `json:"directory"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`

	Files   int                  `json:"files"`
	Skipped []ingest.SkippedFile `json:"skipped,omitempty"`
	Groups  int                  `json:"groups"`

	Accepted   int                 `json:"accepted"`
	Rejections []segment.Rejection `json:"rejections,omitempty"`
	Duplicates []models.SessionKey `json:"duplicates,omitempty"`
	Orphans    []string            `json:"orphans,omitempty"`

	Stored        int              `json:"stored"`
	AlreadyStored int              `json:"already_stored"` // Lost an insert race with another run
	Invalid       int              `json:"invalid"`
	Failures      []SessionFailure `json:"failures,omitempty"`

	Events           int                     `json:"events"`
	EventsBySeverity map[models.Severity]int `json:"events_by_severity"`
	Segments         int                     `json:"segments"`

	Geofences     map[string]geofence.Origin            `json:"geofences"`
	Parse         map[models.Modality]ingest.ParseStats `json:"parse"`
	AnalysisTimes []time.Duration                       `json:"-"`
	Progress      analysis.Progress                     `json:"progress"`
}

// Duration returns how long the batch took
func (r *BatchReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// RejectionsByReason counts rejections per reason
func (r *BatchReport) RejectionsByReason() map[segment.RejectReason]int {
	out := make(map[segment.RejectReason]int)
	for _, rej := range r.Rejections {
		out[rej.Reason]++
	}
	return out
}

// ProcessingService turns a directory of logger files into stored sessions
type ProcessingService struct {
	segmenter *segment.Segmenter
	engine    *analysis.Engine
	geofences GeofenceLoader
	store     OutcomeStore
	cfg       ProcessingConfig
	logger    *slog.Logger
}

// NewProcessingService wires the pipeline stages
func NewProcessingService(segmenter *segment.Segmenter, engine *analysis.Engine, geofences GeofenceLoader, store OutcomeStore, cfg ProcessingConfig, logger *slog.Logger) *ProcessingService {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessingService{
		segmenter: segmenter,
		engine:    engine,
		geofences: geofences,
		store:     store,
		cfg:       cfg,
		logger:    logger.With("component", "processing"),
	}
}

// result travels from a worker to the writer
type result struct {
	session models.Session
	outcome analysis.SessionOutcome
	err     error
}

// Run scans dir, segments each vehicle-day, analyzes sessions on a bounded
// worker pool and hands outcomes to a single writer. Per-session failures are
// recorded in the report; only scan errors and cancellation fail the run.
func (s *ProcessingService) Run(ctx context.Context, dir string) (*BatchReport, error) {
	report := &BatchReport{
		Directory:        dir,
		Started:          time.Now(),
		EventsBySeverity: make(map[models.Severity]int),
		Geofences:        make(map[string]geofence.Origin),
		Parse:            make(map[models.Modality]ingest.ParseStats),
	}

	catalog, err := ingest.Scan(ctx, dir, s.cfg.Ingest)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	report.Files = len(catalog.Files)
	report.Skipped = catalog.Skipped

	sessions, err := s.segment(ctx, catalog, report)
	if err != nil {
		return nil, err
	}
	report.Accepted = len(sessions)

	snapshots := s.loadGeofences(ctx, sessions, report)
	progress := analysis.NewProgressTracker(len(sessions))

	results := make(chan result, s.cfg.Workers)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.write(ctx, results, report, progress)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, session := range sessions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := s.analyze(session, snapshots[session.OrganizationID])
			select {
			case results <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	waitErr := g.Wait()
	close(results)
	<-writerDone

	report.Finished = time.Now()
	report.Progress = progress.Snapshot()
	s.logger.Info("batch finished",
		"dir", dir,
		"files", report.Files,
		"accepted", report.Accepted,
		"rejected", len(report.Rejections),
		"duplicates", len(report.Duplicates),
		"stored", report.Stored,
		"invalid", report.Invalid,
		"failed", len(report.Failures),
		"events", report.Events,
		"duration", report.Duration(),
	)

	if err := cmp.Or(waitErr, ctx.Err()); err != nil {
		return report, fmt.Errorf("batch interrupted: %w", err)
	}
	return report, nil
}

// segment groups the catalog per vehicle-day and assigns organizations
func (s *ProcessingService) segment(ctx context.Context, catalog *ingest.Catalog, report *BatchReport) ([]models.Session, error) {
	keys, groups := catalog.Groups()
	report.Groups = len(keys)

	var sessions []models.Session
	for _, key := range keys {
		res, err := s.segmenter.Segment(ctx, key.VehicleID, groups[key])
		if errors.Is(err, segment.ErrNoOpener) {
			s.logger.Warn("no stability or beacon files for vehicle-day", "vehicle", key.VehicleID, "day", key.Day)
			for _, f := range res.Orphans {
				report.Orphans = append(report.Orphans, f.Path)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to segment %s/%s: %w", key.VehicleID, key.Day, err)
		}

		report.Rejections = append(report.Rejections, res.Rejections...)
		report.Duplicates = append(report.Duplicates, res.Duplicates...)
		for _, f := range res.Orphans {
			report.Orphans = append(report.Orphans, f.Path)
		}
		for _, session := range res.Sessions {
			session.OrganizationID = s.organization(session.VehicleID)
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (s *ProcessingService) organization(vehicleID string) string {
	if org, ok := s.cfg.Fleet[vehicleID]; ok {
		return org
	}
	return s.cfg.DefaultOrganization
}

// loadGeofences fetches one snapshot per organization before any worker starts
func (s *ProcessingService) loadGeofences(ctx context.Context, sessions []models.Session, report *BatchReport) map[string]geofence.Snapshot {
	var orgs []string
	for _, session := range sessions {
		if !slices.Contains(orgs, session.OrganizationID) {
			orgs = append(orgs, session.OrganizationID)
		}
	}

	snapshots := make(map[string]geofence.Snapshot, len(orgs))
	for _, org := range orgs {
		var snap geofence.Snapshot
		if s.geofences != nil {
			snap = s.geofences.Load(ctx, org)
		} else {
			snap = geofence.Snapshot{OrganizationID: org, Origin: geofence.OriginNone}
		}
		snapshots[org] = snap
		report.Geofences[org] = snap.Origin
	}
	return snapshots
}

// analyze loads a session's samples and runs the engine. Never panics the pool.
func (s *ProcessingService) analyze(session models.Session, snap geofence.Snapshot) (res result) {
	res.session = session
	defer func() {
		if p := recover(); p != nil {
			res.err = fmt.Errorf("analysis panicked: %v", p)
		}
	}()

	bundle, err := ingest.LoadBundle(session.Files, s.cfg.Ingest)
	if err != nil {
		// Partial bundles are still analyzed; the failing files are logged
		s.logger.Warn("some session files could not be read", "session", session.Key().String(), "error", err)
	}
	res.outcome, res.err = s.engine.Analyze(analysis.SessionInput{
		Session:   session,
		Bundle:    bundle,
		Geofences: snap,
	})
	return res
}

// write is the single persistence writer. It owns the report while workers run.
func (s *ProcessingService) write(ctx context.Context, results <-chan result, report *BatchReport, progress *analysis.ProgressTracker) {
	for res := range results {
		key := res.session.Key().String()
		if res.err != nil {
			s.logger.Error("session analysis failed", "session", key, "error", res.err)
			report.Failures = append(report.Failures, SessionFailure{Key: key, Stage: "analyze", Reason: res.err.Error()})
			progress.Done(true)
			continue
		}

		out := res.outcome
		for m, st := range out.Parse {
			agg := report.Parse[m]
			agg.Add(st)
			report.Parse[m] = agg
		}
		report.AnalysisTimes = append(report.AnalysisTimes, out.Elapsed)

		inserted, err := s.store.Save(ctx, out.Session, out.Segments, out.Events, out.Track)
		if err != nil {
			s.logger.Error("failed to store session", "session", key, "error", err)
			report.Failures = append(report.Failures, SessionFailure{Key: key, Stage: "store", Reason: err.Error()})
			progress.Done(true)
			continue
		}
		progress.Done(false)
		if !inserted {
			report.AlreadyStored++
			continue
		}

		report.Stored++
		if !out.Session.Valid {
			report.Invalid++
			s.logger.Warn("session stored as invalid", "session", key, "reason", out.Session.InvalidReason)
		}
		report.Segments += len(out.Segments)
		report.Events += len(out.Events)
		for _, e := range out.Events {
			report.EventsBySeverity[e.Severity]++
		}
	}
}
