package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/analysis/events"
	"github.com/jengzang/fleet-records-backend-go/internal/analysis/states"
	"github.com/jengzang/fleet-records-backend-go/internal/geofence"
	"github.com/jengzang/fleet-records-backend-go/internal/ingest"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// SessionInput is everything needed to analyze one session
type SessionInput struct {
	Session   models.Session
	Bundle    *ingest.Bundle
	Geofences geofence.Snapshot
}

// SessionOutcome is the per-session result handed to the persistence writer.
// Stage summaries are returned here rather than reported through callbacks.
type SessionOutcome struct {
	Session  models.Session
	Events   []models.StabilityEvent
	Segments []models.StateSegment // Empty when the session was invalidated
	Track    []models.GPSSample     // Valid fixes inside the session

	Detector   events.Summary
	Classifier states.Summary
	Geofences  geofence.Origin
	Parse      map[models.Modality]ingest.ParseStats
	Elapsed    time.Duration
}

// Engine runs the per-session stages: event detection, then state classification
type Engine struct {
	detector   *events.Detector
	classifier *states.Classifier
	logger     *slog.Logger
}

// NewEngine creates an engine from configured stages
func NewEngine(detector *events.Detector, classifier *states.Classifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		detector:   detector,
		classifier: classifier,
		logger:     logger.With("component", "engine"),
	}
}

// NewEngineFromConfig builds both stages and the engine
func NewEngineFromConfig(ev events.Config, st states.Config, table states.TransitionTable, logger *slog.Logger) (*Engine, error) {
	detector, err := events.NewDetector(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to create event detector: %w", err)
	}
	classifier, err := states.NewClassifier(st, table)
	if err != nil {
		return nil, fmt.Errorf("failed to create state classifier: %w", err)
	}
	return NewEngine(detector, classifier, logger), nil
}

// Analyze runs every stage over one session. A coverage failure flags the
// session invalid and drops its segments; it is not returned as an error.
func (e *Engine) Analyze(in SessionInput) (SessionOutcome, error) {
	started := time.Now()
	session := in.Session
	bundle := in.Bundle
	if bundle == nil {
		bundle = &ingest.Bundle{}
	}

	out := SessionOutcome{
		Session:   session,
		Geofences: in.Geofences.Origin,
		Parse:     bundle.Stats,
	}

	out.Events, out.Detector = e.detector.Detect(session, bundle.Stability, bundle.GPS)

	res, err := e.classifier.Classify(states.Input{
		Session:   session,
		GPS:       bundle.GPS,
		Beacon:    bundle.Beacon,
		Geofences: in.Geofences.Index,
	})
	out.Classifier = res.Summary
	switch {
	case errors.Is(err, states.ErrCoverage):
		e.logger.Error("state timeline failed coverage check",
			"session", session.Key().String(), "error", err)
		out.Session = session.Invalidated(err.Error())
	case err != nil:
		return out, fmt.Errorf("failed to classify session %s: %w", session.Key(), err)
	default:
		out.Segments = res.Segments
	}

	out.Track = track(session, bundle.GPS)
	out.Elapsed = time.Since(started)
	return out, nil
}

func track(session models.Session, fixes []models.GPSSample) []models.GPSSample {
	out := make([]models.GPSSample, 0, len(fixes))
	for _, f := range fixes {
		if f.HasFix() && session.Contains(f.Timestamp) {
			out = append(out, f)
		}
	}
	return out
}

// Progress represents the progress of a processing batch
type Progress struct {
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Failed     int     `json:"failed"`
	Percent    float64 `json:"percent"`
	ETASeconds int     `json:"eta_seconds"`
	Message    string  `json:"message,omitempty"`
}

// ProgressTracker counts finished sessions and estimates the remaining time.
// Safe for concurrent use.
type ProgressTracker struct {
	mu        sync.Mutex
	total     int
	processed int
	failed    int
	started   time.Time
	now       func() time.Time
}

func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{total: total, started: time.Now(), now: time.Now}
}

// Done records one finished session
func (p *ProgressTracker) Done(failed bool) Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
	if failed {
		p.failed++
	}
	return p.snapshot()
}

func (p *ProgressTracker) Snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *ProgressTracker) snapshot() Progress {
	prog := Progress{Processed: p.processed, Total: p.total, Failed: p.failed}
	if p.total > 0 {
		prog.Percent = float64(p.processed) / float64(p.total) * 100.0
	}
	if p.processed > 0 && p.processed < p.total {
		elapsed := p.now().Sub(p.started).Seconds()
		prog.ETASeconds = int(elapsed / float64(p.processed) * float64(p.total-p.processed))
	}
	prog.Message = fmt.Sprintf("%d/%d sessions", p.processed, p.total)
	return prog
}
