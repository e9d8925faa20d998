package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/fleet-records-backend-go/internal/ingest"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// ErrNoOpener is returned when a file set has no stability or beacon file to open a session
var ErrNoOpener = errors.New("no stability or beacon file to open a session")

// SessionNamespace seeds the deterministic session IDs
var SessionNamespace = uuid.MustParse("6f1d3c1e-2b7a-4c59-9a8e-4f0e1f5b2d10")

// RejectReason classifies why a candidate session was not accepted
type RejectReason string

// RejectReason constants
const (
	ReasonBelowMinimum        RejectReason = "duration-below-minimum"
	ReasonAboveMaximum        RejectReason = "duration-above-maximum"
	ReasonMissingModality     RejectReason = "missing-modality"
	ReasonInsufficientSamples RejectReason = "insufficient-samples"
)

// Rejection is a terminal classification of a candidate session
type Rejection struct {
	Key       models.SessionKey `json:"key"`
	VehicleID string            `json:"vehicle_id"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Reason    RejectReason      `json:"reason"`
	Detail    string            `json:"detail"`
}

func (r Rejection) String() string {
	return fmt.Sprintf("%s: %s (%s)", r.Key, r.Reason, r.Detail)
}

// Result is the outcome of segmenting one vehicle's file set
type Result struct {
	Sessions   []models.Session    `json:"sessions"`
	Rejections []Rejection         `json:"rejections"`
	Duplicates []models.SessionKey `json:"duplicates"`
	Orphans    []ingest.FileInfo   `json:"orphans"` // GPS/CAN files no session absorbed
}

// Segmenter groups per-vehicle files into sessions
type Segmenter struct {
	policy Policy
	lookup KeyLookup
	logger *slog.Logger
}

// NewSegmenter creates a segmenter. lookup may be nil.
func NewSegmenter(policy Policy, lookup KeyLookup, logger *slog.Logger) (*Segmenter, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid segmentation policy: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{
		policy: policy,
		lookup: lookup,
		logger: logger.With("component", "segmenter"),
	}, nil
}

// Policy returns the active policy
func (s *Segmenter) Policy() Policy {
	return s.policy
}

// candidate is one group of opener files plus the files it absorbed
type candidate struct {
	start, end time.Time
	files      map[models.Modality][]ingest.FileInfo
}

func (c *candidate) add(f ingest.FileInfo) {
	c.files[f.Modality] = append(c.files[f.Modality], f)
}

func (c *candidate) samples(m models.Modality) int {
	n := 0
	for _, f := range c.files[m] {
		n += f.Samples
	}
	return n
}

// Segment assigns the files of one vehicle to sessions.
// Files of other vehicles are ignored.
func (s *Segmenter) Segment(ctx context.Context, vehicleID string, files []ingest.FileInfo) (Result, error) {
	var result Result

	byModality := make(map[models.Modality][]ingest.FileInfo)
	for _, f := range files {
		if f.VehicleID != vehicleID {
			continue
		}
		byModality[f.Modality] = append(byModality[f.Modality], f)
	}
	for m := range byModality {
		sort.SliceStable(byModality[m], func(i, j int) bool {
			return byModality[m][i].Start.Before(byModality[m][j].Start)
		})
	}

	candidates := s.groupOpeners(byModality)
	if len(candidates) == 0 {
		result.Orphans = append(result.Orphans, byModality[models.ModalityGPS]...)
		result.Orphans = append(result.Orphans, byModality[models.ModalityCAN]...)
		return result, fmt.Errorf("%w: vehicle %s", ErrNoOpener, vehicleID)
	}

	for _, m := range []models.Modality{models.ModalityGPS, models.ModalityCAN} {
		for _, f := range byModality[m] {
			if c := s.bestOverlap(candidates, f); c != nil {
				c.add(f)
				continue
			}
			result.Orphans = append(result.Orphans, f)
		}
	}

	seen := make(map[models.SessionKey]bool)
	sequence := make(map[string]int)
	for _, c := range candidates {
		day := c.start.Format("2006-01-02")
		sequence[day]++
		key := models.SessionKey{VehicleID: vehicleID, Start: c.start, Sequence: sequence[day]}

		if rejection, rejected := s.validate(key, c); rejected {
			s.logger.Info("session rejected", "key", key.String(), "reason", rejection.Reason, "detail", rejection.Detail)
			result.Rejections = append(result.Rejections, rejection)
			continue
		}

		if s.policy.SkipDuplicateSessions {
			dup, err := s.isDuplicate(ctx, key, seen)
			if err != nil {
				return result, err
			}
			if dup {
				s.logger.Debug("skipping duplicate session", "key", key.String())
				result.Duplicates = append(result.Duplicates, key)
				continue
			}
		}
		seen[key] = true

		result.Sessions = append(result.Sessions, s.build(key, c))
	}

	return result, nil
}

// groupOpeners merges stability and beacon files into candidates split on gaps
func (s *Segmenter) groupOpeners(byModality map[models.Modality][]ingest.FileInfo) []*candidate {
	var openers []ingest.FileInfo
	openers = append(openers, byModality[models.ModalityStability]...)
	openers = append(openers, byModality[models.ModalityBeacon]...)
	sort.SliceStable(openers, func(i, j int) bool {
		return openers[i].Start.Before(openers[j].Start)
	})

	var candidates []*candidate
	var current *candidate
	for _, f := range openers {
		if current == nil || f.Start.Sub(current.end) > s.policy.gap() {
			current = &candidate{
				start: f.Start,
				end:   f.End,
				files: make(map[models.Modality][]ingest.FileInfo),
			}
			candidates = append(candidates, current)
		}
		if f.End.After(current.end) {
			current.end = f.End
		}
		current.add(f)
	}
	return candidates
}

// bestOverlap picks the candidate whose tolerance-widened range overlaps f the most.
// Ties go to the earlier candidate.
func (s *Segmenter) bestOverlap(candidates []*candidate, f ingest.FileInfo) *candidate {
	tol := s.policy.tolerance()

	var best *candidate
	bestOverlap := time.Duration(-1)
	for _, c := range candidates {
		lo := c.start.Add(-tol)
		hi := c.end.Add(tol)
		if f.End.Before(lo) || f.Start.After(hi) {
			continue
		}
		overlap := minTime(hi, f.End).Sub(maxTime(lo, f.Start))
		if overlap > bestOverlap {
			best = c
			bestOverlap = overlap
		}
	}
	return best
}

// validate applies the policy to a candidate in a fixed order
func (s *Segmenter) validate(key models.SessionKey, c *candidate) (Rejection, bool) {
	reject := func(reason RejectReason, format string, args ...any) (Rejection, bool) {
		return Rejection{
			Key:       key,
			VehicleID: key.VehicleID,
			Start:     c.start,
			End:       c.end,
			Reason:    reason,
			Detail:    fmt.Sprintf(format, args...),
		}, true
	}

	duration := c.end.Sub(c.start)
	minDuration := time.Duration(s.policy.MinSessionDurationSeconds) * time.Second
	if duration <= 0 || duration < minDuration {
		return reject(ReasonBelowMinimum, "duration %s is below the minimum of %s", duration, minDuration)
	}
	if s.policy.MaxSessionDurationSeconds > 0 {
		maxDuration := time.Duration(s.policy.MaxSessionDurationSeconds) * time.Second
		if duration > maxDuration {
			return reject(ReasonAboveMaximum, "duration %s exceeds the maximum of %s", duration, maxDuration)
		}
	}

	for _, m := range models.Modalities {
		if s.policy.required(m) && len(c.files[m]) == 0 {
			return reject(ReasonMissingModality, "required modality %s has no file", m)
		}
	}

	for _, m := range models.Modalities {
		if !s.policy.required(m) {
			continue
		}
		floor := s.policy.MinSamplesPerModality[m]
		if n := c.samples(m); n < floor {
			return reject(ReasonInsufficientSamples, "modality %s has %d samples, minimum is %d", m, n, floor)
		}
	}

	return Rejection{}, false
}

func (s *Segmenter) isDuplicate(ctx context.Context, key models.SessionKey, seen map[models.SessionKey]bool) (bool, error) {
	if seen[key] {
		return true, nil
	}
	if s.lookup == nil {
		return false, nil
	}
	exists, err := s.lookup.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to look up session key %s: %w", key, err)
	}
	return exists, nil
}

func (s *Segmenter) build(key models.SessionKey, c *candidate) models.Session {
	session := models.Session{
		ID:           SessionID(key),
		VehicleID:    key.VehicleID,
		Sequence:     key.Sequence,
		StartTime:    c.start,
		EndTime:      c.end,
		Files:        make(map[models.Modality][]models.FileRef),
		SampleCounts: make(map[models.Modality]int),
		Valid:        true,
	}
	for m, files := range c.files {
		for _, f := range files {
			session.Files[m] = append(session.Files[m], f.Ref())
		}
		session.SampleCounts[m] = c.samples(m)
	}
	session.GPSMissing = !session.HasModality(models.ModalityGPS)
	session.BeaconMissing = !session.HasModality(models.ModalityBeacon)
	return session
}

// SessionID derives the deterministic ID of a session key
func SessionID(key models.SessionKey) string {
	return uuid.NewSHA1(SessionNamespace, []byte(key.String())).String()
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
