package segment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/ingest"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

var day0 = time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

func file(m models.Modality, path string, startSec, endSec int, samples int) ingest.FileInfo {
	return ingest.FileInfo{
		Path:      path,
		Modality:  m,
		VehicleID: "DOBACK024",
		Day:       "2024-03-05",
		Start:     day0.Add(time.Duration(startSec) * time.Second),
		End:       day0.Add(time.Duration(endSec) * time.Second),
		Samples:   samples,
	}
}

func newSegmenter(t *testing.T, p Policy, lookup KeyLookup) *Segmenter {
	t.Helper()
	s, err := NewSegmenter(p, lookup, nil)
	if err != nil {
		t.Fatalf("new segmenter: %v", err)
	}
	return s
}

func TestGapSplitsIntoTwoSessions(t *testing.T) {
	p := DefaultPolicy()
	p.SessionGapSeconds = 300
	s := newSegmenter(t, p, nil)

	files := []ingest.FileInfo{
		file(models.ModalityStability, "s1", 0, 600, 600),
		file(models.ModalityStability, "s2", 1000, 1600, 600),
	}

	res, err := s.Segment(context.Background(), "DOBACK024", files)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(res.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d (rejections %v)", len(res.Sessions), res.Rejections)
	}
	if res.Sessions[0].Sequence != 1 || res.Sessions[1].Sequence != 2 {
		t.Fatalf("unexpected sequences %d, %d", res.Sessions[0].Sequence, res.Sessions[1].Sequence)
	}
	if !res.Sessions[0].GPSMissing {
		t.Fatalf("expected first session flagged GPS-missing")
	}
}

func TestGapWithinThresholdMerges(t *testing.T) {
	s := newSegmenter(t, DefaultPolicy(), nil)

	files := []ingest.FileInfo{
		file(models.ModalityStability, "s1", 0, 600, 600),
		file(models.ModalityBeacon, "b1", 10, 590, 30),
		file(models.ModalityStability, "s2", 800, 1200, 400),
	}

	res, err := s.Segment(context.Background(), "DOBACK024", files)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(res.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(res.Sessions))
	}
	got := res.Sessions[0]
	if !got.StartTime.Equal(day0) || got.Duration() != 1200*time.Second {
		t.Fatalf("unexpected range %v - %v", got.StartTime, got.EndTime)
	}
	if got.SampleCounts[models.ModalityStability] != 1000 || got.BeaconMissing {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestShortSessionRejected(t *testing.T) {
	p := DefaultPolicy()
	p.MinSessionDurationSeconds = 300
	s := newSegmenter(t, p, nil)

	res, err := s.Segment(context.Background(), "DOBACK024", []ingest.FileInfo{
		file(models.ModalityStability, "s1", 0, 250, 250),
	})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(res.Sessions) != 0 || len(res.Rejections) != 1 {
		t.Fatalf("expected a single rejection, got %+v", res)
	}
	if res.Rejections[0].Reason != ReasonBelowMinimum {
		t.Fatalf("expected %s, got %s", ReasonBelowMinimum, res.Rejections[0].Reason)
	}
	if res.Rejections[0].Detail == "" {
		t.Fatalf("expected a human-readable detail")
	}
}

func TestRejectionReasons(t *testing.T) {
	tests := []struct {
		name   string
		policy func(*Policy)
		files  []ingest.FileInfo
		want   RejectReason
	}{
		{
			name:   "above maximum",
			policy: func(p *Policy) { p.MaxSessionDurationSeconds = 600 },
			files:  []ingest.FileInfo{file(models.ModalityStability, "s", 0, 900, 900)},
			want:   ReasonAboveMaximum,
		},
		{
			name:   "gps required",
			policy: func(p *Policy) { p.AllowMissingGPS = false },
			files:  []ingest.FileInfo{file(models.ModalityStability, "s", 0, 900, 900)},
			want:   ReasonMissingModality,
		},
		{
			name:   "stability required",
			policy: func(p *Policy) {},
			files:  []ingest.FileInfo{file(models.ModalityBeacon, "b", 0, 900, 90)},
			want:   ReasonMissingModality,
		},
		{
			name: "insufficient samples",
			policy: func(p *Policy) {
				p.MinSamplesPerModality[models.ModalityStability] = 100
			},
			files: []ingest.FileInfo{file(models.ModalityStability, "s", 0, 900, 20)},
			want:  ReasonInsufficientSamples,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.policy(&p)
			s := newSegmenter(t, p, nil)

			res, err := s.Segment(context.Background(), "DOBACK024", tt.files)
			if err != nil {
				t.Fatalf("segment: %v", err)
			}
			if len(res.Rejections) != 1 || res.Rejections[0].Reason != tt.want {
				t.Fatalf("expected %s, got %+v", tt.want, res.Rejections)
			}
		})
	}
}

func TestGPSAbsorbedByLargestOverlap(t *testing.T) {
	s := newSegmenter(t, DefaultPolicy(), nil)

	files := []ingest.FileInfo{
		file(models.ModalityStability, "s1", 0, 600, 600),
		file(models.ModalityStability, "s2", 1200, 1800, 600),
		file(models.ModalityGPS, "g1", 500, 1300, 800),
		file(models.ModalityCAN, "c1", 1250, 1700, 450),
		file(models.ModalityGPS, "g-far", 9000, 9100, 100),
	}

	res, err := s.Segment(context.Background(), "DOBACK024", files)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(res.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(res.Sessions))
	}
	first, second := res.Sessions[0], res.Sessions[1]
	// g1 overlaps [-300, 900] by 400s and [900, 2100] by 400s; ties go to the earlier session.
	if len(first.Files[models.ModalityGPS]) != 1 || first.GPSMissing {
		t.Fatalf("expected g1 in first session, got %+v", first.Files)
	}
	if !second.GPSMissing || len(second.Files[models.ModalityCAN]) != 1 {
		t.Fatalf("unexpected second session files %+v", second.Files)
	}
	if len(res.Orphans) != 1 || res.Orphans[0].Path != "g-far" {
		t.Fatalf("expected g-far orphaned, got %+v", res.Orphans)
	}
}

func TestResegmentingIsIdempotent(t *testing.T) {
	p := DefaultPolicy()
	p.SkipDuplicateSessions = true
	index := NewKeyIndex()
	s := newSegmenter(t, p, index)

	files := []ingest.FileInfo{
		file(models.ModalityStability, "s1", 0, 600, 600),
		file(models.ModalityStability, "s2", 1000, 1600, 600),
	}

	first, err := s.Segment(context.Background(), "DOBACK024", files)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	index.Add(first.Sessions...)

	second, err := s.Segment(context.Background(), "DOBACK024", files)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Sessions) != 0 {
		t.Fatalf("expected no new sessions, got %d", len(second.Sessions))
	}
	if len(second.Duplicates) != len(first.Sessions) {
		t.Fatalf("expected %d duplicates, got %d", len(first.Sessions), len(second.Duplicates))
	}
	for i, key := range second.Duplicates {
		if key != first.Sessions[i].Key() {
			t.Fatalf("key %d changed: %v vs %v", i, key, first.Sessions[i].Key())
		}
	}
	if index.Len() != 2 {
		t.Fatalf("expected 2 indexed keys, got %d", index.Len())
	}
}

func TestSessionIDsAreDeterministic(t *testing.T) {
	s := newSegmenter(t, DefaultPolicy(), nil)
	files := []ingest.FileInfo{file(models.ModalityStability, "s1", 0, 600, 600)}

	a, _ := s.Segment(context.Background(), "DOBACK024", files)
	b, _ := s.Segment(context.Background(), "DOBACK024", files)
	if a.Sessions[0].ID != b.Sessions[0].ID || a.Sessions[0].ID == "" {
		t.Fatalf("expected stable IDs, got %q and %q", a.Sessions[0].ID, b.Sessions[0].ID)
	}
}

func TestNoOpenerFiles(t *testing.T) {
	s := newSegmenter(t, DefaultPolicy(), nil)

	res, err := s.Segment(context.Background(), "DOBACK024", []ingest.FileInfo{
		file(models.ModalityGPS, "g", 0, 600, 600),
	})
	if !errors.Is(err, ErrNoOpener) {
		t.Fatalf("expected ErrNoOpener, got %v", err)
	}
	if len(res.Orphans) != 1 {
		t.Fatalf("expected GPS file orphaned, got %+v", res.Orphans)
	}
}

func TestPresets(t *testing.T) {
	strict, err := Preset("Strict")
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	if strict.MinSessionDurationSeconds != 300 || !strict.GPSRequired() {
		t.Fatalf("unexpected strict preset %+v", strict)
	}
	standard, _ := Preset(PresetStandard)
	if standard.MinSessionDurationSeconds != 230 {
		t.Fatalf("unexpected standard preset %+v", standard)
	}
	if _, err := Preset("lenient"); err == nil {
		t.Fatalf("expected unknown preset error")
	}

	bad := DefaultPolicy()
	bad.MaxSessionDurationSeconds = 5
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected max < min to fail validation")
	}
}
