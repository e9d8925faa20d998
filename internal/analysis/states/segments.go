package states

import (
	"fmt"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/spatial"
)

// sourceRank orders segment sources by confidence
var sourceRank = map[models.SegmentSource]int{
	models.SourceFallback: 0,
	models.SourceGPS:      1,
	models.SourceBeacon:   2,
}

// buildSegments turns state changes into a gap-free timeline over the session.
// Zero-length spans are dropped and equal neighbours merged.
func buildSegments(session models.Session, changes []change, fixes []models.GPSSample) []models.StateSegment {
	var segments []models.StateSegment

	for i, ch := range changes {
		start := clamp(ch.at, session.StartTime, session.EndTime)
		if i == 0 {
			start = session.StartTime
		}
		end := session.EndTime
		if i+1 < len(changes) {
			end = clamp(changes[i+1].at, session.StartTime, session.EndTime)
		}
		if !end.After(start) {
			continue
		}

		if n := len(segments); n > 0 && segments[n-1].State == ch.state {
			segments[n-1].EndTime = end
			if sourceRank[ch.source] > sourceRank[segments[n-1].Source] {
				segments[n-1].Source = ch.source
			}
			continue
		}
		segments = append(segments, models.StateSegment{
			SessionID: session.ID,
			State:     ch.state,
			Source:    ch.source,
			StartTime: start,
			EndTime:   end,
		})
	}

	for i := range segments {
		segments[i].Ordinal = i + 1
		attachTrack(&segments[i], fixes, i == len(segments)-1)
	}
	return segments
}

// attachTrack sets start/end locations and distance from the fixes inside the segment
func attachTrack(seg *models.StateSegment, fixes []models.GPSSample, last bool) {
	var points []models.GeoPoint
	for _, f := range fixes {
		if f.Timestamp.Before(seg.StartTime) {
			continue
		}
		if f.Timestamp.After(seg.EndTime) || (!last && f.Timestamp.Equal(seg.EndTime)) {
			break
		}
		points = append(points, f.Point())
	}
	if len(points) == 0 {
		return
	}
	startLoc, endLoc := points[0], points[len(points)-1]
	seg.StartLocation = &startLoc
	seg.EndLocation = &endLoc
	seg.DistanceKm = spatial.PathLength(points) / 1000
}

// ValidateCoverage checks that segments are ordered, non-overlapping,
// gap-free, merged and cover exactly [session.start, session.end]
func ValidateCoverage(session models.Session, segments []models.StateSegment) error {
	if len(segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrCoverage)
	}
	if !segments[0].StartTime.Equal(session.StartTime) {
		return fmt.Errorf("%w: first segment starts at %s, session at %s", ErrCoverage, segments[0].StartTime, session.StartTime)
	}
	if last := segments[len(segments)-1]; !last.EndTime.Equal(session.EndTime) {
		return fmt.Errorf("%w: last segment ends at %s, session at %s", ErrCoverage, last.EndTime, session.EndTime)
	}

	var total time.Duration
	for i, seg := range segments {
		if !seg.State.Valid() {
			return fmt.Errorf("%w: segment %d has unknown state %d", ErrCoverage, i, seg.State)
		}
		if !seg.EndTime.After(seg.StartTime) {
			return fmt.Errorf("%w: segment %d is empty or reversed", ErrCoverage, i)
		}
		if i > 0 {
			prev := segments[i-1]
			if !prev.EndTime.Equal(seg.StartTime) {
				return fmt.Errorf("%w: gap or overlap between segments %d and %d", ErrCoverage, i-1, i)
			}
			if prev.State == seg.State {
				return fmt.Errorf("%w: segments %d and %d share state %s", ErrCoverage, i-1, i, seg.State)
			}
		}
		total += seg.Duration()
	}
	if total != session.Duration() {
		return fmt.Errorf("%w: segments sum to %s, session lasts %s", ErrCoverage, total, session.Duration())
	}
	return nil
}

func clamp(t, lo, hi time.Time) time.Time {
	if t.Before(lo) {
		return lo
	}
	if t.After(hi) {
		return hi
	}
	return t
}
