package states

import (
	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/spatial"
)

// FilterStats counts why GPS fixes were discarded
type FilterStats struct {
	Total       int `json:"total"`
	Accepted    int `json:"accepted"`
	NoFix       int `json:"no_fix"`
	LowSats     int `json:"low_satellites"`
	BadCoords   int `json:"bad_coordinates"`
	OutOfRange  int `json:"out_of_range"` // Outside the session
	Implausible int `json:"implausible"`  // Implied speed above the ceiling
}

// filterFixes keeps fixes that are usable for classification.
// fixes must be time-ordered.
func filterFixes(session models.Session, fixes []models.GPSSample, cfg Config) ([]models.GPSSample, FilterStats) {
	stats := FilterStats{Total: len(fixes)}
	accepted := make([]models.GPSSample, 0, len(fixes))

	for _, f := range fixes {
		switch {
		case !session.Contains(f.Timestamp):
			stats.OutOfRange++
			continue
		case f.FixQuality <= 0:
			stats.NoFix++
			continue
		case f.Satellites < cfg.MinSatellites:
			stats.LowSats++
			continue
		case !f.HasFix() || (f.Latitude == 0 && f.Longitude == 0 && cfg.RejectNullIsland):
			stats.BadCoords++
			continue
		}

		if n := len(accepted); n > 0 {
			prev := accepted[n-1]
			dt := f.Timestamp.Sub(prev.Timestamp).Seconds()
			if dt <= 0 {
				if prev.Point() != f.Point() {
					stats.Implausible++
				}
				continue
			}
			if spatial.ImpliedSpeedKmh(prev.Point(), f.Point(), dt) > cfg.MaxPlausibleSpeedKmh {
				stats.Implausible++
				continue
			}
		}
		accepted = append(accepted, f)
	}

	stats.Accepted = len(accepted)
	return accepted, stats
}
