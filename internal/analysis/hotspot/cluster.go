package hotspot

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/spatial"
)

// Weights scores each severity tier
type Weights struct {
	Light    float64 `yaml:"light" json:"light"`
	Moderate float64 `yaml:"moderate" json:"moderate"`
	Grave    float64 `yaml:"grave" json:"grave"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// Of returns the weight of a tier, 0 for unknown tiers
func (w Weights) Of(s models.Severity) float64 {
	switch s {
	case models.SeverityLight:
		return w.Light
	case models.SeverityModerate:
		return w.Moderate
	case models.SeverityGrave:
		return w.Grave
	case models.SeverityCritical:
		return w.Critical
	}
	return 0
}

// Config holds the clustering parameters
type Config struct {
	RadiusMeters float64 `yaml:"radiusMeters" json:"radius_meters"`
	Weights      Weights `yaml:"weights" json:"weights"`
	MinEvents    int     `yaml:"minEvents" json:"min_events"` // Clusters with fewer members are dropped
	Limit        int     `yaml:"limit" json:"limit"`          // 0 returns every cluster
}

// DefaultConfig returns a 50m radius with weights 1-4
func DefaultConfig() Config {
	return Config{
		RadiusMeters: 50,
		Weights:      Weights{Light: 1, Moderate: 2, Grave: 3, Critical: 4},
		MinEvents:    1,
	}
}

func (c Config) Validate() error {
	if c.RadiusMeters <= 0 || math.IsNaN(c.RadiusMeters) {
		return fmt.Errorf("radiusMeters must be > 0, got %v", c.RadiusMeters)
	}
	w := c.Weights
	if w.Light < 0 || w.Moderate < 0 || w.Grave < 0 || w.Critical < 0 {
		return fmt.Errorf("weights must be >= 0, got %+v", w)
	}
	if c.MinEvents < 0 || c.Limit < 0 {
		return fmt.Errorf("minEvents and limit must be >= 0")
	}
	return nil
}

// Summary describes one clustering pass
type Summary struct {
	Events     int `json:"events"`
	Geotagged  int `json:"geotagged"`
	Clusters   int `json:"clusters"` // Before MinEvents and Limit
	Returned   int `json:"returned"`
	BelowFloor int `json:"below_floor"` // Dropped by MinEvents
}

// building is a cluster under construction
type building struct {
	centroid  models.GeoPoint
	members   []models.StabilityEvent
	histogram map[models.Severity]int
	score     float64
	worst     models.Severity
	sessions  map[string]struct{}
	vehicles  map[string]struct{}
	first     time.Time
	last      time.Time
}

func (b *building) add(e models.StabilityEvent, w Weights) {
	b.centroid = spatial.RunningMean(b.centroid, len(b.members), *e.Location)
	b.members = append(b.members, e)
	b.histogram[e.Severity]++
	b.score += w.Of(e.Severity)
	b.worst = b.worst.Worse(e.Severity)
	b.sessions[e.SessionID] = struct{}{}
	if e.VehicleID != "" {
		b.vehicles[e.VehicleID] = struct{}{}
	}
	if b.first.IsZero() || e.Timestamp.Before(b.first) {
		b.first = e.Timestamp
	}
	if e.Timestamp.After(b.last) {
		b.last = e.Timestamp
	}
}

// Cluster groups geotagged events with a greedy fixed-radius pass. Events are
// visited chronologically (ties by ID) and join the nearest cluster whose
// running-mean centroid lies within the radius. The input is not modified.
func Cluster(events []models.StabilityEvent, cfg Config) ([]models.HotspotCluster, Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Summary{}, fmt.Errorf("invalid hotspot config: %w", err)
	}

	summary := Summary{Events: len(events)}
	tagged := make([]models.StabilityEvent, 0, len(events))
	for _, e := range events {
		if e.Geotagged() {
			tagged = append(tagged, e)
		}
	}
	summary.Geotagged = len(tagged)

	slices.SortStableFunc(tagged, func(a, b models.StabilityEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var clusters []*building
	for _, e := range tagged {
		best := -1
		bestDist := math.Inf(1)
		for i, c := range clusters {
			if d := spatial.Distance(c.centroid, *e.Location); d <= cfg.RadiusMeters && d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			clusters = append(clusters, &building{
				histogram: make(map[models.Severity]int),
				sessions:  make(map[string]struct{}),
				vehicles:  make(map[string]struct{}),
			})
			best = len(clusters) - 1
		}
		clusters[best].add(e, cfg.Weights)
	}
	summary.Clusters = len(clusters)

	out := make([]models.HotspotCluster, 0, len(clusters))
	for _, b := range clusters {
		if len(b.members) < cfg.MinEvents {
			summary.BelowFloor++
			continue
		}
		out = append(out, b.result())
	}

	Rank(out)
	if cfg.Limit > 0 && len(out) > cfg.Limit {
		out = out[:cfg.Limit]
	}
	summary.Returned = len(out)
	return out, summary, nil
}

// Rank orders clusters by member count, then score, then first occurrence,
// and numbers them from 1
func Rank(clusters []models.HotspotCluster) {
	slices.SortStableFunc(clusters, func(a, b models.HotspotCluster) int {
		if c := cmp.Compare(b.EventCount, a.EventCount); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return a.FirstSeen.Compare(b.FirstSeen)
	})
	for i := range clusters {
		clusters[i].Rank = i + 1
	}
}

func (b *building) result() models.HotspotCluster {
	ids := make([]string, 0, len(b.members))
	for _, e := range b.members {
		ids = append(ids, e.ID)
	}
	vehicles := make([]string, 0, len(b.vehicles))
	for v := range b.vehicles {
		vehicles = append(vehicles, v)
	}
	slices.Sort(vehicles)

	return models.HotspotCluster{
		Centroid:     b.centroid,
		EventCount:   len(b.members),
		Histogram:    b.histogram,
		Score:        b.score,
		MaxSeverity:  b.worst,
		SessionCount: len(b.sessions),
		VehicleIDs:   vehicles,
		EventIDs:     ids,
		FirstSeen:    b.first,
		LastSeen:     b.last,
	}
}
