package geofence

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/spatial"
)

// ErrInvalidGeometry is returned for geofences without usable geometry
var ErrInvalidGeometry = errors.New("invalid geofence geometry")

// entry is a geofence with its precomputed geometry
type entry struct {
	fence  models.Geofence
	loop   *s2.Loop
	center models.GeoPoint
}

func (e entry) contains(p models.GeoPoint) bool {
	if e.fence.Circle != nil {
		return spatial.Distance(e.fence.Circle.Center, p) <= e.fence.Circle.RadiusMeters
	}
	return e.loop.ContainsPoint(spatial.ToS2(p))
}

// Index answers containment queries over one organization's geofences
type Index struct {
	stations  []entry
	workshops []entry
}

// NewIndex validates and indexes geofences. Unknown types are rejected.
func NewIndex(fences []models.Geofence) (*Index, error) {
	ix := &Index{}
	for _, f := range fences {
		e, err := newEntry(f)
		if err != nil {
			return nil, fmt.Errorf("geofence %q: %w", f.ID, err)
		}
		switch f.Type {
		case models.GeofenceStation:
			ix.stations = append(ix.stations, e)
		case models.GeofenceWorkshop:
			ix.workshops = append(ix.workshops, e)
		default:
			return nil, fmt.Errorf("geofence %q: unknown type %q", f.ID, f.Type)
		}
	}
	return ix, nil
}

func newEntry(f models.Geofence) (entry, error) {
	switch {
	case f.Circle != nil && len(f.Polygon) > 0:
		return entry{}, fmt.Errorf("%w: both circle and polygon set", ErrInvalidGeometry)
	case f.Circle != nil:
		if f.Circle.RadiusMeters <= 0 || math.IsNaN(f.Circle.RadiusMeters) {
			return entry{}, fmt.Errorf("%w: radius must be > 0", ErrInvalidGeometry)
		}
		return entry{fence: f, center: f.Circle.Center}, nil
	case len(f.Polygon) > 0:
		loop := spatial.NewLoop(f.Polygon)
		if loop == nil {
			return entry{}, fmt.Errorf("%w: polygon needs at least 3 vertices", ErrInvalidGeometry)
		}
		return entry{fence: f, loop: loop, center: spatial.Centroid(f.Polygon)}, nil
	}
	return entry{}, fmt.Errorf("%w: neither circle nor polygon set", ErrInvalidGeometry)
}

// Len returns the number of indexed geofences
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.stations) + len(ix.workshops)
}

// HasStations reports whether at least one station is indexed
func (ix *Index) HasStations() bool {
	return ix != nil && len(ix.stations) > 0
}

// StationAt returns the first station containing p
func (ix *Index) StationAt(p models.GeoPoint) (models.Geofence, bool) {
	if ix == nil {
		return models.Geofence{}, false
	}
	return firstContaining(ix.stations, p)
}

// WorkshopAt returns the first workshop containing p
func (ix *Index) WorkshopAt(p models.GeoPoint) (models.Geofence, bool) {
	if ix == nil {
		return models.Geofence{}, false
	}
	return firstContaining(ix.workshops, p)
}

// NearestStation returns the station whose center is closest to p and the distance in meters
func (ix *Index) NearestStation(p models.GeoPoint) (models.Geofence, float64, bool) {
	if !ix.HasStations() {
		return models.Geofence{}, 0, false
	}
	best := -1
	bestDist := math.Inf(1)
	for i, e := range ix.stations {
		if d := spatial.Distance(e.center, p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return ix.stations[best].fence, bestDist, true
}

// WithStation returns a copy of the index with one more station
func (ix *Index) WithStation(f models.Geofence) (*Index, error) {
	e, err := newEntry(f)
	if err != nil {
		return nil, err
	}
	out := &Index{}
	if ix != nil {
		out.stations = append(out.stations, ix.stations...)
		out.workshops = append(out.workshops, ix.workshops...)
	}
	out.stations = append(out.stations, e)
	return out, nil
}

// Geofences returns every indexed geofence, stations first
func (ix *Index) Geofences() []models.Geofence {
	if ix == nil {
		return nil
	}
	out := make([]models.Geofence, 0, ix.Len())
	for _, e := range ix.stations {
		out = append(out, e.fence)
	}
	for _, e := range ix.workshops {
		out = append(out, e.fence)
	}
	return out
}

// OriginStation builds the synthetic station used when no geofences are available
func OriginStation(center models.GeoPoint, radiusMeters float64, organizationID string) models.Geofence {
	return models.Geofence{
		ID:             "synthetic-origin",
		Name:           "Session origin",
		Type:           models.GeofenceStation,
		OrganizationID: organizationID,
		Circle:         &models.Circle{Center: center, RadiusMeters: radiusMeters},
		Synthetic:      true,
	}
}

func firstContaining(entries []entry, p models.GeoPoint) (models.Geofence, bool) {
	for _, e := range entries {
		if e.contains(p) {
			return e.fence, true
		}
	}
	return models.Geofence{}, false
}
