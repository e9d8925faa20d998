package service

import (
	"context"

	"github.com/jengzang/fleet-records-backend-go/internal/analysis/hotspot"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// EventService handles business logic for stability events
type EventService struct {
	events EventStore
}

// NewEventService creates a new event service
func NewEventService(events EventStore) *EventService {
	return &EventService{events: events}
}

// GetEvents retrieves events matching the filter
func (s *EventService) GetEvents(ctx context.Context, filter models.EventFilter) ([]models.StabilityEvent, error) {
	return s.events.GetEvents(ctx, filter)
}

// HotspotResult is a ranked cluster list with the pass summary
type HotspotResult struct {
	Clusters []models.HotspotCluster `json:"clusters"`
	Summary  hotspot.Summary         `json:"summary"`
}

// HotspotService clusters stored events on demand
type HotspotService struct {
	events EventStore
	cfg    hotspot.Config
}

// NewHotspotService creates a hotspot service with default clustering parameters
func NewHotspotService(events EventStore, cfg hotspot.Config) *HotspotService {
	return &HotspotService{events: events, cfg: cfg}
}

// maxHotspotEvents bounds how many events one request clusters
const maxHotspotEvents = 100000

// GetHotspots loads geotagged events and clusters them. Filter values
// override the configured radius, floor and limit when set.
func (s *HotspotService) GetHotspots(ctx context.Context, filter models.HotspotFilter) (*HotspotResult, error) {
	cfg := s.cfg
	if filter.RadiusMeters > 0 {
		cfg.RadiusMeters = filter.RadiusMeters
	}
	if filter.MinEvents > 0 {
		cfg.MinEvents = filter.MinEvents
	}
	if filter.Top > 0 {
		cfg.Limit = filter.Top
	}

	ef := filter.EventFilter
	ef.Geotagged = true
	if ef.Limit <= 0 {
		ef.Limit = maxHotspotEvents
	}

	events, err := s.events.GetEvents(ctx, ef)
	if err != nil {
		return nil, err
	}
	clusters, summary, err := hotspot.Cluster(events, cfg)
	if err != nil {
		return nil, err
	}
	if clusters == nil {
		clusters = []models.HotspotCluster{}
	}
	return &HotspotResult{Clusters: clusters, Summary: summary}, nil
}
