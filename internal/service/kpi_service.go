package service

import (
	"context"
	"fmt"

	"github.com/jengzang/fleet-records-backend-go/internal/analysis/kpi"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// KPIService aggregates stored session artifacts
type KPIService struct {
	sessions SessionStore
	segments SegmentStore
	events   EventStore
	tracks   TrackStore
	cfg      kpi.Config
}

// NewKPIService creates a new KPI service
func NewKPIService(sessions SessionStore, segments SegmentStore, events EventStore, tracks TrackStore, cfg kpi.Config) *KPIService {
	return &KPIService{sessions: sessions, segments: segments, events: events, tracks: tracks, cfg: cfg}
}

// GetSummary loads every valid session in scope and reduces it
func (s *KPIService) GetSummary(ctx context.Context, filter models.KPIFilter) (models.KPISummary, error) {
	sessions, err := s.sessions.FindForKPI(ctx, filter)
	if err != nil {
		return models.KPISummary{}, fmt.Errorf("failed to load sessions: %w", err)
	}

	in := kpi.Input{Sessions: sessions}
	if len(sessions) > 0 {
		ids := make([]string, len(sessions))
		for i, session := range sessions {
			ids[i] = session.ID
		}
		if in.Segments, err = s.segments.GetBySessions(ctx, ids); err != nil {
			return models.KPISummary{}, fmt.Errorf("failed to load segments: %w", err)
		}
		if in.Events, err = s.events.GetBySessions(ctx, ids); err != nil {
			return models.KPISummary{}, fmt.Errorf("failed to load events: %w", err)
		}
		if in.Tracks, err = s.tracks.GetBySessions(ctx, ids); err != nil {
			return models.KPISummary{}, fmt.Errorf("failed to load tracks: %w", err)
		}
	}

	return kpi.Aggregate(in, kpi.FromModel(filter), s.cfg)
}
