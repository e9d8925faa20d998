package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/analysis/hotspot"
	"github.com/jengzang/fleet-records-backend-go/internal/analysis/kpi"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

var t0 = time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

type fakeSessions struct {
	sessions []models.Session
	err      error
}

func (f *fakeSessions) GetSessions(_ context.Context, _ models.SessionFilter) ([]models.Session, int64, error) {
	return f.sessions, int64(len(f.sessions)), f.err
}

func (f *fakeSessions) GetSessionByID(_ context.Context, id string) (*models.Session, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, f.err
}

func (f *fakeSessions) FindForKPI(_ context.Context, _ models.KPIFilter) ([]models.Session, error) {
	return f.sessions, f.err
}

type fakeSegments []models.StateSegment

func (f fakeSegments) GetBySessions(_ context.Context, ids []string) ([]models.StateSegment, error) {
	var out []models.StateSegment
	for _, s := range f {
		for _, id := range ids {
			if s.SessionID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

type fakeEvents struct {
	events []models.StabilityEvent
	last   models.EventFilter
}

func (f *fakeEvents) GetEvents(_ context.Context, filter models.EventFilter) ([]models.StabilityEvent, error) {
	f.last = filter
	return f.events, nil
}

func (f *fakeEvents) GetBySessions(_ context.Context, _ []string) ([]models.StabilityEvent, error) {
	return f.events, nil
}

type fakeTracks map[string][]models.GPSSample

func (f fakeTracks) GetBySessions(_ context.Context, _ []string) (map[string][]models.GPSSample, error) {
	return f, nil
}

func event(id string, sec int, sev models.Severity, lat, lon float64) models.StabilityEvent {
	return models.StabilityEvent{
		ID:        id,
		SessionID: "s1",
		VehicleID: "DOBACK024",
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
		Severity:  sev,
		Location:  &models.GeoPoint{Lat: lat, Lon: lon},
	}
}

func TestHotspotServiceAppliesOverrides(t *testing.T) {
	store := &fakeEvents{events: []models.StabilityEvent{
		event("a", 0, models.SeverityLight, 40.0, -3.0),
		event("b", 10, models.SeverityGrave, 40.0001, -3.0),
		event("c", 20, models.SeverityCritical, 41.0, -3.0),
	}}
	svc := NewHotspotService(store, hotspot.DefaultConfig())

	res, err := svc.GetHotspots(context.Background(), models.HotspotFilter{MinEvents: 2})
	if err != nil {
		t.Fatalf("hotspots: %v", err)
	}
	if !store.last.Geotagged || store.last.Limit != maxHotspotEvents {
		t.Fatalf("expected a geotagged unbounded query, got %+v", store.last)
	}
	if len(res.Clusters) != 1 || res.Clusters[0].EventCount != 2 {
		t.Fatalf("expected one two-event cluster, got %+v", res.Clusters)
	}
	if res.Summary.BelowFloor != 1 {
		t.Fatalf("expected the lone event below the floor, got %+v", res.Summary)
	}
}

func TestHotspotServiceEmptyResult(t *testing.T) {
	svc := NewHotspotService(&fakeEvents{}, hotspot.DefaultConfig())
	res, err := svc.GetHotspots(context.Background(), models.HotspotFilter{})
	if err != nil {
		t.Fatalf("hotspots: %v", err)
	}
	if res.Clusters == nil || len(res.Clusters) != 0 {
		t.Fatalf("expected an empty, non-nil cluster list")
	}
}

func TestKPIServiceAggregatesStoredArtifacts(t *testing.T) {
	sessions := &fakeSessions{sessions: []models.Session{{
		ID: "s1", VehicleID: "DOBACK024", StartTime: t0, EndTime: t0.Add(10 * time.Minute), Valid: true,
	}}}
	segments := fakeSegments{
		{SessionID: "s1", State: models.StateAtStation, StartTime: t0, EndTime: t0.Add(4 * time.Minute)},
		{SessionID: "s1", State: models.StateEmergencyDeparture, StartTime: t0.Add(4 * time.Minute), EndTime: t0.Add(10 * time.Minute)},
	}
	events := &fakeEvents{events: []models.StabilityEvent{event("a", 30, models.SeverityModerate, 40, -3)}}
	tracks := fakeTracks{"s1": {
		{Timestamp: t0, Latitude: 0, Longitude: 0, FixQuality: 1, Satellites: 8},
		{Timestamp: t0.Add(time.Second), Latitude: 0, Longitude: 0.001, FixQuality: 1, Satellites: 8},
	}}

	svc := NewKPIService(sessions, segments, events, tracks, kpi.DefaultConfig())
	summary, err := svc.GetSummary(context.Background(), models.KPIFilter{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.SessionCount != 1 || summary.EmergencyCount != 1 || summary.EventCount != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.TotalDuration != 10*time.Minute {
		t.Fatalf("expected 10m of timeline, got %s", summary.TotalDuration)
	}
	if summary.DistanceKm < 0.10 || summary.DistanceKm > 0.12 {
		t.Fatalf("expected ~0.111 km, got %v", summary.DistanceKm)
	}
}

func TestKPIServicePropagatesStoreErrors(t *testing.T) {
	svc := NewKPIService(&fakeSessions{err: errors.New("boom")}, fakeSegments{}, &fakeEvents{}, fakeTracks{}, kpi.DefaultConfig())
	if _, err := svc.GetSummary(context.Background(), models.KPIFilter{}); err == nil {
		t.Fatalf("expected the store error")
	}
}

func TestSessionDetailScopesByOrganization(t *testing.T) {
	sessions := &fakeSessions{sessions: []models.Session{{ID: "s1", OrganizationID: "bomberos"}}}
	svc := NewSessionService(sessions, fakeSegments{{SessionID: "s1", State: models.StateAtStation}}, &fakeEvents{})

	detail, err := svc.GetSessionDetail(context.Background(), "s1", "bomberos")
	if err != nil || detail == nil || len(detail.Segments) != 1 {
		t.Fatalf("expected the session detail, got %+v (err %v)", detail, err)
	}
	detail, err = svc.GetSessionDetail(context.Background(), "s1", "sanitarios")
	if err != nil || detail != nil {
		t.Fatalf("expected another organization's session hidden, got %+v (err %v)", detail, err)
	}
}
