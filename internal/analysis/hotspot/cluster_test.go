package hotspot

import (
	"fmt"
	"testing"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
	"github.com/jengzang/fleet-records-backend-go/internal/spatial"
)

var (
	base    = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	plazaA  = models.GeoPoint{Lat: 40.4168, Lon: -3.7038}
	plazaB  = spatial.DestinationPoint(plazaA, 90, 2000)
	counter int
)

func event(p models.GeoPoint, sev models.Severity, offset time.Duration, session, vehicle string) models.StabilityEvent {
	counter++
	loc := p
	return models.StabilityEvent{
		ID:        fmt.Sprintf("ev-%03d", counter),
		SessionID: session,
		VehicleID: vehicle,
		Timestamp: base.Add(offset),
		Severity:  sev,
		Location:  &loc,
	}
}

func TestClusterGroupsWithinRadius(t *testing.T) {
	events := []models.StabilityEvent{
		event(plazaA, models.SeverityLight, 0, "s1", "V1"),
		event(spatial.DestinationPoint(plazaA, 0, 20), models.SeverityGrave, time.Minute, "s1", "V1"),
		event(spatial.DestinationPoint(plazaA, 180, 20), models.SeverityModerate, 2*time.Minute, "s2", "V2"),
		event(plazaB, models.SeverityCritical, 3*time.Minute, "s3", "V1"),
		{ID: "no-gps", Timestamp: base, Severity: models.SeverityCritical},
	}

	clusters, summary, err := Cluster(events, DefaultConfig())
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if summary.Geotagged != 4 || summary.Clusters != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	top := clusters[0]
	if top.Rank != 1 || top.EventCount != 3 {
		t.Fatalf("expected the 3-event cluster first, got %+v", top)
	}
	if top.Score != 6 || top.MaxSeverity != models.SeverityGrave {
		t.Fatalf("expected score 6 and grave max, got %v / %s", top.Score, top.MaxSeverity)
	}
	if top.SessionCount != 2 || len(top.VehicleIDs) != 2 {
		t.Fatalf("expected 2 sessions and 2 vehicles, got %d / %v", top.SessionCount, top.VehicleIDs)
	}
	if d := spatial.Distance(top.Centroid, plazaA); d > 1 {
		t.Fatalf("centroid drifted %.2fm from the plaza", d)
	}
	if !top.FirstSeen.Equal(base) || !top.LastSeen.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("unexpected first/last seen %v %v", top.FirstSeen, top.LastSeen)
	}
	if clusters[1].Histogram[models.SeverityCritical] != 1 {
		t.Fatalf("expected the critical event alone in the second cluster")
	}
}

func TestRankingTieBreaks(t *testing.T) {
	events := []models.StabilityEvent{
		event(plazaA, models.SeverityLight, 0, "s1", "V1"),
		event(plazaB, models.SeverityLight, time.Minute, "s1", "V1"),
		event(spatial.DestinationPoint(plazaA, 0, 4000), models.SeverityGrave, 2*time.Minute, "s1", "V1"),
	}

	clusters, _, err := Cluster(events, DefaultConfig())
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(clusters) != 3 {
		t.Fatalf("expected 3 singleton clusters, got %d", len(clusters))
	}
	if clusters[0].MaxSeverity != models.SeverityGrave {
		t.Fatalf("higher score must rank first among equal counts")
	}
	if !clusters[1].FirstSeen.Equal(base) {
		t.Fatalf("earlier cluster must win a full tie")
	}
}

func TestMinEventsAndLimit(t *testing.T) {
	var events []models.StabilityEvent
	for i := 0; i < 5; i++ {
		events = append(events, event(plazaA, models.SeverityLight, time.Duration(i)*time.Second, "s1", "V1"))
	}
	for i := 0; i < 2; i++ {
		events = append(events, event(plazaB, models.SeverityLight, time.Duration(10+i)*time.Second, "s1", "V1"))
	}
	events = append(events, event(spatial.DestinationPoint(plazaA, 0, 4000), models.SeverityLight, time.Minute, "s1", "V1"))

	cfg := DefaultConfig()
	cfg.MinEvents = 2
	clusters, summary, err := Cluster(events, cfg)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if len(clusters) != 2 || summary.BelowFloor != 1 {
		t.Fatalf("expected 2 clusters and 1 below floor, got %d / %+v", len(clusters), summary)
	}

	cfg.Limit = 1
	clusters, _, _ = Cluster(events, cfg)
	if len(clusters) != 1 || clusters[0].EventCount != 5 {
		t.Fatalf("expected only the largest cluster, got %+v", clusters)
	}
}

func TestClusterIsDeterministic(t *testing.T) {
	events := []models.StabilityEvent{
		event(plazaA, models.SeverityLight, 0, "s1", "V1"),
		event(spatial.DestinationPoint(plazaA, 90, 45), models.SeverityLight, time.Second, "s1", "V1"),
		event(spatial.DestinationPoint(plazaA, 90, 90), models.SeverityLight, 2*time.Second, "s1", "V1"),
	}
	reversed := []models.StabilityEvent{events[2], events[1], events[0]}

	a, _, _ := Cluster(events, DefaultConfig())
	b, _, _ := Cluster(reversed, DefaultConfig())
	if len(a) != len(b) {
		t.Fatalf("input order changed the result: %d vs %d clusters", len(a), len(b))
	}
	for i := range a {
		if a[i].EventCount != b[i].EventCount || a[i].Centroid != b[i].Centroid {
			t.Fatalf("cluster %d differs between input orders", i)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, _, err := Cluster(nil, Config{RadiusMeters: 0}); err == nil {
		t.Fatalf("expected zero radius to be rejected")
	}
}
