package geofence

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/cache"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripFunc) *http.Client {
	return &http.Client{Transport: rt}
}

const geofencePayload = `{"geofences":[{"id":"st-1","name":"Central","type":"station","circle":{"center":{"lat":41.3851,"lon":2.1734},"radius_meters":120}}]}`

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(src Source, c cache.Provider) *Provider {
	p := NewProvider(src, c, ProviderConfig{Retries: 3, Backoff: time.Millisecond}, quietLogger())
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestHTTPSourceFetch(t *testing.T) {
	src := NewHTTPSource("https://geo.example.com/api/", "secret", time.Second)
	src.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/organizations/org-1/geofences" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if req.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("missing bearer token")
		}
		return jsonResponse(http.StatusOK, geofencePayload), nil
	})

	fences, err := src.Fetch(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fences) != 1 || fences[0].Circle == nil || fences[0].Circle.RadiusMeters != 120 {
		t.Fatalf("unexpected geofences: %+v", fences)
	}
	if fences[0].OrganizationID != "org-1" {
		t.Fatalf("expected organization to be filled in, got %q", fences[0].OrganizationID)
	}
}

func TestProviderRetriesThenSucceeds(t *testing.T) {
	hits := 0
	src := NewHTTPSource("https://geo.example.com", "", time.Second)
	src.httpClient = newTestClient(func(*http.Request) (*http.Response, error) {
		hits++
		if hits < 3 {
			return jsonResponse(http.StatusServiceUnavailable, "try later"), nil
		}
		return jsonResponse(http.StatusOK, geofencePayload), nil
	})
	store := cache.NewMemoryProvider()

	snap := newTestProvider(src, store).Load(context.Background(), "org-1")
	if snap.Origin != OriginLive || snap.Index.Len() != 1 {
		t.Fatalf("expected live snapshot, got %+v", snap)
	}
	if hits != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits)
	}
	if _, err := store.Get(context.Background(), cacheKey("org-1")); err != nil {
		t.Fatalf("expected live geofences to be cached: %v", err)
	}
}

func TestProviderFallsBackToCache(t *testing.T) {
	store := cache.NewMemoryProvider()
	station := circleStation("st-1", center, 100)
	station.OrganizationID = "org-1"
	healthy := newTestProvider(StaticSource{station}, store)
	if snap := healthy.Load(context.Background(), "org-1"); snap.Origin != OriginLive {
		t.Fatalf("expected live load, got %s", snap.Origin)
	}

	attempts := 0
	failing := newTestProvider(sourceFunc(func(context.Context, string) ([]models.Geofence, error) {
		attempts++
		return nil, errors.New("connection refused")
	}), store)

	snap := failing.Load(context.Background(), "org-1")
	if snap.Origin != OriginCache || snap.Index.Len() != 1 {
		t.Fatalf("expected cached snapshot, got %+v", snap)
	}
	if attempts != 3 || snap.Err == nil {
		t.Fatalf("expected 3 attempts and the fetch error, got %d / %v", attempts, snap.Err)
	}
}

func TestProviderWithoutCacheReportsUnavailable(t *testing.T) {
	p := newTestProvider(sourceFunc(func(context.Context, string) ([]models.Geofence, error) {
		return nil, errors.New("timeout")
	}), nil)

	snap := p.Load(context.Background(), "org-2")
	if snap.Origin != OriginNone || snap.Index.HasStations() {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	if !errors.Is(snap.Err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", snap.Err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geofences.yaml")
	doc := `organizations:
  org-1:
    - id: st-1
      name: Central
      type: station
      circle:
        center: {lat: 41.3851, lon: 2.1734}
        radiusMeters: 150
    - id: ws-1
      name: Garage
      type: workshop
      polygon:
        - {lat: 41.40, lon: 2.17}
        - {lat: 41.40, lon: 2.18}
        - {lat: 41.41, lon: 2.18}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fences, err := NewFileSource(path).Fetch(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	ix, err := NewIndex(fences)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if ix.Len() != 2 || !ix.HasStations() {
		t.Fatalf("expected one station and one workshop, got %d", ix.Len())
	}
	if fences[0].OrganizationID != "org-1" {
		t.Fatalf("expected organization to be set")
	}

	other, err := NewFileSource(path).Fetch(context.Background(), "org-9")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected no geofences for unknown organization, got %d (%v)", len(other), err)
	}
}

type sourceFunc func(context.Context, string) ([]models.Geofence, error)

func (f sourceFunc) Fetch(ctx context.Context, organizationID string) ([]models.Geofence, error) {
	return f(ctx, organizationID)
}

func TestExampleGeofenceFile(t *testing.T) {
	fences, err := NewFileSource(filepath.Join("..", "..", "configs", "geofences.example.yaml")).Fetch(context.Background(), "bomberos-madrid")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	ix, err := NewIndex(fences)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if ix.Len() != 2 || !ix.HasStations() {
		t.Fatalf("expected a station and a workshop, got %d fences", ix.Len())
	}
	if _, ok := ix.WorkshopAt(models.GeoPoint{Lat: 40.4445, Lon: -3.6910}); !ok {
		t.Fatalf("expected the workshop polygon to contain its center")
	}
}
