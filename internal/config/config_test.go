package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" || cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Segmentation.MinSessionDurationSeconds != 10 || !cfg.Segmentation.SkipDuplicateSessions {
		t.Fatalf("expected the permissive policy, got %+v", cfg.Segmentation.Policy)
	}
	if cfg.Hotspots.RadiusMeters != 50 || cfg.KPI.MaxJumpMeters != 2000 {
		t.Fatalf("unexpected analysis defaults")
	}
}

func TestPresetAppliedBeforeExplicitKeys(t *testing.T) {
	path := writeConfig(t, `
segmentation:
  preset: strict
  minSessionDurationSeconds: 600
  minSamplesPerModality:
    gps: 50
events:
  maxSampleGap: 5s
geofences:
  url: https://geofences.example.org/api
  retries: 5
fleet:
  defaultOrganization: bomberos
  vehicles:
    DOBACK027: sanitarios
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	seg := cfg.Segmentation
	if seg.Preset != "strict" || !seg.RequiredModalities.GPS {
		t.Fatalf("expected the strict preset, got %+v", seg)
	}
	if seg.MinSessionDurationSeconds != 600 {
		t.Fatalf("expected the explicit minimum to win, got %d", seg.MinSessionDurationSeconds)
	}
	if seg.MinSamplesPerModality[models.ModalityGPS] != 50 || seg.MinSamplesPerModality[models.ModalityStability] != 10 {
		t.Fatalf("expected merged sample floors, got %v", seg.MinSamplesPerModality)
	}
	if cfg.Events.MaxSampleGap != 5*time.Second {
		t.Fatalf("expected 5s sample gap, got %s", cfg.Events.MaxSampleGap)
	}
	if cfg.Geofences.Retries != 5 || cfg.Geofences.Backoff != 200*time.Millisecond {
		t.Fatalf("unexpected geofence provider config %+v", cfg.Geofences.ProviderConfig)
	}
	if cfg.Fleet.Vehicles["DOBACK027"] != "sanitarios" || cfg.Fleet.DefaultOrganization != "bomberos" {
		t.Fatalf("unexpected fleet %+v", cfg.Fleet)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("FLEET_DB_DRIVER", "pgx")
	t.Setenv("FLEET_DB_DSN", "postgres://fleet@localhost/fleet")
	t.Setenv("FLEET_WORKERS", "8")
	t.Setenv("FLEET_SEGMENTATION_PRESET", "standard")
	t.Setenv("FLEET_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(writeConfig(t, "ingest:\n  workers: 2\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "pgx" || cfg.Ingest.Workers != 8 {
		t.Fatalf("expected env to override the file, got %+v %+v", cfg.Database, cfg.Ingest)
	}
	if cfg.Segmentation.MinSessionDurationSeconds != 230 {
		t.Fatalf("expected the standard preset, got %+v", cfg.Segmentation)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Addr != "localhost:6379" {
		t.Fatalf("expected the cache enabled, got %+v", cfg.Cache)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"unknown preset": "segmentation:\n  preset: lenient\n",
		"bad timezone":   "ingest:\n  timezone: Mars/Olympus\n",
		"bad hotspot":    "hotspots:\n  radiusMeters: -1\n",
		"bad yaml":       "server: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	t.Setenv("FLEET_WORKERS", "many")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected an error for a non-numeric worker count")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.example.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Segmentation.MinSessionDurationSeconds != 230 || cfg.Ingest.Timezone != "Europe/Madrid" {
		t.Fatalf("expected the standard preset in Madrid time, got %+v", cfg.Segmentation.Policy)
	}
	if cfg.States.DwellDuration != 2*time.Minute || cfg.Geofences.Backoff != 500*time.Millisecond {
		t.Fatalf("expected durations decoded, got %+v / %+v", cfg.States, cfg.Geofences)
	}
	if cfg.Fleet.Vehicles["DOBACK030"] != "sanitarios-alcala" {
		t.Fatalf("unexpected fleet map %+v", cfg.Fleet.Vehicles)
	}
}
