package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/analysis"
	"github.com/jengzang/fleet-records-backend-go/internal/api"
	"github.com/jengzang/fleet-records-backend-go/internal/cache"
	"github.com/jengzang/fleet-records-backend-go/internal/config"
	"github.com/jengzang/fleet-records-backend-go/internal/database"
	"github.com/jengzang/fleet-records-backend-go/internal/geofence"
	"github.com/jengzang/fleet-records-backend-go/internal/handler"
	"github.com/jengzang/fleet-records-backend-go/internal/metrics"
	"github.com/jengzang/fleet-records-backend-go/internal/repository"
	"github.com/jengzang/fleet-records-backend-go/internal/segment"
	"github.com/jengzang/fleet-records-backend-go/internal/service"
)

// ErrBatchRunning is returned when another process holds the ingest lock
var ErrBatchRunning = errors.New("an ingest batch is already running for this directory")

// ingestLockTTL bounds how long a crashed run can hold the lock
const ingestLockTTL = time.Hour

// App holds the wired components shared by the CLI and the server
type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *database.DB
	Cache  cache.Provider

	Sessions *repository.SessionRepository
	Segments *repository.SegmentRepository
	Events   *repository.EventRepository
	Tracks   *repository.TrackRepository

	Processing *service.ProcessingService
	Batches    *service.BatchService
}

// New opens the database, applies migrations and wires the pipeline
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrationManager(db, logger).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Cache:    newCache(ctx, cfg.Cache, logger),
		Sessions: repository.NewSessionRepository(db),
		Segments: repository.NewSegmentRepository(db),
		Events:   repository.NewEventRepository(db),
		Tracks:   repository.NewTrackRepository(db),
		Batches:  service.NewBatchService(repository.NewBatchRepository(db)),
	}

	if a.Processing, err = a.newProcessing(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NewMemoryProvider()
	}
	provider, err := cache.NewRedisProvider(ctx, cfg.RedisConfig)
	if err != nil {
		logger.Warn("redis cache unavailable, using process memory", "addr", cfg.Addr, "error", err)
		return cache.NewMemoryProvider()
	}
	return provider
}

func (a *App) newProcessing() (*service.ProcessingService, error) {
	cfg := a.Config

	segmenter, err := segment.NewSegmenter(cfg.Segmentation.Policy, a.Sessions, a.Logger)
	if err != nil {
		return nil, err
	}
	engine, err := analysis.NewEngineFromConfig(cfg.Events, cfg.States, nil, a.Logger)
	if err != nil {
		return nil, err
	}

	var loader service.GeofenceLoader
	var source geofence.Source
	switch {
	case cfg.Geofences.URL != "":
		source = geofence.NewHTTPSource(cfg.Geofences.URL, cfg.Geofences.Token, cfg.Geofences.Timeout)
	case cfg.Geofences.File != "":
		source = geofence.NewFileSource(cfg.Geofences.File)
	}
	if source != nil {
		loader = geofence.NewProvider(source, a.Cache, cfg.Geofences.ProviderConfig, a.Logger)
	} else {
		a.Logger.Warn("no geofence source configured, classification runs in GPS-only mode")
	}

	return service.NewProcessingService(segmenter, engine, loader, a.Sessions, service.ProcessingConfig{
		Workers:             cfg.Ingest.Workers,
		DefaultOrganization: cfg.Fleet.DefaultOrganization,
		Fleet:               cfg.Fleet.Vehicles,
		Ingest:              cfg.IngestOptions(a.Logger),
	}, a.Logger), nil
}

// Ingest runs one batch over dir under a cache-held lock, records it as a
// batch run and feeds its metrics
func (a *App) Ingest(ctx context.Context, dir string) (*service.BatchReport, error) {
	lock := "ingest:lock:" + dir
	acquired, err := a.Cache.SetNX(ctx, lock, []byte(time.Now().UTC().Format(time.RFC3339)), ingestLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !acquired {
		return nil, ErrBatchRunning
	}
	defer func() {
		if err := a.Cache.Del(context.WithoutCancel(ctx), lock); err != nil {
			a.Logger.Warn("failed to release ingest lock", "dir", dir, "error", err)
		}
	}()

	run, err := a.Batches.Start(ctx, dir)
	if err != nil {
		return nil, err
	}

	report, err := a.Processing.Run(ctx, dir)
	metrics.ObserveBatch(report, err)

	if ferr := a.Batches.Finish(context.WithoutCancel(ctx), run, report, err); ferr != nil {
		a.Logger.Error("failed to record batch run", "batch", run.ID, "error", ferr)
	}
	return report, err
}

// Handlers builds the HTTP handlers over the repositories
func (a *App) Handlers() api.Handlers {
	return api.Handlers{
		Health:   handler.NewHealthHandler(a.DB),
		Sessions: handler.NewSessionHandler(service.NewSessionService(a.Sessions, a.Segments, a.Events)),
		Events: handler.NewEventHandler(
			service.NewEventService(a.Events),
			service.NewHotspotService(a.Events, a.Config.Hotspots),
		),
		KPI:     handler.NewKPIHandler(service.NewKPIService(a.Sessions, a.Segments, a.Events, a.Tracks, a.Config.KPI)),
		Batches: handler.NewBatchHandler(a.Batches),
	}
}

// Close releases the cache and the database
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
