package geofence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jengzang/fleet-records-backend-go/internal/cache"
	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// ErrUnavailable is returned when neither the source nor the cache can supply geofences
var ErrUnavailable = errors.New("geofences unavailable")

// Origin tells where a snapshot came from
type Origin string

const (
	OriginLive  Origin = "live"
	OriginCache Origin = "cache"
	OriginNone  Origin = "none" // Classification runs in GPS-only mode
)

// Snapshot is the geofence set used for one organization during a batch
type Snapshot struct {
	OrganizationID string
	Index          *Index
	Origin         Origin
	FetchedAt      time.Time
	Err            error // Last fetch error when Origin is not live
}

// ProviderConfig controls retries and the last-known-good cache
type ProviderConfig struct {
	Retries  int           `yaml:"retries"`
	Backoff  time.Duration `yaml:"backoff"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cacheTTL"` // 0 keeps entries forever
}

// DefaultProviderConfig returns three attempts with a short backoff
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Retries:  3,
		Backoff:  200 * time.Millisecond,
		Timeout:  5 * time.Second,
		CacheTTL: 7 * 24 * time.Hour,
	}
}

// cachedSet is the cache payload
type cachedSet struct {
	FetchedAt time.Time         `json:"fetched_at"`
	Geofences []models.Geofence `json:"geofences"`
}

// Provider loads geofences with bounded retries and falls back to the last
// known good set stored in the cache
type Provider struct {
	source Source
	cache  cache.Provider
	cfg    ProviderConfig
	logger *slog.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// NewProvider creates a provider. A nil cache disables fallback.
func NewProvider(source Source, c cache.Provider, cfg ProviderConfig, logger *slog.Logger) *Provider {
	if c == nil {
		c = cache.NoopProvider{}
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		source: source,
		cache:  c,
		cfg:    cfg,
		logger: logger.With("component", "geofence"),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func cacheKey(organizationID string) string {
	return "geofences:" + organizationID
}

// Load returns the geofences of an organization. It never fails the batch:
// when the source and cache are both unavailable it returns an empty snapshot
// with Origin none and Err wrapping ErrUnavailable.
func (p *Provider) Load(ctx context.Context, organizationID string) Snapshot {
	fences, err := p.fetch(ctx, organizationID)
	if err == nil {
		ix, ierr := NewIndex(fences)
		if ierr == nil {
			p.store(ctx, organizationID, fences)
			return Snapshot{OrganizationID: organizationID, Index: ix, Origin: OriginLive, FetchedAt: p.now()}
		}
		err = fmt.Errorf("failed to index geofences: %w", ierr)
	}

	p.logger.Warn("geofence fetch failed, trying cache", "organization", organizationID, "error", err)
	if snap, ok := p.fromCache(ctx, organizationID, err); ok {
		return snap
	}

	p.logger.Warn("no geofences available, classifying in GPS-only mode", "organization", organizationID)
	return Snapshot{
		OrganizationID: organizationID,
		Origin:         OriginNone,
		Err:            fmt.Errorf("%w for organization %s: %v", ErrUnavailable, organizationID, err),
	}
}

func (p *Provider) fetch(ctx context.Context, organizationID string) ([]models.Geofence, error) {
	if p.source == nil {
		return nil, errors.New("no geofence source configured")
	}
	var lastErr error
	for attempt := 0; attempt < p.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, backoff(p.cfg.Backoff, attempt)); err != nil {
				return nil, err
			}
		}
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		}
		fences, err := p.source.Fetch(attemptCtx, organizationID)
		cancel()
		if err == nil {
			return fences, nil
		}
		lastErr = err
		p.logger.Debug("geofence fetch attempt failed", "organization", organizationID, "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed to fetch geofences after %d attempts: %w", p.cfg.Retries, lastErr)
}

func (p *Provider) store(ctx context.Context, organizationID string, fences []models.Geofence) {
	payload, err := json.Marshal(cachedSet{FetchedAt: p.now().UTC(), Geofences: fences})
	if err != nil {
		p.logger.Warn("failed to encode geofences for cache", "error", err)
		return
	}
	if err := p.cache.Set(ctx, cacheKey(organizationID), payload, p.cfg.CacheTTL); err != nil {
		p.logger.Warn("failed to cache geofences", "organization", organizationID, "error", err)
	}
}

func (p *Provider) fromCache(ctx context.Context, organizationID string, cause error) (Snapshot, bool) {
	payload, err := p.cache.Get(ctx, cacheKey(organizationID))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.logger.Warn("geofence cache read failed", "organization", organizationID, "error", err)
		}
		return Snapshot{}, false
	}
	var set cachedSet
	if err := json.Unmarshal(payload, &set); err != nil {
		p.logger.Warn("discarding corrupt geofence cache entry", "organization", organizationID, "error", err)
		return Snapshot{}, false
	}
	ix, err := NewIndex(set.Geofences)
	if err != nil {
		p.logger.Warn("discarding invalid cached geofences", "organization", organizationID, "error", err)
		return Snapshot{}, false
	}
	return Snapshot{
		OrganizationID: organizationID,
		Index:          ix,
		Origin:         OriginCache,
		FetchedAt:      set.FetchedAt,
		Err:            cause,
	}, true
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	return base * time.Duration(1<<(attempt-1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
