package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jengzang/fleet-records-backend-go/internal/analysis/events"
	"github.com/jengzang/fleet-records-backend-go/internal/analysis/hotspot"
	"github.com/jengzang/fleet-records-backend-go/internal/analysis/kpi"
	"github.com/jengzang/fleet-records-backend-go/internal/analysis/states"
	"github.com/jengzang/fleet-records-backend-go/internal/cache"
	"github.com/jengzang/fleet-records-backend-go/internal/database"
	"github.com/jengzang/fleet-records-backend-go/internal/geofence"
	"github.com/jengzang/fleet-records-backend-go/internal/ingest"
	"github.com/jengzang/fleet-records-backend-go/internal/segment"
)

// Config 应用配置
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     database.Config    `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Events       events.Config      `yaml:"events"`
	States       states.Config      `yaml:"states"`
	Hotspots     hotspot.Config     `yaml:"hotspots"`
	KPI          kpi.Config         `yaml:"kpi"`
	Geofences    GeofenceConfig     `yaml:"geofences"`
	Cache        CacheConfig        `yaml:"cache"`
	Fleet        FleetConfig        `yaml:"fleet"`
}

// ServerConfig controls the read API
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	JWTSecret       string        `yaml:"jwtSecret"`      // Empty disables authentication
	RateLimit       int           `yaml:"rateLimit"`      // Requests per minute per client, 0 disables
	IngestInterval  time.Duration `yaml:"ingestInterval"` // Periodic ingest of Ingest.Dir, 0 disables
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// IngestConfig controls how input directories are read
type IngestConfig struct {
	Dir        string `yaml:"dir"`
	Workers    int    `yaml:"workers"`
	Timezone   string `yaml:"timezone"` // IANA name of the logger clock
	MaxReasons int    `yaml:"maxReasons"`
}

// SegmentationConfig is a named preset refined by explicit policy keys
type SegmentationConfig struct {
	Preset         string `yaml:"preset"`
	segment.Policy `yaml:",inline"`
}

// GeofenceConfig selects the geofence source
type GeofenceConfig struct {
	URL                     string `yaml:"url"`
	Token                   string `yaml:"token"`
	File                    string `yaml:"file"` // Used when URL is empty
	geofence.ProviderConfig `yaml:",inline"`
}

// CacheConfig enables the shared Redis cache
type CacheConfig struct {
	Enabled           bool `yaml:"enabled"`
	cache.RedisConfig `yaml:",inline"`
}

// FleetConfig maps vehicles to organizations
type FleetConfig struct {
	DefaultOrganization string            `yaml:"defaultOrganization"`
	Vehicles            map[string]string `yaml:"vehicles"`
}

// Load builds the configuration: defaults, then .env, then the YAML file,
// then FLEET_* environment variables. path may be empty.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv("FLEET_CONFIG")
	}

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := parse(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parse decodes YAML over cfg. A segmentation preset replaces the policy
// before the explicit keys are applied.
func parse(data []byte, cfg *Config) error {
	var head struct {
		Segmentation struct {
			Preset string `yaml:"preset"`
		} `yaml:"segmentation"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if name := head.Segmentation.Preset; name != "" {
		policy, err := segment.Preset(name)
		if err != nil {
			return err
		}
		cfg.Segmentation.Policy = policy
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			GracefulTimeout: 10 * time.Second,
			RateLimit:       600,
		},
		Database: database.Config{
			Driver: database.DriverSQLite,
			DSN:    "./data/fleet.db",
		},
		Logging: LoggingConfig{Level: "info"},
		Ingest: IngestConfig{
			Workers:    4,
			Timezone:   "UTC",
			MaxReasons: ingest.DefaultMaxReasons,
		},
		Segmentation: SegmentationConfig{Preset: segment.PresetPermissive, Policy: segment.DefaultPolicy()},
		Events:       events.DefaultConfig(),
		States:       states.DefaultConfig(),
		Hotspots:     hotspot.DefaultConfig(),
		KPI:          kpi.DefaultConfig(),
		Geofences:    GeofenceConfig{ProviderConfig: geofence.DefaultProviderConfig()},
		Cache:        CacheConfig{RedisConfig: cache.RedisConfig{KeyPrefix: "fleet:"}},
		Fleet:        FleetConfig{DefaultOrganization: "default"},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("FLEET_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FLEET_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("FLEET_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FLEET_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("FLEET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FLEET_LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
	if v := os.Getenv("FLEET_INPUT_DIR"); v != "" {
		cfg.Ingest.Dir = v
	}
	if v := os.Getenv("FLEET_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FLEET_WORKERS %q: %w", v, err)
		}
		cfg.Ingest.Workers = n
	}
	if v := os.Getenv("FLEET_TIMEZONE"); v != "" {
		cfg.Ingest.Timezone = v
	}
	if v := os.Getenv("FLEET_SEGMENTATION_PRESET"); v != "" {
		policy, err := segment.Preset(v)
		if err != nil {
			return err
		}
		cfg.Segmentation = SegmentationConfig{Preset: v, Policy: policy}
	}
	if v := os.Getenv("FLEET_GEOFENCE_URL"); v != "" {
		cfg.Geofences.URL = v
	}
	if v := os.Getenv("FLEET_GEOFENCE_TOKEN"); v != "" {
		cfg.Geofences.Token = v
	}
	if v := os.Getenv("FLEET_GEOFENCE_FILE"); v != "" {
		cfg.Geofences.File = v
	}
	if v := os.Getenv("FLEET_REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Enabled = true
	}
	if v := os.Getenv("FLEET_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("FLEET_DEFAULT_ORGANIZATION"); v != "" {
		cfg.Fleet.DefaultOrganization = v
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0, got %d", c.Ingest.Workers)
	}
	if _, err := time.LoadLocation(c.Ingest.Timezone); err != nil {
		return fmt.Errorf("invalid ingest.timezone: %w", err)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when the cache is enabled")
	}

	checks := []struct {
		section string
		err     error
	}{
		{"segmentation", c.Segmentation.Validate()},
		{"events", c.Events.Validate()},
		{"states", c.States.Validate()},
		{"hotspots", c.Hotspots.Validate()},
		{"kpi", c.KPI.Validate()},
	}
	for _, check := range checks {
		if check.err != nil {
			return fmt.Errorf("invalid %s config: %w", check.section, check.err)
		}
	}
	return nil
}

// IngestOptions returns the stream reader options
func (c *Config) IngestOptions(logger *slog.Logger) ingest.Options {
	loc, err := time.LoadLocation(c.Ingest.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return ingest.Options{Location: loc, MaxReasons: c.Ingest.MaxReasons, Logger: logger}
}
