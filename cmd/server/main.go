package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jengzang/fleet-records-backend-go/internal/api"
	"github.com/jengzang/fleet-records-backend-go/internal/app"
	"github.com/jengzang/fleet-records-backend-go/internal/config"
	"github.com/jengzang/fleet-records-backend-go/internal/logging"
	"github.com/jengzang/fleet-records-backend-go/internal/metrics"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	gin.SetMode(gin.ReleaseMode)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// 初始化路由
	router := api.SetupRouter(a.Handlers(), api.Options{
		JWTSecret: cfg.Server.JWTSecret,
		RateLimit: cfg.Server.RateLimit,
		Gatherer:  prometheus.DefaultGatherer,
		Logger:    logger,
	})
	if cfg.Server.JWTSecret == "" {
		logger.Warn("jwtSecret is empty, the API is unauthenticated")
	}

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", "error", err)
			stop()
		}
	}()

	if cfg.Server.IngestInterval > 0 && cfg.Ingest.Dir != "" {
		go ingestLoop(ctx, a, cfg.Ingest.Dir, cfg.Server.IngestInterval, logger)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	logger.Info("server stopped")
}

// ingestLoop processes dir on every tick until ctx is cancelled
func ingestLoop(ctx context.Context, a *app.App, dir string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := a.Ingest(ctx, dir)
		switch {
		case errors.Is(err, app.ErrBatchRunning):
			logger.Info("skipping ingest, another batch holds the lock", "dir", dir)
		case err != nil:
			logger.Error("periodic ingest failed", "dir", dir, "error", err)
		default:
			logger.Info("periodic ingest finished", "dir", dir, "stored", report.Stored, "events", report.Events)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
