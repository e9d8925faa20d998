package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jengzang/fleet-records-backend-go/internal/handler"
	"github.com/jengzang/fleet-records-backend-go/internal/middleware"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Health   *handler.HealthHandler
	Sessions *handler.SessionHandler
	Events   *handler.EventHandler
	KPI      *handler.KPIHandler
	Batches  *handler.BatchHandler
}

// Options configures the router
type Options struct {
	JWTSecret string
	RateLimit int // Requests per minute per client
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// SetupRouter 设置路由
func SetupRouter(h Handlers, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(opts.Logger))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", h.Health.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	api.Use(middleware.JWTAuth(opts.JWTSecret))
	api.Use(middleware.RateLimit(opts.RateLimit, time.Minute))
	{
		sessions := api.Group("/sessions")
		{
			sessions.GET("", h.Sessions.GetSessions)
			sessions.GET("/:id", h.Sessions.GetSessionByID)
		}

		api.GET("/events", h.Events.GetEvents)
		api.GET("/hotspots", h.Events.GetHotspots)
		api.GET("/kpi", h.KPI.GetKPI)

		if h.Batches != nil {
			batches := api.Group("/batches")
			{
				batches.GET("", h.Batches.ListBatches)
				batches.GET("/:id", h.Batches.GetBatch)
			}
		}
	}

	return r
}
