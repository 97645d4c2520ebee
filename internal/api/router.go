package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leozw/uptime-sentinel/internal/api/handlers"
	"github.com/leozw/uptime-sentinel/internal/api/middleware"
	"github.com/leozw/uptime-sentinel/internal/config"
)

// Pinger is anything /ready can probe, usually the monitor store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Config *config.ServerConfig
	Router *gin.Engine
}

// NewServer builds the operational HTTP surface: liveness, readiness and the
// Prometheus scrape endpoint.
func NewServer(cfg *config.ServerConfig, store Pinger, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	server := &Server{
		Config: cfg,
		Router: router,
	}

	h := handlers.NewHandler(store, logger)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return server
}

func (s *Server) Addr() string {
	return ":" + s.Config.Port
}
