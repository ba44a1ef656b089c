package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnwmail/haste/handlers"
	"github.com/johnwmail/haste/internal/config"
	"github.com/johnwmail/haste/internal/metrics"
	"github.com/johnwmail/haste/internal/services"
	"github.com/johnwmail/haste/internal/settings"
)

// Deps are the collaborators the router dispatches to
type Deps struct {
	Config   *config.Config
	Service  *services.DocumentService
	Settings *settings.Store
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics; it is only served when set and metrics
	// are enabled.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	Version  string
}

// NewRouter creates and configures the Gin router
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := d.Config

	documentHandler := handlers.NewDocumentHandler(d.Service, cfg, logger)
	systemHandler := handlers.NewSystemHandler(cfg.StorageType, d.Version)
	webuiHandler := handlers.NewWebUIHandler(cfg.StaticDir)

	count, window, _ := config.ParseRateLimit(cfg.RateLimit)
	limit := newRateLimiter(count, window, d.Metrics).middleware()

	router := gin.New()
	router.Use(jsonRecovery(logger))
	router.Use(requestLogger(logger))
	router.Use(cors())

	// "docs" is kept as an alias of "documents" for older clients
	for _, prefix := range []string{"/documents", "/docs"} {
		router.POST(prefix, limit, documentHandler.Create)
		router.GET(prefix+"/:id", documentHandler.Get)
		router.HEAD(prefix+"/:id", documentHandler.Head)
		router.DELETE(prefix+"/:id", documentHandler.Delete)
		router.POST("/public"+prefix, limit, basicAuth(d.Settings), documentHandler.CreatePublic)
	}

	router.GET("/public/:id", documentHandler.Public)
	router.HEAD("/public/:id", documentHandler.Head)
	router.GET("/raw/:id", documentHandler.Raw)
	router.GET("/recent", documentHandler.Recent)
	router.GET("/keys/:keys", documentHandler.Keys)

	if cfg.EnablePassEndpoint {
		passHandler := handlers.NewPassHandler(d.Settings, logger)
		router.GET("/pass", passHandler.Get)
		router.POST("/pass", passHandler.Rotate)
	}

	router.GET("/health", systemHandler.Health)
	if cfg.EnableMetrics && d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	router.GET("/", webuiHandler.Index)
	router.NoRoute(webuiHandler.Fallback)

	return router
}
