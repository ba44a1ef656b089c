package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/johnwmail/haste/internal/config"
	"github.com/johnwmail/haste/internal/keygen"
	"github.com/johnwmail/haste/internal/metrics"
	"github.com/johnwmail/haste/internal/services"
	"github.com/johnwmail/haste/internal/settings"
	"github.com/johnwmail/haste/internal/storage"
)

// App is a fully wired haste instance: the store, the document service
// and the router in front of them. Both the standalone server and the
// Lambda entrypoint are built on it.
type App struct {
	Config   *config.Config
	Store    storage.Store
	Service  *services.DocumentService
	Settings *settings.Store
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Router   *gin.Engine

	logger *slog.Logger
}

// NewApp opens the configured store and builds the service and router
// on top of it. Static documents are seeded before it returns; a
// document that cannot be seeded is logged and skipped.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gen, err := keygen.New(cfg.KeyGenerator, cfg.KeyLength)
	if err != nil {
		return nil, err
	}

	st, err := settings.Open(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.StorageType, storage.Params(cfg.StorageOptions))
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.StorageType, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.Register(reg)

	svc := services.NewDocumentService(store, gen, services.Options{
		MaxLength:      cfg.MaxLength,
		MaxKeyAttempts: cfg.MaxKeyAttempts,
		RecentLimit:    cfg.RecentLimit,
		Timeout:        cfg.BackendTimeout,
		Expiration: services.ExpirationPolicy{
			Default: cfg.DefaultTTL,
			Max:     cfg.MaxTTL,
		},
	}, logger, m)

	if err := svc.SeedStaticFiles(ctx, cfg.Documents); err != nil {
		logger.Warn("some static documents were not seeded", "error", err)
	}

	router := NewRouter(Deps{
		Config:   cfg,
		Service:  svc,
		Settings: st,
		Metrics:  m,
		Gatherer: reg,
		Logger:   logger,
		Version:  version,
	})

	return &App{
		Config:   cfg,
		Store:    store,
		Service:  svc,
		Settings: st,
		Metrics:  m,
		Registry: reg,
		Router:   router,
		logger:   logger,
	}, nil
}

// StartJanitor starts the expiry sweeper when the store needs one. It
// stops with ctx.
func (a *App) StartJanitor(ctx context.Context) bool {
	started := services.StartJanitor(ctx, a.Store, a.Config.JanitorInterval, a.logger, a.Metrics)
	if started {
		a.logger.Info("janitor started", "interval", a.Config.JanitorInterval)
	} else {
		a.logger.Info("storage expires documents natively, janitor not started", "storage", a.Config.StorageType)
	}
	return started
}

// Close releases the store
func (a *App) Close() error {
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("close %s storage: %w", a.Config.StorageType, err)
	}
	return nil
}
