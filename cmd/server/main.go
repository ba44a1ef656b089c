package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/haste/internal/config"
	"github.com/johnwmail/haste/internal/server"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closeLog.Close() }()
	slog.SetDefault(logger)

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting haste",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
		"storage", cfg.StorageType,
		"key_generator", cfg.KeyGenerator,
		"address", cfg.ListenAddr())

	if err := run(cfg, logger); err != nil {
		logger.Error("haste stopped", "error", err)
		_ = closeLog.Close()
		os.Exit(1)
	}
}

// run serves until SIGINT or SIGTERM, then shuts down gracefully
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.NewApp(ctx, cfg, logger, version)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	app.StartJanitor(ctx)

	httpServer := server.NewHTTPServer(cfg.ListenAddr(), app.Router, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	logger.Info("Ready to accept connections",
		"curl_usage", fmt.Sprintf("echo 'test' | curl --data-binary @- http://%s/documents", httpServer.Addr()))

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// setupLogging builds the process logger. Text goes to stderr unless a
// log file or the json format is configured.
func setupLogging(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	// Configure log level
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var out io.WriteCloser = nopCloser{os.Stderr}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		out = file
	}

	var handler slog.Handler
	if cfg.LogFile != "" || cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), out, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
