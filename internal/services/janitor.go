package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/johnwmail/haste/internal/metrics"
	"github.com/johnwmail/haste/internal/storage"
)

// StartJanitor launches a background janitor that deletes expired
// documents. It returns false without starting when the store has no bulk
// expiry (backends with native TTL).
func StartJanitor(ctx context.Context, store storage.Store, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) bool {
	sweeper, ok := store.(storage.Sweeper)
	if !ok {
		return false
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepOnce(ctx, sweeper, logger, m)
			}
		}
	}()
	return true
}

func sweepOnce(ctx context.Context, sweeper storage.Sweeper, logger *slog.Logger, m *metrics.Metrics) int {
	c, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	removed, err := sweeper.DeleteExpired(c, time.Now())
	if err != nil {
		logger.Error("janitor error", "error", err)
	}
	if removed > 0 {
		m.Deleted("expired", removed)
		logger.Info("janitor removed expired documents", "count", removed)
	}
	return removed
}
