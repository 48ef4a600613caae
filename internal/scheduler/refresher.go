// Package scheduler runs the background refresh loop that keeps the weekly
// weather record warm. The ledger's own TTL decides whether any work happens
// on a tick, so the poll interval can be much shorter than the cache TTL
// without causing extra upstream traffic.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"lawncast/internal/types"
)

// SettingsReader loads the current settings, with found=false before
// onboarding.
type SettingsReader interface {
	Settings(ctx context.Context) (types.Settings, bool, error)
}

// Refreshable is the ledger operation the loop drives.
type Refreshable interface {
	RefreshIfStale(ctx context.Context, settings types.Settings) (*types.WeatherRecord, error)
}

// Refresher periodically re-checks the weather record's freshness.
type Refresher struct {
	settings SettingsReader
	ledger   Refreshable
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher creates a Refresher polling at the given interval.
func NewRefresher(settings SettingsReader, ledger Refreshable, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		settings: settings,
		ledger:   ledger,
		interval: interval,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled. An immediate refresh happens on start so
// a restart does not wait a full interval for warm data.
func (r *Refresher) Run(ctx context.Context) {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "refresh loop stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	settings, found, err := r.settings.Settings(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "refresh tick: reading settings failed", "error", err)
		return
	}
	if !found {
		// Nothing to refresh before onboarding picks a location.
		return
	}
	if _, err := r.ledger.RefreshIfStale(ctx, settings); err != nil {
		r.logger.WarnContext(ctx, "refresh tick: refresh failed",
			"code", types.CodeOf(err), "error", err)
	}
}
