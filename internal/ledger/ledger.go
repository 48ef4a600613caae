// Package ledger maintains the persisted weekly precipitation record: one
// observed map and one forecast map, both clipped to the current local
// Sunday-to-Saturday week and partitioned so no date appears in both.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"lawncast/internal/types"
)

// ForecastSource produces the daily precipitation forecast for a location.
// The NWS adapter implements it and is total: failures yield an empty map.
type ForecastSource interface {
	ForecastDaily(ctx context.Context, lat, lon float64) types.PrecipMap
}

// ObservedSource produces reconciled observed precipitation for a location.
// The reconciler implements it and is total: failures yield an all-zero map.
type ObservedSource interface {
	ObservedDaily(ctx context.Context, lat, lon float64) types.PrecipMap
}

// RecordStore persists the weather record as a single replaceable slot.
type RecordStore interface {
	WeatherRecord(ctx context.Context) (*types.WeatherRecord, error)
	SetWeatherRecord(ctx context.Context, rec *types.WeatherRecord) error
}

// Ledger coordinates the forecast and observed fetches and keeps the
// persisted record within its freshness window.
type Ledger struct {
	forecast ForecastSource
	observed ObservedSource
	store    RecordStore
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

// Option is a functional option for configuring a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLocation sets the timezone used for week bounds and the
// observed/forecast boundary. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// New creates a Ledger.
func New(store RecordStore, forecast ForecastSource, observed ObservedSource, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		forecast: forecast,
		observed: observed,
		store:    store,
		logger:   logger,
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RefreshIfStale returns the current weather record, fetching and persisting
// a new one when the stored record is missing, expired, or was captured for
// different coordinates. The returned record always reflects the settings'
// location.
func (l *Ledger) RefreshIfStale(ctx context.Context, settings types.Settings) (*types.WeatherRecord, error) {
	now := l.now()

	rec, err := l.store.WeatherRecord(ctx)
	if err != nil {
		l.logger.WarnContext(ctx, "reading weather record failed, refetching", "error", err)
	} else if rec.Fresh(now, settings.Lat, settings.Lon) {
		return rec, nil
	}

	var (
		forecast types.PrecipMap
		observed types.PrecipMap
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		forecast = l.forecast.ForecastDaily(gctx, settings.Lat, settings.Lon)
		return nil
	})
	g.Go(func() error {
		observed = l.observed.ObservedDaily(gctx, settings.Lat, settings.Lon)
		return nil
	})
	// Both sources are total, so Wait cannot fail, but keep the contract.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	obsPart, fcPart := l.partition(observed, forecast, now)

	fresh := &types.WeatherRecord{
		Timestamp: now.UnixMilli(),
		Lat:       settings.Lat,
		Lon:       settings.Lon,
		Observed:  obsPart,
		Forecast:  fcPart,
	}
	if err := l.store.SetWeatherRecord(ctx, fresh); err != nil {
		l.logger.WarnContext(ctx, "persisting weather record failed", "error", err)
	}
	return fresh, nil
}

// weekBounds returns the local Sunday and Saturday dates of the week
// containing now, formatted as dates.
func (l *Ledger) weekBounds(now time.Time) (weekStart, weekEnd string) {
	local := now.In(l.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
	start := midnight.AddDate(0, 0, -int(midnight.Weekday()))
	end := start.AddDate(0, 0, 6)
	return start.Format(types.DateLayout), end.Format(types.DateLayout)
}

// partition clips both maps to the current week and enforces the boundary:
// observed keeps weekStart <= date < today, forecast keeps
// today <= date <= weekEnd. Everything else is dropped. Date strings are
// lexicographically ordered so plain string comparison suffices.
func (l *Ledger) partition(observed, forecast types.PrecipMap, now time.Time) (types.PrecipMap, types.PrecipMap) {
	weekStart, weekEnd := l.weekBounds(now)
	today := now.In(l.loc).Format(types.DateLayout)

	obsOut := make(types.PrecipMap)
	for date, v := range observed {
		if date >= weekStart && date < today {
			obsOut[date] = v
		}
	}
	fcOut := make(types.PrecipMap)
	for date, v := range forecast {
		if date >= today && date <= weekEnd {
			fcOut[date] = v
		}
	}
	return obsOut, fcOut
}
