// Package observed reconciles observed precipitation across a fallback
// chain of sources: the Stage IV raster adapter first, the GHCND station
// adapter when the raster fails, and an all-zero degraded result when both
// fail. Results are cached per rounded coordinate with a differentiated TTL
// so transient upstream outages are retried sooner than genuine data.
package observed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lawncast/internal/types"
)

// PrecipitationSource is a single upstream capable of reporting daily
// precipitation amounts (inches) for a set of dates. Both observation
// adapters implement it; the reconciler iterates an ordered list of sources
// rather than hardcoding the chain.
type PrecipitationSource interface {
	// Name identifies the source in logs.
	Name() string
	// FetchDaily returns an amount for every requested date, or an error
	// when the source as a whole is unusable for this request.
	FetchDaily(ctx context.Context, lat, lon float64, dates []string) (map[string]float64, error)
}

// SlotStore is the persisted single-slot cache the reconciler reads and
// writes. Implementations must replace slot values atomically.
type SlotStore interface {
	// GetSlot returns the raw value for key, with false when absent.
	GetSlot(ctx context.Context, key string) (string, bool, error)
	// SetSlot replaces the value for key.
	SetSlot(ctx context.Context, key, value string) error
}

const (
	// FreshTTL is how long a cache entry with genuine data is served.
	FreshTTL = time.Hour
	// DegradedTTL is how long an all-zero entry is served before retry.
	DegradedTTL = 5 * time.Minute

	// observedDays is how many complete days precede today in the result.
	observedDays = 7
)

// cacheEntry is the persisted cache value, keyed by rounded coordinates.
type cacheEntry struct {
	Timestamp int64           `json:"ts"` // epoch milliseconds
	Data      types.PrecipMap `json:"data"`
	Lat       float64         `json:"lat"`
	Lon       float64         `json:"lon"`
}

// Reconciler orchestrates the observation source fallback chain with a
// location-keyed, time-bounded cache.
type Reconciler struct {
	sources []PrecipitationSource
	cache   SlotStore
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
}

// Option is a functional option for configuring a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithLocation sets the timezone that decides which civil date counts as
// today. Must match the ledger's location so both sides agree on the
// observed/forecast boundary. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// New creates a Reconciler that tries sources in the given order.
func New(cache SlotStore, logger *slog.Logger, sources []PrecipitationSource, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		sources: sources,
		cache:   cache,
		logger:  logger,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CacheKey derives the persisted cache key from coordinates rounded to
// three decimal places (roughly 100 m).
func CacheKey(lat, lon float64) string {
	return fmt.Sprintf("observedPrecip_v2_%.3f_%.3f", lat, lon)
}

// ObservedDaily returns observed precipitation for the most recent seven
// complete days preceding today (today excluded), keyed by calendar date.
// Probability is fixed at 1 for every entry: historical data carries no
// forecast uncertainty.
//
// The reconciler is a total function. A valid cache entry is served without
// any network calls; otherwise the source chain runs, and if every source
// fails the result is all zeros, cached with the shorter degraded TTL.
func (r *Reconciler) ObservedDaily(ctx context.Context, lat, lon float64) types.PrecipMap {
	key := CacheKey(lat, lon)
	now := r.now()

	if data, ok := r.cachedData(ctx, key, now); ok {
		return data
	}

	dates := pastDates(now.In(r.loc), observedDays)

	for _, src := range r.sources {
		amounts, err := src.FetchDaily(ctx, lat, lon, dates)
		if err != nil {
			r.logger.WarnContext(ctx, "observation source failed, falling back",
				"source", src.Name(), "code", types.CodeOf(err), "error", err)
			continue
		}
		data := mapAmounts(dates, amounts)
		r.writeCache(ctx, key, now, lat, lon, data)
		return data
	}

	// Every source failed: degrade to zeros so the ledger still renders,
	// and cache with the short TTL so a retry happens soon.
	r.logger.WarnContext(ctx, "all observation sources failed, degrading to zeros",
		"lat", lat, "lon", lon)
	data := mapAmounts(dates, nil)
	r.writeCache(ctx, key, now, lat, lon, data)
	return data
}

// cachedData returns the cached map when a parseable, unexpired entry
// exists. Corrupted entries are treated as a miss, never as an error.
func (r *Reconciler) cachedData(ctx context.Context, key string, now time.Time) (types.PrecipMap, bool) {
	raw, ok, err := r.cache.GetSlot(ctx, key)
	if err != nil {
		r.logger.WarnContext(ctx, "observed cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		r.logger.WarnContext(ctx, "observed cache entry corrupted, refetching",
			"key", key, "error", err)
		return nil, false
	}

	ttl := FreshTTL
	if allZero(entry.Data) {
		ttl = DegradedTTL
	}

	age := now.UnixMilli() - entry.Timestamp
	if age < 0 || age >= ttl.Milliseconds() {
		return nil, false
	}
	return entry.Data, true
}

// writeCache persists the entry; failures are logged, not propagated.
func (r *Reconciler) writeCache(ctx context.Context, key string, now time.Time, lat, lon float64, data types.PrecipMap) {
	entry := cacheEntry{
		Timestamp: now.UnixMilli(),
		Data:      data,
		Lat:       lat,
		Lon:       lon,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		r.logger.WarnContext(ctx, "observed cache marshal failed", "key", key, "error", err)
		return
	}
	if err := r.cache.SetSlot(ctx, key, string(raw)); err != nil {
		r.logger.WarnContext(ctx, "observed cache write failed", "key", key, "error", err)
	}
}

// pastDates returns the n complete days preceding today (today excluded),
// ordered oldest to newest.
func pastDates(now time.Time, n int) []string {
	dates := make([]string, 0, n)
	for i := n; i >= 1; i-- {
		dates = append(dates, now.AddDate(0, 0, -i).Format(types.DateLayout))
	}
	return dates
}

// mapAmounts converts raw per-date amounts into the observed map with
// probability fixed at 1. Dates the source did not report become zero.
func mapAmounts(dates []string, amounts map[string]float64) types.PrecipMap {
	out := make(types.PrecipMap, len(dates))
	for _, d := range dates {
		out[d] = types.DailyPrecipitation{Amount: amounts[d], Probability: 1}
	}
	return out
}

// allZero reports whether every entry in the map (or an empty map) has a
// zero amount. All-zero entries are treated as degraded for TTL purposes.
func allZero(data types.PrecipMap) bool {
	for _, v := range data {
		if v.Amount != 0 {
			return false
		}
	}
	return true
}
