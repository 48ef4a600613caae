// Package handlers implements the /v1 API surface: the watering
// recommendation, settings, the manual water log, geocoding and full reset.
// Handlers stay thin; all domain logic lives behind the injected interfaces.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"lawncast/internal/geocode"
	"lawncast/internal/types"
)

// Store is the persistence surface the handlers need. *store.Store
// implements it.
type Store interface {
	Settings(ctx context.Context) (types.Settings, bool, error)
	SetSettings(ctx context.Context, settings types.Settings) error
	WaterLogEntry(ctx context.Context, date string) (types.WaterLogEntry, bool, error)
	SetWaterLogEntry(ctx context.Context, entry types.WaterLogEntry) error
	DeleteWaterLogEntry(ctx context.Context, date string) error
	WaterLogRange(ctx context.Context, start, end string) ([]types.WaterLogEntry, error)
	Reset(ctx context.Context) error
}

// WeatherLedger refreshes and returns the weekly precipitation record.
type WeatherLedger interface {
	RefreshIfStale(ctx context.Context, settings types.Settings) (*types.WeatherRecord, error)
}

// Geocoder resolves free-text location queries.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]geocode.Result, error)
}

// Handler carries the dependencies for all /v1 endpoints.
type Handler struct {
	store    Store
	ledger   WeatherLedger
	geocoder Geocoder
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

// Option is a functional option for configuring a Handler.
type Option func(*Handler)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// WithLocation sets the timezone used for week bounds. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// New creates a Handler.
func New(store Store, ledger WeatherLedger, geocoder Geocoder, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		store:    store,
		ledger:   ledger,
		geocoder: geocoder,
		logger:   logger,
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers all /v1 routes.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/recommendation", h.HandleGetRecommendation)
	r.Get("/settings", h.HandleGetSettings)
	r.Put("/settings", h.HandlePutSettings)
	r.Get("/log/{date}", h.HandleGetLogEntry)
	r.Put("/log/{date}", h.HandlePutLogEntry)
	r.Delete("/log/{date}", h.HandleDeleteLogEntry)
	r.Get("/geocode", h.HandleGeocode)
	r.Post("/reset", h.HandleReset)
}

// weekBounds returns the local Sunday and Saturday dates of the week
// containing now.
func (h *Handler) weekBounds(now time.Time) (string, string) {
	local := now.In(h.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, h.loc)
	start := midnight.AddDate(0, 0, -int(midnight.Weekday()))
	return start.Format(types.DateLayout), start.AddDate(0, 0, 6).Format(types.DateLayout)
}
