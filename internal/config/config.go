// Package config defines the configuration structure for the LawnCast service.
// Configuration is loaded once at process startup and is immutable thereafter.
// It follows 12-Factor principles by strictly separating code from
// configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"lawncast/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the LawnCast service.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Store    StoreConfig
	Forecast ForecastConfig
	Raster   RasterConfig
	Stations StationConfig
	Geocode  GeocodeConfig
	Refresh  RefreshConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// StoreConfig holds the local persisted store location.
type StoreConfig struct {
	// Path is the sqlite database file. ":memory:" is accepted for tests.
	Path string `envconfig:"STORE_PATH" default:"lawncast.db" validate:"required"`
}

// ForecastConfig holds the gridded forecast API settings.
type ForecastConfig struct {
	// BaseURL is the points-lookup API root (no trailing slash).
	BaseURL string `envconfig:"NWS_BASE_URL" default:"https://api.weather.gov" validate:"required,url"`
	// UserAgent is required by API policy; it must be descriptive and
	// include a contact address.
	UserAgent string        `envconfig:"NWS_USER_AGENT" default:"(LawnCast, contact@lawncast.app)"`
	Timeout   time.Duration `envconfig:"NWS_TIMEOUT" default:"5s"`
}

// RasterConfig holds the Stage IV precipitation raster settings.
type RasterConfig struct {
	// UpstreamURL is the raster host root the proxy forwards to.
	UpstreamURL string `envconfig:"STAGEIV_UPSTREAM_URL" default:"https://water.noaa.gov/resources/downloads/precip/stageIV" validate:"required,url"`
	// BaseURL is where the raster adapter fetches rasters from; in normal
	// operation this is the service's own proxy mount.
	BaseURL string        `envconfig:"STAGEIV_BASE_URL" default:"http://localhost:8080/api/noaa-precip" validate:"required,url"`
	Timeout time.Duration `envconfig:"STAGEIV_TIMEOUT" default:"15s"`
	// Concurrency bounds the number of per-day raster fetches in flight.
	Concurrency int `envconfig:"STAGEIV_CONCURRENCY" default:"2" validate:"min=1,max=8"`
}

// StationConfig holds the NCEI climate-data API settings.
type StationConfig struct {
	BaseURL string `envconfig:"NCEI_BASE_URL" default:"https://www.ncei.noaa.gov/cdo-web/api/v2" validate:"required,url"`
	// Token is the NCEI CDO API credential. The station adapter fails fast
	// with a configuration error when it is absent.
	Token    SecretString  `envconfig:"NCEI_TOKEN"`
	Timeout  time.Duration `envconfig:"NCEI_TIMEOUT" default:"5s"`
	RadiusKm float64       `envconfig:"NCEI_RADIUS_KM" default:"30"`
}

// GeocodeConfig holds the Nominatim geocoding settings.
type GeocodeConfig struct {
	BaseURL   string        `envconfig:"NOMINATIM_URL" default:"https://nominatim.openstreetmap.org" validate:"required,url"`
	UserAgent string        `envconfig:"NOMINATIM_USER_AGENT" default:"LawnCast (contact@lawncast.app)"`
	Timeout   time.Duration `envconfig:"NOMINATIM_TIMEOUT" default:"5s"`
	// MinInterval is the minimum spacing between upstream geocoding
	// requests (Nominatim usage policy: at most one request per second).
	MinInterval time.Duration `envconfig:"NOMINATIM_MIN_INTERVAL" default:"1s"`
}

// RefreshConfig tunes the background ledger refresh loop.
type RefreshConfig struct {
	Interval time.Duration `envconfig:"REFRESH_INTERVAL" default:"5m" validate:"min=10s"`
}
