// Package types defines the shared domain model for the LawnCast service:
// daily precipitation readings, the partitioned weekly weather record, user
// settings, water-log entries, and the application error taxonomy.
package types

import (
	"time"
)

// DateLayout is the canonical calendar-date format used for all map keys
// and API date parameters (civil date, local time).
const DateLayout = "2006-01-02"

// ClimateZone classifies the lawn's regional grass climate.
type ClimateZone string

const (
	ZoneCool       ClimateZone = "cool"
	ZoneWarm       ClimateZone = "warm"
	ZoneTransition ClimateZone = "transition"
)

// Valid reports whether the zone is one of the three known climate zones.
func (z ClimateZone) Valid() bool {
	switch z {
	case ZoneCool, ZoneWarm, ZoneTransition:
		return true
	}
	return false
}

// SunExposure classifies how much direct sun the lawn receives.
type SunExposure string

const (
	SunFull    SunExposure = "full"
	SunPartial SunExposure = "partial"
	SunShade   SunExposure = "shade"
)

// Valid reports whether the exposure is one of the three known levels.
func (s SunExposure) Valid() bool {
	switch s {
	case SunFull, SunPartial, SunShade:
		return true
	}
	return false
}

// DailyPrecipitation is the normalized per-day precipitation reading produced
// by every adapter. Amount is in inches (>= 0); Probability is in [0, 1].
// Observed readings carry Probability 1 (historical data has no forecast
// uncertainty).
type DailyPrecipitation struct {
	Amount      float64 `json:"amount"`
	Probability float64 `json:"probability"`
}

// PrecipMap maps a calendar date (DateLayout) to its precipitation reading.
// The ledger partitions dates so a given date appears in at most one of the
// observed and forecast maps of a WeatherRecord.
type PrecipMap map[string]DailyPrecipitation

// WeatherRecord is the merged weekly precipitation ledger, partitioned into
// observed (past, within the current week) and forecast (today and future,
// within the current week) buckets. It is written as a full replacement once
// per refresh cycle and treated as absent once older than one hour or when
// its coordinates no longer match the current settings.
type WeatherRecord struct {
	Timestamp int64     `json:"timestamp"` // epoch milliseconds
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Observed  PrecipMap `json:"observed"`
	Forecast  PrecipMap `json:"forecast"`
}

// WeatherRecordTTL is how long a WeatherRecord remains valid.
const WeatherRecordTTL = time.Hour

// Fresh reports whether the record is still valid at the given instant for
// the given coordinates. A location change invalidates the record immediately,
// regardless of age.
func (r *WeatherRecord) Fresh(now time.Time, lat, lon float64) bool {
	if r == nil {
		return false
	}
	if r.Lat != lat || r.Lon != lon {
		return false
	}
	age := now.UnixMilli() - r.Timestamp
	return age >= 0 && age <= WeatherRecordTTL.Milliseconds()
}

// WaterLogEntry is a user-authored record of manual watering on a single day.
// Minutes is bounded to [0, 240].
type WaterLogEntry struct {
	Date    string `json:"date"`
	Minutes int    `json:"minutes"`
}

// MaxLogMinutes is the upper bound on a single day's logged watering minutes.
const MaxLogMinutes = 240

// Settings holds the user-facing configuration the core consumes. The core
// never mutates Settings; it only reads them.
type Settings struct {
	Zip                  string      `json:"zip"`
	Lat                  float64     `json:"lat"`
	Lon                  float64     `json:"lon"`
	Zone                 ClimateZone `json:"zone"`
	SunExposure          SunExposure `json:"sun_exposure"`
	SprinklerRateInPerHr float64     `json:"sprinkler_rate_in_per_hr"`
}

// DefaultSettings returns the pre-onboarding settings state.
func DefaultSettings() Settings {
	return Settings{
		SunExposure:          SunFull,
		SprinklerRateInPerHr: 0.5,
	}
}
