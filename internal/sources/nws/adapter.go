// Package nws implements the forecast adapter for the api.weather.gov
// gridded forecast service.
//
// The flow is two hops: a point lookup resolves coordinates to a grid-cell
// descriptor carrying a forecastGridData URL, and that URL yields sub-daily
// quantitativePrecipitation and probabilityOfPrecipitation interval series.
// The adapter aggregates both into daily buckets keyed by the civil date of
// each interval's start instant.
//
// The adapter is a total function: any failure anywhere in the pipeline
// (network, parse, malformed shape) is logged and yields an empty map, so a
// forecast outage degrades the recommendation instead of blocking it.
package nws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lawncast/internal/fetch"
	"lawncast/internal/types"
)

// mmPerInch converts the gridpoint quantitativePrecipitation values, which
// are reported in millimeters, to inches.
const mmPerInch = 25.4

// Adapter queries the gridded forecast API and aggregates its sub-daily
// series into daily precipitation buckets.
type Adapter struct {
	client  *fetch.Client
	baseURL string
	loc     *time.Location
	logger  *slog.Logger
}

// New creates a forecast Adapter. baseURL is the points-lookup API root
// without a trailing slash. loc determines which civil calendar dates
// intervals bucket into; nil selects time.Local.
func New(client *fetch.Client, baseURL string, loc *time.Location, logger *slog.Logger) *Adapter {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:  client,
		baseURL: baseURL,
		loc:     loc,
		logger:  logger,
	}
}

// pointsResponse is the grid-cell descriptor returned by the point lookup.
type pointsResponse struct {
	Properties struct {
		GridID           string `json:"gridId"`
		ForecastGridData string `json:"forecastGridData"`
	} `json:"properties"`
}

// gridValue is a single {validInterval, value} entry in a gridpoint series.
// Value is nil when the upstream has no data for the interval.
type gridValue struct {
	ValidTime string   `json:"validTime"`
	Value     *float64 `json:"value"`
}

// gridResponse carries the two gridpoint series the adapter consumes.
type gridResponse struct {
	Properties struct {
		ProbabilityOfPrecipitation struct {
			Values []gridValue `json:"values"`
		} `json:"probabilityOfPrecipitation"`
		QuantitativePrecipitation struct {
			Values []gridValue `json:"values"`
		} `json:"quantitativePrecipitation"`
	} `json:"properties"`
}

// dayBucket accumulates one calendar date's interval data before the final
// probability selection.
type dayBucket struct {
	amount          float64 // summed inches
	precipIntervals []interval
	pops            []float64 // PoP values in [0, 1]
	popIntervals    []interval
}

// ForecastDaily returns daily precipitation for whatever date range the
// upstream forecast spans; the ledger filters to the week it needs.
// On any failure it returns an empty (non-nil) map.
func (a *Adapter) ForecastDaily(ctx context.Context, lat, lon float64) types.PrecipMap {
	result := types.PrecipMap{}

	grid, err := a.resolveGrid(ctx, lat, lon)
	if err != nil {
		a.logger.WarnContext(ctx, "forecast point lookup failed",
			"lat", lat, "lon", lon, "error", err)
		return result
	}

	var series gridResponse
	if err := a.client.GetJSON(ctx, grid, nil, &series); err != nil {
		a.logger.WarnContext(ctx, "forecast grid fetch failed",
			"url", grid, "error", err)
		return result
	}

	buckets := make(map[string]*dayBucket)
	bucket := func(date string) *dayBucket {
		b, ok := buckets[date]
		if !ok {
			b = &dayBucket{}
			buckets[date] = b
		}
		return b
	}

	for _, v := range series.Properties.QuantitativePrecipitation.Values {
		if v.Value == nil {
			continue
		}
		iv, err := parseValidTime(v.ValidTime)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping malformed precipitation interval",
				"validTime", v.ValidTime, "error", err)
			continue
		}
		b := bucket(a.dateOf(iv.Start))
		b.amount += *v.Value / mmPerInch
		b.precipIntervals = append(b.precipIntervals, iv)
	}

	for _, v := range series.Properties.ProbabilityOfPrecipitation.Values {
		if v.Value == nil {
			continue
		}
		iv, err := parseValidTime(v.ValidTime)
		if err != nil {
			a.logger.WarnContext(ctx, "skipping malformed probability interval",
				"validTime", v.ValidTime, "error", err)
			continue
		}
		b := bucket(a.dateOf(iv.Start))
		b.pops = append(b.pops, clamp01(*v.Value/100))
		b.popIntervals = append(b.popIntervals, iv)
	}

	for date, b := range buckets {
		result[date] = types.DailyPrecipitation{
			Amount:      b.amount,
			Probability: b.selectProbability(),
		}
	}

	return result
}

// resolveGrid performs the point lookup and validates the descriptor shape.
func (a *Adapter) resolveGrid(ctx context.Context, lat, lon float64) (string, error) {
	url := fmt.Sprintf("%s/points/%.4f,%.4f", a.baseURL, lat, lon)

	var pt pointsResponse
	if err := a.client.GetJSON(ctx, url, nil, &pt); err != nil {
		return "", err
	}
	if pt.Properties.ForecastGridData == "" {
		return "", types.NewAppError(types.ErrCodeUpstreamParse,
			fmt.Sprintf("point response for %.4f,%.4f lacks forecastGridData", lat, lon), nil)
	}
	return pt.Properties.ForecastGridData, nil
}

// dateOf returns the civil date of an instant in the adapter's location.
func (a *Adapter) dateOf(t time.Time) string {
	return t.In(a.loc).Format(types.DateLayout)
}

// selectProbability picks the day's probability.
//
// For dates with nonzero precipitation: the maximum probability among
// PoP intervals that overlap any precipitation interval for the date, falling
// back to the maximum recorded PoP when nothing overlaps. For dates with
// zero precipitation: the maximum recorded PoP, or 0 when none exists.
func (b *dayBucket) selectProbability() float64 {
	if len(b.pops) == 0 {
		return 0
	}

	if b.amount > 0 {
		overlapping := -1.0
		for i, popIV := range b.popIntervals {
			for _, precipIV := range b.precipIntervals {
				if popIV.overlaps(precipIV) {
					if b.pops[i] > overlapping {
						overlapping = b.pops[i]
					}
					break
				}
			}
		}
		if overlapping >= 0 {
			return overlapping
		}
	}

	max := b.pops[0]
	for _, p := range b.pops[1:] {
		if p > max {
			max = p
		}
	}
	return max
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
