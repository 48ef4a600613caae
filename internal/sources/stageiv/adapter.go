// Package stageiv implements the raster observation adapter for the Stage IV
// daily precipitation product. Each requested date maps to one GeoTIFF
// raster; the adapter reprojects the target coordinate into the raster's
// polar stereographic grid, samples the covering pixel and a 5x5
// neighborhood, and reconciles center versus neighborhood readings to
// compensate for raster misalignment and no-data artifacts.
package stageiv

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lawncast/internal/fetch"
	"lawncast/internal/types"
)

// noDataThreshold marks the no-data sentinel: raster values below it are
// discarded. The threshold and the neighborhood heuristics below were tuned
// against observed raster discrepancies; keep them as-is.
const noDataThreshold = -1000.0

// neighborhoodRadius gives the 5x5 sampling window around the center pixel.
const neighborhoodRadius = 2

// SourceName identifies this adapter in reconciler logs.
const SourceName = "stageiv"

// Adapter fetches per-day precipitation rasters and samples them at a
// coordinate. It is consumed by the observed-precipitation reconciler via
// the PrecipitationSource interface.
type Adapter struct {
	client      *fetch.Client
	baseURL     string
	concurrency int
	logger      *slog.Logger
}

// New creates a raster Adapter. baseURL is the proxy mount serving
// YYYY/MM/DD raster paths. concurrency bounds the number of per-date
// fetches in flight; values below 1 are treated as 1 (fully sequential).
func New(client *fetch.Client, baseURL string, concurrency int, logger *slog.Logger) *Adapter {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:      client,
		baseURL:     baseURL,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Name returns the adapter's source name.
func (a *Adapter) Name() string { return SourceName }

// rasterURL builds the per-day raster resource path. The naming convention
// is fixed: YYYY/MM/DD/nws_precip_1day_YYYYMMDD_conus.tif.
func (a *Adapter) rasterURL(date string) (string, error) {
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	compact := strings.ReplaceAll(date, "-", "")
	return fmt.Sprintf("%s/%s/%s/%s/nws_precip_1day_%s_conus.tif",
		a.baseURL, date[:4], date[5:7], date[8:10], compact), nil
}

// FetchDaily returns precipitation amounts in inches for each requested
// date. Dates are processed with bounded parallelism and strict per-date
// failure isolation: a date that fails to fetch or parse records 0 and does
// not abort the others. Only when every date fails does the call fail as a
// whole, with an aggregate error that lets the reconciler fall back to the
// station adapter.
func (a *Adapter) FetchDaily(ctx context.Context, lat, lon float64, dates []string) (map[string]float64, error) {
	result := make(map[string]float64, len(dates))
	var mu sync.Mutex
	var failures int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, date := range dates {
		date := date
		g.Go(func() error {
			amount, err := a.fetchDate(gctx, lat, lon, date)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.WarnContext(gctx, "raster date failed",
					"date", date, "error", err)
				failures++
				result[date] = 0
				return nil // per-date isolation: never abort siblings
			}
			result[date] = amount
			return nil
		})
	}

	// Workers never return errors; Wait only propagates context failure.
	if err := g.Wait(); err != nil {
		return nil, types.NewAppError(types.ErrCodeRasterAllDatesFailed,
			"raster fetch canceled", err)
	}

	if len(dates) > 0 && failures == len(dates) {
		return nil, types.NewAppError(types.ErrCodeRasterAllDatesFailed,
			fmt.Sprintf("all %d raster date requests failed", len(dates)), nil)
	}

	return result, nil
}

// fetchDate loads one date's raster and samples it at the coordinate.
func (a *Adapter) fetchDate(ctx context.Context, lat, lon float64, date string) (float64, error) {
	url, err := a.rasterURL(date)
	if err != nil {
		return 0, err
	}

	data, err := a.client.GetBytes(ctx, url)
	if err != nil {
		return 0, err
	}

	raster, err := DecodeRaster(data)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamParse,
			fmt.Sprintf("decoding raster %s", url), err)
	}

	projX, projY := projectHRAP(lat, lon)
	col, row := pixelAt(raster, projX, projY)

	if col < 0 || col >= raster.Width || row < 0 || row >= raster.Height {
		// Outside raster coverage: a valid zero reading, not a failure.
		a.logger.DebugContext(ctx, "coordinate outside raster coverage",
			"date", date, "lat", lat, "lon", lon, "col", col, "row", row)
		return 0, nil
	}

	return samplePrecip(raster, col, row), nil
}

// neighborhoodStats summarizes the valid values in the sampling window.
type neighborhoodStats struct {
	max   float64
	avg   float64
	count int
}

// sampleNeighborhood collects valid (non no-data) values in the 5x5 window
// around the center pixel, clipped to raster bounds. The center pixel
// itself is included.
func sampleNeighborhood(r *Raster, centerCol, centerRow int) neighborhoodStats {
	var stats neighborhoodStats
	var sum float64

	for dy := -neighborhoodRadius; dy <= neighborhoodRadius; dy++ {
		for dx := -neighborhoodRadius; dx <= neighborhoodRadius; dx++ {
			v, ok := r.Sample(centerCol+dx, centerRow+dy)
			if !ok || v < noDataThreshold {
				continue
			}
			if stats.count == 0 || v > stats.max {
				stats.max = v
			}
			sum += v
			stats.count++
		}
	}

	if stats.count > 0 {
		stats.avg = sum / float64(stats.count)
	}
	return stats
}

// samplePrecip reconciles the center pixel against its neighborhood:
//
//   - center missing/no-data/zero but neighborhood has a positive maximum:
//     use that maximum
//   - center positive but the neighborhood maximum exceeds it by more than
//     50%: use the greater of center and the neighborhood average
//   - otherwise: use the center value as-is
//
// Any remaining no-data or negative result becomes 0.
func samplePrecip(r *Raster, col, row int) float64 {
	center, centerOK := r.Sample(col, row)
	stats := sampleNeighborhood(r, col, row)

	centerMissing := !centerOK || center < noDataThreshold || center == 0

	var final float64
	switch {
	case centerMissing && stats.max > 0:
		final = stats.max
	case centerOK && center > 0 && stats.max > center*1.5:
		final = math.Max(center, stats.avg)
	case centerOK:
		final = center
	}

	if final < 0 {
		return 0
	}
	return final
}
