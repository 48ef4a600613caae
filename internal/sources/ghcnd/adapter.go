// Package ghcnd implements the station observation adapter, the fallback
// behind the raster adapter. It queries a GHCND-style historical climate
// API for monitoring stations near a coordinate, fetches daily
// precipitation records from the two nearest, and merges them per date.
package ghcnd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"

	"lawncast/internal/fetch"
	"lawncast/internal/types"
)

// SourceName identifies this adapter in reconciler logs.
const SourceName = "ghcnd"

// maxStations is how many of the nearest stations are queried and merged.
const maxStations = 2

// stationListLimit caps the station search page size.
const stationListLimit = 100

// recordLimit caps the per-station data page size; seven days of PRCP
// records fit comfortably.
const recordLimit = 500

// Adapter queries nearby monitoring stations for daily precipitation.
type Adapter struct {
	client   *fetch.Client
	baseURL  string
	token    types.SecretString
	radiusKm float64
	logger   *slog.Logger
}

// New creates a station Adapter. token is the API credential; when empty
// every fetch fails fast with a configuration error so callers do not
// retry a request that can never succeed.
func New(client *fetch.Client, baseURL string, token types.SecretString, radiusKm float64, logger *slog.Logger) *Adapter {
	if radiusKm <= 0 {
		radiusKm = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:   client,
		baseURL:  baseURL,
		token:    token,
		radiusKm: radiusKm,
		logger:   logger,
	}
}

// Name returns the adapter's source name.
func (a *Adapter) Name() string { return SourceName }

type station struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	distanceM float64
}

type stationsResponse struct {
	Results []station `json:"results"`
}

type dataRecord struct {
	Date  string  `json:"date"`  // ISO timestamp; date is the first 10 bytes
	Value float64 `json:"value"` // hundredths of an inch
}

type dataResponse struct {
	Results []dataRecord `json:"results"`
}

// FetchDaily returns precipitation in inches for each requested date,
// merged across the two nearest stations: the nearer station's reading is
// preferred, the second fills its gaps, and dates neither station reported
// are zero. startDate for the underlying record query is the oldest
// requested date. A station whose records cannot be fetched is skipped,
// except on HTTP 429 which aborts the whole chain; the source fails only
// when rate limited or when no station yielded records.
func (a *Adapter) FetchDaily(ctx context.Context, lat, lon float64, dates []string) (map[string]float64, error) {
	if a.token.Unmask() == "" {
		return nil, types.NewAppError(types.ErrCodeConfigCredentialMissing,
			"station API token is not configured", nil)
	}

	nearest, err := a.nearestStations(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	startDate := ""
	if len(dates) > 0 {
		startDate = dates[0]
	}

	// daily collects readings per date in station-proximity order. A single
	// failing station is skipped, except on a rate-limit response where
	// trying further stations only digs the hole deeper.
	daily := make(map[string][]float64)
	var lastErr error
	fetched := 0
	for _, stn := range nearest {
		records, err := a.stationRecords(ctx, stn.ID, startDate)
		if err != nil {
			if types.IsUpstreamStatus(err, http.StatusTooManyRequests) {
				return nil, err
			}
			a.logger.WarnContext(ctx, "station records fetch failed, trying next station",
				"station", stn.ID, "error", err)
			lastErr = err
			continue
		}
		fetched++
		for _, rec := range records {
			if len(rec.Date) < len(types.DateLayout) {
				continue
			}
			day := rec.Date[:len(types.DateLayout)]
			daily[day] = append(daily[day], rec.Value/100)
		}
	}

	if fetched == 0 && lastErr != nil {
		return nil, lastErr
	}

	merged := make(map[string]float64, len(dates))
	for _, d := range dates {
		merged[d] = 0
		if readings := daily[d]; len(readings) > 0 {
			merged[d] = readings[0]
		}
	}
	return merged, nil
}

// nearestStations finds PRCP-reporting stations within the search radius
// and keeps the two nearest by great-circle distance.
func (a *Adapter) nearestStations(ctx context.Context, lat, lon float64) ([]station, error) {
	url := fmt.Sprintf(
		"%s/stations?datasetid=GHCND&datatypeid=PRCP&limit=%d&radius=%g&units=standard&latitude=%g&longitude=%g",
		a.baseURL, stationListLimit, a.radiusKm, lat, lon)

	var resp stationsResponse
	if err := a.client.GetJSON(ctx, url, a.authHeaders(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, types.NewAppError(types.ErrCodeStationsNoneNearby,
			fmt.Sprintf("no stations within %g km of %.4f,%.4f", a.radiusKm, lat, lon), nil)
	}

	stations := resp.Results
	for i := range stations {
		stations[i].distanceM = haversineMeters(lat, lon, stations[i].Latitude, stations[i].Longitude)
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].distanceM < stations[j].distanceM
	})

	if len(stations) > maxStations {
		stations = stations[:maxStations]
	}
	return stations, nil
}

// stationRecords fetches a station's daily PRCP records from startDate on.
func (a *Adapter) stationRecords(ctx context.Context, stationID, startDate string) ([]dataRecord, error) {
	url := fmt.Sprintf(
		"%s/data?datasetid=GHCND&stationid=%s&datatypeid=PRCP&units=standard&startdate=%s&limit=%d",
		a.baseURL, stationID, startDate, recordLimit)

	var resp dataResponse
	if err := a.client.GetJSON(ctx, url, a.authHeaders(), &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (a *Adapter) authHeaders() map[string]string {
	return map[string]string{"token": a.token.Unmask()}
}

// earthRadiusM is the mean earth radius used for great-circle distances.
const earthRadiusM = 6371000.0

// haversineMeters computes the great-circle distance between two
// geographic coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*sinLon*sinLon
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}
