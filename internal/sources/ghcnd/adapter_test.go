package ghcnd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawncast/internal/fetch"
	"lawncast/internal/types"
)

func TestHaversineMeters(t *testing.T) {
	// A degree of latitude is roughly 111 km.
	d := haversineMeters(39.0, -95.7, 40.0, -95.7)
	assert.InDelta(t, 111_000, d, 500)

	// Zero distance for identical points.
	assert.Zero(t, haversineMeters(39.0, -95.7, 39.0, -95.7))

	// Symmetric.
	assert.InDelta(t,
		haversineMeters(39.0, -95.7, 38.5, -94.9),
		haversineMeters(38.5, -94.9, 39.0, -95.7),
		1e-6)
}

// stationFixture serves the stations and data endpoints with canned JSON.
func stationFixture(t *testing.T, stationsBody string, dataByStation map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/stations", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(stationsBody))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		body, ok := dataByStation[r.URL.Query().Get("stationid")]
		if !ok {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAdapter(t *testing.T, baseURL string, token types.SecretString) *Adapter {
	t.Helper()
	client := fetch.New("ghcnd-test", time.Second)
	return New(client, baseURL, token, 30, nil)
}

func TestFetchDaily_MergesNearestTwoStations(t *testing.T) {
	// Three stations; NEAR and MID are the two nearest to (39, -95.7).
	stations := `{"results":[
		{"id":"GHCND:FAR","latitude":41.0,"longitude":-95.7},
		{"id":"GHCND:NEAR","latitude":39.01,"longitude":-95.71},
		{"id":"GHCND:MID","latitude":39.2,"longitude":-95.7}
	]}`
	data := map[string]string{
		// Values are hundredths of an inch.
		"GHCND:NEAR": `{"results":[
			{"date":"2025-06-08T00:00:00","value":25},
			{"date":"2025-06-09T00:00:00","value":0}
		]}`,
		"GHCND:MID": `{"results":[
			{"date":"2025-06-08T00:00:00","value":99},
			{"date":"2025-06-10T00:00:00","value":50}
		]}`,
		"GHCND:FAR": `{"results":[
			{"date":"2025-06-08T00:00:00","value":400}
		]}`,
	}

	srv := stationFixture(t, stations, data)
	a := newAdapter(t, srv.URL, "tok")

	got, err := a.FetchDaily(context.Background(), 39.0, -95.7,
		[]string{"2025-06-08", "2025-06-09", "2025-06-10", "2025-06-11"})
	require.NoError(t, err)

	// Nearer station wins when both reported.
	assert.InDelta(t, 0.25, got["2025-06-08"], 1e-9)
	// A reported zero from the nearer station is a real reading.
	assert.Zero(t, got["2025-06-09"])
	// Second station fills the nearer one's gaps.
	assert.InDelta(t, 0.50, got["2025-06-10"], 1e-9)
	// Neither station reported: zero.
	assert.Zero(t, got["2025-06-11"])
}

func TestFetchDaily_MissingTokenFailsFast(t *testing.T) {
	srv := stationFixture(t, `{"results":[]}`, nil)
	a := newAdapter(t, srv.URL, "")

	_, err := a.FetchDaily(context.Background(), 39.0, -95.7, []string{"2025-06-08"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfigCredentialMissing, types.CodeOf(err))
}

func TestFetchDaily_NoStationsNearby(t *testing.T) {
	srv := stationFixture(t, `{"results":[]}`, nil)
	a := newAdapter(t, srv.URL, "tok")

	_, err := a.FetchDaily(context.Background(), 39.0, -95.7, []string{"2025-06-08"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeStationsNoneNearby, types.CodeOf(err))
}

func TestFetchDaily_UpstreamErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newAdapter(t, srv.URL, "tok")

	_, err := a.FetchDaily(context.Background(), 39.0, -95.7, []string{"2025-06-08"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamHTTPStatus, types.CodeOf(err))
}

// twoStationFixture serves two stations near (39, -95.7) with per-station
// /data handlers, recording how many record fetches were made.
func twoStationFixture(t *testing.T, dataHandlers map[string]http.HandlerFunc) (*httptest.Server, *int) {
	t.Helper()
	dataCalls := new(int)
	mux := http.NewServeMux()
	mux.HandleFunc("/stations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[
			{"id":"GHCND:NEAR","latitude":39.01,"longitude":-95.71},
			{"id":"GHCND:MID","latitude":39.2,"longitude":-95.7}
		]}`))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		*dataCalls++
		dataHandlers[r.URL.Query().Get("stationid")](w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, dataCalls
}

func TestFetchDaily_RateLimitAbortsStationChain(t *testing.T) {
	srv, dataCalls := twoStationFixture(t, map[string]http.HandlerFunc{
		"GHCND:NEAR": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"GHCND:MID": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"date":"2025-06-08T00:00:00","value":25}]}`))
		},
	})

	a := newAdapter(t, srv.URL, "tok")
	_, err := a.FetchDaily(context.Background(), 39.0, -95.7, []string{"2025-06-08"})

	require.Error(t, err)
	assert.True(t, types.IsUpstreamStatus(err, http.StatusTooManyRequests))
	assert.Equal(t, 1, *dataCalls, "a rate-limited chain must not query further stations")
}

func TestFetchDaily_SingleStationFailureFallsThrough(t *testing.T) {
	srv, dataCalls := twoStationFixture(t, map[string]http.HandlerFunc{
		"GHCND:NEAR": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"GHCND:MID": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"date":"2025-06-08T00:00:00","value":25}]}`))
		},
	})

	a := newAdapter(t, srv.URL, "tok")
	got, err := a.FetchDaily(context.Background(), 39.0, -95.7, []string{"2025-06-08"})

	require.NoError(t, err)
	assert.Equal(t, 2, *dataCalls)
	assert.InDelta(t, 0.25, got["2025-06-08"], 1e-9)
}

func TestFetchDaily_AllStationsFailedReturnsError(t *testing.T) {
	srv, _ := twoStationFixture(t, map[string]http.HandlerFunc{
		"GHCND:NEAR": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"GHCND:MID": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})

	a := newAdapter(t, srv.URL, "tok")
	_, err := a.FetchDaily(context.Background(), 39.0, -95.7, []string{"2025-06-08"})

	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamHTTPStatus, types.CodeOf(err))
}
