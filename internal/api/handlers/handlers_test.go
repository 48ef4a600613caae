package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawncast/internal/geocode"
	"lawncast/internal/types"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	settings    *types.Settings
	log         map[string]int
	resetCalled bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{log: make(map[string]int)}
}

func (f *fakeStore) Settings(_ context.Context) (types.Settings, bool, error) {
	if f.settings == nil {
		return types.Settings{}, false, nil
	}
	return *f.settings, true, nil
}

func (f *fakeStore) SetSettings(_ context.Context, s types.Settings) error {
	if !s.Zone.Valid() {
		return types.NewAppError(types.ErrCodeValidationInvalidZone, "unknown climate zone", nil)
	}
	f.settings = &s
	return nil
}

func (f *fakeStore) WaterLogEntry(_ context.Context, date string) (types.WaterLogEntry, bool, error) {
	minutes, ok := f.log[date]
	if !ok {
		return types.WaterLogEntry{}, false, nil
	}
	return types.WaterLogEntry{Date: date, Minutes: minutes}, true, nil
}

func (f *fakeStore) SetWaterLogEntry(_ context.Context, e types.WaterLogEntry) error {
	if e.Minutes < 0 || e.Minutes > types.MaxLogMinutes {
		return types.NewAppError(types.ErrCodeValidationMinutesRange, "minutes out of range", nil)
	}
	f.log[e.Date] = e.Minutes
	return nil
}

func (f *fakeStore) DeleteWaterLogEntry(_ context.Context, date string) error {
	if _, ok := f.log[date]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundLogEntry, "no entry", nil)
	}
	delete(f.log, date)
	return nil
}

func (f *fakeStore) WaterLogRange(_ context.Context, start, end string) ([]types.WaterLogEntry, error) {
	var out []types.WaterLogEntry
	for date, minutes := range f.log {
		if date >= start && date <= end {
			out = append(out, types.WaterLogEntry{Date: date, Minutes: minutes})
		}
	}
	return out, nil
}

func (f *fakeStore) Reset(_ context.Context) error {
	f.settings = nil
	f.log = make(map[string]int)
	f.resetCalled = true
	return nil
}

type fakeLedger struct {
	record *types.WeatherRecord
	calls  int
}

func (f *fakeLedger) RefreshIfStale(_ context.Context, _ types.Settings) (*types.WeatherRecord, error) {
	f.calls++
	return f.record, nil
}

type fakeGeocoder struct {
	results []geocode.Result
	err     error
	gotQ    string
}

func (f *fakeGeocoder) Search(_ context.Context, query string, _ int) ([]geocode.Result, error) {
	f.gotQ = query
	return f.results, f.err
}

// Tuesday June 10 2025. Week runs June 8 through June 14.
var testNow = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func newTestAPI(t *testing.T, store *fakeStore, ledger *fakeLedger, geo *fakeGeocoder) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(store, ledger, geo, logger,
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC))

	r := chi.NewRouter()
	r.Route("/v1", h.Mount)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func errCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func configuredSettings() *types.Settings {
	return &types.Settings{
		Zip: "66603", Lat: 39.05, Lon: -95.68,
		Zone: types.ZoneCool, SunExposure: types.SunFull,
		SprinklerRateInPerHr: 0.5,
	}
}

func TestRecommendation_NoSettingsIs404(t *testing.T) {
	srv := newTestAPI(t, newFakeStore(), &fakeLedger{}, &fakeGeocoder{})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/recommendation", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(types.ErrCodeNotFoundSettings), errCode(body))
}

func TestRecommendation_HappyPath(t *testing.T) {
	store := newFakeStore()
	store.settings = configuredSettings()
	store.log["2025-06-08"] = 30 // 0.25 in at 0.5 in/hr
	store.log["2025-06-01"] = 60 // previous week, excluded

	ledger := &fakeLedger{record: &types.WeatherRecord{
		Timestamp: testNow.UnixMilli(),
		Lat:       39.05, Lon: -95.68,
		Observed: types.PrecipMap{"2025-06-09": {Amount: 0.3, Probability: 1}},
		Forecast: types.PrecipMap{
			"2025-06-11": {Amount: 0.2, Probability: 0.7},  // counts
			"2025-06-12": {Amount: 0.5, Probability: 0.59}, // below floor, dropped
		},
	}}
	srv := newTestAPI(t, store, ledger, &fakeGeocoder{})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/recommendation", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ledger.calls)

	data := body["data"].(map[string]any)
	assert.InDelta(t, 0.3, data["rainPast"].(float64), 1e-9)
	assert.InDelta(t, 0.2, data["rainForecast"].(float64), 1e-9)
	assert.InDelta(t, 0.25, data["loggedWater"].(float64), 1e-9)
	assert.InDelta(t, 0.75, data["totalProjected"].(float64), 1e-9)
	assert.Equal(t, "water", data["decision"].(string), "0.75 is under the 1.0 cool/full target")
	assert.InDelta(t, 0.75, data["progress"].(float64), 1e-9)
	assert.Equal(t, "2025-06-08", data["weekStart"])
	assert.Equal(t, "2025-06-14", data["weekEnd"])
}

func TestSettings_GetDefaultsBeforeOnboarding(t *testing.T) {
	srv := newTestAPI(t, newFakeStore(), &fakeLedger{}, &fakeGeocoder{})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/settings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "full", data["sun_exposure"])
	assert.InDelta(t, 0.5, data["sprinkler_rate_in_per_hr"].(float64), 1e-9)
}

func TestSettings_PutRoundTrip(t *testing.T) {
	store := newFakeStore()
	srv := newTestAPI(t, store, &fakeLedger{}, &fakeGeocoder{})

	payload := `{"zip":"66603","lat":39.05,"lon":-95.68,"zone":"cool","sun_exposure":"full","sprinkler_rate_in_per_hr":0.5}`
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/v1/settings", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, store.settings)
	assert.Equal(t, "66603", store.settings.Zip)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/v1/settings",
		`{"zip":"66603","lat":39.05,"lon":-95.68,"zone":"polar","sun_exposure":"full","sprinkler_rate_in_per_hr":0.5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(types.ErrCodeValidationInvalidZone), errCode(body))
}

func TestWaterLog_Lifecycle(t *testing.T) {
	store := newFakeStore()
	srv := newTestAPI(t, store, &fakeLedger{}, &fakeGeocoder{})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/log/2025-06-09", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(types.ErrCodeNotFoundLogEntry), errCode(body))

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/v1/log/2025-06-09", `{"minutes": 45}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "2025-06-09", data["date"])
	assert.Equal(t, float64(45), data["minutes"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/log/2025-06-09", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(45), body["data"].(map[string]any)["minutes"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/log/2025-06-09", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, store.log)
}

func TestWaterLog_Validation(t *testing.T) {
	srv := newTestAPI(t, newFakeStore(), &fakeLedger{}, &fakeGeocoder{})

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/v1/log/June-9th", `{"minutes": 30}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(types.ErrCodeValidationInvalidDate), errCode(body))

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/v1/log/2025-06-09",
		fmt.Sprintf(`{"minutes": %d}`, types.MaxLogMinutes+1))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(types.ErrCodeValidationMinutesRange), errCode(body))

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/v1/log/2025-06-09", `{"hours": 1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_invalid_json", errCode(body))
}

func TestGeocode(t *testing.T) {
	geo := &fakeGeocoder{results: []geocode.Result{
		{DisplayName: "Topeka, Kansas", Lat: 39.05, Lon: -95.68, Zip: "66603"},
	}}
	srv := newTestAPI(t, newFakeStore(), &fakeLedger{}, geo)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/geocode?q=Topeka", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Topeka", geo.gotQ)
	results := body["data"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "66603", results[0].(map[string]any)["zip"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/geocode", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), errCode(body))
}

func TestReset(t *testing.T) {
	store := newFakeStore()
	store.settings = configuredSettings()
	store.log["2025-06-09"] = 30
	srv := newTestAPI(t, store, &fakeLedger{}, &fakeGeocoder{})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, store.resetCalled)
	assert.Nil(t, store.settings)
	assert.Empty(t, store.log)
}
