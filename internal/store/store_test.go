package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawncast/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func validSettings() types.Settings {
	return types.Settings{
		Zip:                  "66604",
		Lat:                  39.049,
		Lon:                  -95.678,
		Zone:                 types.ZoneTransition,
		SunExposure:          types.SunFull,
		SprinklerRateInPerHr: 0.5,
	}
}

func TestSettings_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, found, "fresh store has no settings")

	want := validSettings()
	require.NoError(t, s.SetSettings(ctx, want))

	got, found, err := s.Settings(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestSettings_UpsertReplacesSingleRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := validSettings()
	require.NoError(t, s.SetSettings(ctx, first))

	second := first
	second.Zip = "10001"
	second.Lat = 40.75
	second.Lon = -73.99
	require.NoError(t, s.SetSettings(ctx, second))

	got, found, err := s.Settings(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, second, got)
}

func TestSetSettings_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(*types.Settings)
		wantCode types.ErrorCode
	}{
		{"latitude too big", func(st *types.Settings) { st.Lat = 91 }, types.ErrCodeValidationInvalidLat},
		{"longitude too small", func(st *types.Settings) { st.Lon = -181 }, types.ErrCodeValidationInvalidLon},
		{"unknown zone", func(st *types.Settings) { st.Zone = "arctic" }, types.ErrCodeValidationInvalidZone},
		{"unknown sun exposure", func(st *types.Settings) { st.SunExposure = "indoor" }, types.ErrCodeValidationInvalidSun},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := validSettings()
			tt.mutate(&settings)
			err := s.SetSettings(ctx, settings)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.CodeOf(err))
		})
	}
}

func TestWaterLog_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.WaterLogEntry(ctx, "2025-06-09")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "2025-06-09", Minutes: 30}))
	require.NoError(t, s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "2025-06-11", Minutes: 45}))

	entry, found, err := s.WaterLogEntry(ctx, "2025-06-09")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 30, entry.Minutes)

	// Upsert replaces the day's minutes.
	require.NoError(t, s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "2025-06-09", Minutes: 60}))
	entry, _, err = s.WaterLogEntry(ctx, "2025-06-09")
	require.NoError(t, err)
	assert.Equal(t, 60, entry.Minutes)

	require.NoError(t, s.DeleteWaterLogEntry(ctx, "2025-06-09"))
	_, found, err = s.WaterLogEntry(ctx, "2025-06-09")
	require.NoError(t, err)
	assert.False(t, found)

	err = s.DeleteWaterLogEntry(ctx, "2025-06-09")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNotFoundLogEntry, types.CodeOf(err))
}

func TestWaterLogRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, e := range []types.WaterLogEntry{
		{Date: "2025-06-07", Minutes: 10}, // before range
		{Date: "2025-06-08", Minutes: 20},
		{Date: "2025-06-12", Minutes: 30},
		{Date: "2025-06-14", Minutes: 40},
		{Date: "2025-06-15", Minutes: 50}, // after range
	} {
		require.NoError(t, s.SetWaterLogEntry(ctx, e))
	}

	got, err := s.WaterLogRange(ctx, "2025-06-08", "2025-06-14")
	require.NoError(t, err)
	assert.Equal(t, []types.WaterLogEntry{
		{Date: "2025-06-08", Minutes: 20},
		{Date: "2025-06-12", Minutes: 30},
		{Date: "2025-06-14", Minutes: 40},
	}, got)
}

func TestSetWaterLogEntry_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "June 9", Minutes: 30})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationInvalidDate, types.CodeOf(err))

	err = s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "2025-06-09", Minutes: 241})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationMinutesRange, types.CodeOf(err))

	err = s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "2025-06-09", Minutes: -1})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationMinutesRange, types.CodeOf(err))

	// Bounds are inclusive.
	require.NoError(t, s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "2025-06-09", Minutes: 0}))
	require.NoError(t, s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "2025-06-10", Minutes: types.MaxLogMinutes}))
}

func TestCacheSlots_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetSlot(ctx, "observedPrecip_v2_39.049_-95.678")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetSlot(ctx, "observedPrecip_v2_39.049_-95.678", `{"ts":1}`))
	require.NoError(t, s.SetSlot(ctx, "observedPrecip_v2_39.049_-95.678", `{"ts":2}`))

	got, found, err := s.GetSlot(ctx, "observedPrecip_v2_39.049_-95.678")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `{"ts":2}`, got)
}

func TestWeatherRecord_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.WeatherRecord(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "fresh store has no record")

	want := &types.WeatherRecord{
		Timestamp: 1749567600000,
		Lat:       39.049,
		Lon:       -95.678,
		Observed:  types.PrecipMap{"2025-06-09": {Amount: 0.2, Probability: 1}},
		Forecast:  types.PrecipMap{"2025-06-11": {Amount: 0.3, Probability: 0.7}},
	}
	require.NoError(t, s.SetWeatherRecord(ctx, want))

	got, err := s.WeatherRecord(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWeatherRecord_CorruptedTreatedAsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSlot(ctx, weatherRecordSlot, "not json at all"))

	rec, err := s.WeatherRecord(ctx)
	require.NoError(t, err, "corruption must not surface as an error")
	assert.Nil(t, rec)
}

func TestReset_ClearsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSettings(ctx, validSettings()))
	require.NoError(t, s.SetWaterLogEntry(ctx, types.WaterLogEntry{Date: "2025-06-09", Minutes: 30}))
	require.NoError(t, s.SetSlot(ctx, "someKey", "someValue"))
	require.NoError(t, s.SetWeatherRecord(ctx, &types.WeatherRecord{Timestamp: 1}))

	require.NoError(t, s.Reset(ctx))

	_, found, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.WaterLogEntry(ctx, "2025-06-09")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.GetSlot(ctx, "someKey")
	require.NoError(t, err)
	assert.False(t, found)

	rec, err := s.WeatherRecord(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
