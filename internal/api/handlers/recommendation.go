package handlers

import (
	"net/http"

	"lawncast/internal/core"
	"lawncast/internal/decision"
	"lawncast/internal/types"
)

// recommendationResponse is the payload for GET /v1/recommendation.
type recommendationResponse struct {
	decision.Result
	RainPast     float64 `json:"rainPast"`
	RainForecast float64 `json:"rainForecast"`
	LoggedWater  float64 `json:"loggedWater"`
	WeekStart    string  `json:"weekStart"`
	WeekEnd      string  `json:"weekEnd"`
	UpdatedAt    int64   `json:"updatedAt"` // epoch milliseconds
}

// HandleGetRecommendation refreshes the weekly weather record if needed and
// returns the watering decision for the current week.
func (h *Handler) HandleGetRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings, found, err := h.store.Settings(ctx)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !found {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundSettings,
			"settings have not been configured", nil))
		return
	}

	record, err := h.ledger.RefreshIfStale(ctx, settings)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	weekStart, weekEnd := h.weekBounds(h.now())
	entries, err := h.store.WaterLogRange(ctx, weekStart, weekEnd)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	rainPast := decision.SumObserved(record.Observed)
	rainForecast := decision.SumForecast(record.Forecast)
	loggedWater := decision.SumLoggedWater(entries, settings.SprinklerRateInPerHr)

	result := decision.Decide(decision.Input{
		RainPast:     rainPast,
		RainForecast: rainForecast,
		LoggedWater:  loggedWater,
		Zone:         settings.Zone,
		SunExposure:  settings.SunExposure,
	})

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: recommendationResponse{
		Result:       result,
		RainPast:     rainPast,
		RainForecast: rainForecast,
		LoggedWater:  loggedWater,
		WeekStart:    weekStart,
		WeekEnd:      weekEnd,
		UpdatedAt:    record.Timestamp,
	}})
}
