package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lawncast/internal/core"
	"lawncast/internal/types"
)

func dateParam(r *http.Request) (string, error) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return "", types.NewAppError(types.ErrCodeValidationInvalidDate,
			fmt.Sprintf("invalid date %q", date), err)
	}
	return date, nil
}

// HandleGetLogEntry returns the water log entry for the date in the path.
func (h *Handler) HandleGetLogEntry(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	entry, found, err := h.store.WaterLogEntry(r.Context(), date)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !found {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundLogEntry,
			fmt.Sprintf("no water log entry for %s", date), nil))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: entry})
}

// putLogRequest is the body for PUT /v1/log/{date}.
type putLogRequest struct {
	Minutes int `json:"minutes"`
}

// HandlePutLogEntry upserts the minutes watered on the date in the path.
func (h *Handler) HandlePutLogEntry(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var body putLogRequest
	if err := core.DecodeJSON(w, r, &body); err != nil {
		core.Error(w, r, err)
		return
	}

	entry := types.WaterLogEntry{Date: date, Minutes: body.Minutes}
	if err := h.store.SetWaterLogEntry(r.Context(), entry); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: entry})
}

// HandleDeleteLogEntry removes the entry for the date in the path.
func (h *Handler) HandleDeleteLogEntry(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.store.DeleteWaterLogEntry(r.Context(), date); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
