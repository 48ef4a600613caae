package handlers

import (
	"net/http"
	"strconv"

	"lawncast/internal/core"
	"lawncast/internal/types"
)

const defaultGeocodeLimit = 5

// HandleGeocode resolves the free-text q parameter to US locations.
func (h *Handler) HandleGeocode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"query parameter q is required", nil))
		return
	}

	limit := defaultGeocodeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 20 {
			limit = n
		}
	}

	results, err := h.geocoder.Search(r.Context(), query, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: results})
}
