package handlers

import (
	"net/http"

	"lawncast/internal/core"
	"lawncast/internal/types"
)

// HandleGetSettings returns the persisted settings, or defaults before
// onboarding has completed.
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, found, err := h.store.Settings(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !found {
		settings = types.DefaultSettings()
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: settings})
}

// HandlePutSettings validates and replaces the settings.
func (h *Handler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings types.Settings
	if err := core.DecodeJSON(w, r, &settings); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.store.SetSettings(r.Context(), settings); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: settings})
}

// HandleReset clears all persisted state: settings, water log and caches.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "application state reset")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"reset": true}})
}
