package handlers

import (
	"net/http"
	"strconv"

	"adgenerator/internal/history"
)

// History lists the most recent pipeline runs.
func (a *App) History(w http.ResponseWriter, r *http.Request) {
	if a.HistoryStore == nil || !a.HistoryStore.Enabled() {
		a.error(w, http.StatusServiceUnavailable, "history_disabled", "history is not configured")
		return
	}
	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a number")
			return
		}
		limit = n
	}
	items, err := a.HistoryStore.Recent(r.Context(), history.ClampLimit(limit))
	if err != nil {
		a.Logger.Error().Err(err).Msg("history: list recent")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	if items == nil {
		items = []history.Entry{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
