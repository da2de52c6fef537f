package handlers

import (
	"net/http"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
)

// HandleGetLogs returns system logs with optional filtering
func HandleGetLogs(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 100, 500)
		offset := queryInt(r, "offset", 0, 0)
		level := r.URL.Query().Get("level")
		category := r.URL.Query().Get("category")

		logs, err := store.GetLogs(r.Context(), limit, level, category, offset)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if logs == nil {
			logs = []models.LogEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
	}
}

// HandleGetLogStats returns log statistics
func HandleGetLogStats(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.GetLogStats(r.Context())
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
