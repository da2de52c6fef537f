package handlers

import (
	"log"
	"net/http"
	"strconv"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
	"uptime/app/internal/stats"
)

// queryInt reads a non-negative integer query parameter, clamped to max when
// max > 0
func queryInt(r *http.Request, key string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

// HandleListSnapshots pages through persisted snapshots, newest first
func HandleListSnapshots(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 100, 1000)
		offset := queryInt(r, "offset", 0, 0)

		snaps, err := store.ListSnapshots(r.Context(), limit, offset)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		total, err := store.CountSnapshots(r.Context())
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if snaps == nil {
			snaps = []models.Snapshot{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"snapshots": snaps,
			"total":     total,
			"limit":     limit,
			"offset":    offset,
		})
	}
}

// HandleSnapshotNow publishes a snapshot immediately
func HandleSnapshotNow(p *stats.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := p.PublishNow(r.Context())
		if err != nil {
			log.Printf("snapshot-now: %v", err)
			writeError(w, http.StatusServiceUnavailable, "publish_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	}
}

// HandlePublisherStats returns publisher counters and ongoing failure runs
func HandlePublisherStats(p *stats.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := p.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"running":          st.Running,
			"interval_seconds": st.Interval.Seconds(),
			"published":        st.Published,
			"skipped":          st.Skipped,
			"last_published":   st.LastPublished,
			"failures":         st.Failures,
		})
	}
}
