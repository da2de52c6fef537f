package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"uptime/app/internal/cache"
	"uptime/app/internal/database"
	"uptime/app/internal/models"
	"uptime/app/internal/stats"
)

const latestKey = "snapshots:latest"

// maxSinceRows bounds the public snapshot history response
const maxSinceRows = 5000

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// HandleAvailability returns the current availability. It always answers 200;
// a result computed from stale data carries "stale": true.
func HandleAvailability(engine *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.GetCurrentAvailability(r.Context()))
	}
}

// HandleIntervals returns the derived Up/Down spans
func HandleIntervals(engine *stats.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		intervals, at, err := engine.Intervals(r.Context())
		if err != nil {
			log.Printf("intervals: %v", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "event store could not be read")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"computed_at": at,
			"gap_policy":  engine.GapPolicy(),
			"intervals":   intervals,
		})
	}
}

// HandleLatestSnapshot returns the newest persisted snapshot
func HandleLatestSnapshot(store *database.Store, latest *cache.Cache[*models.Snapshot]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := latest.GetOrLoad(latestKey, func() (*models.Snapshot, error) {
			return store.LatestSnapshot(r.Context())
		})
		if err != nil {
			log.Printf("latest snapshot: %v", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "snapshot store could not be read")
			return
		}
		if snap == nil {
			writeError(w, http.StatusNotFound, "no_snapshot", "no snapshot has been published yet")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// HandleSnapshotsSince returns snapshots computed at or after ?since (RFC 3339),
// oldest first. Without since the last 24 hours are returned.
func HandleSnapshotsSince(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := time.Now().Add(-24 * time.Hour)
		if v := r.URL.Query().Get("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_since", "since must be an RFC 3339 timestamp")
				return
			}
			since = t
		}

		// One extra row tells us whether older snapshots were cut off
		snaps, err := store.SnapshotsSince(r.Context(), since, maxSinceRows+1)
		if err != nil {
			log.Printf("snapshots since: %v", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "snapshot store could not be read")
			return
		}
		if snaps == nil {
			snaps = []models.Snapshot{}
		}
		truncated := len(snaps) > maxSinceRows
		if truncated {
			snaps = snaps[1:]
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"since":     since.UTC(),
			"snapshots": snaps,
			"truncated": truncated,
		})
	}
}

// HandleHealth reports whether the store answers, with the ledger sizes and
// when this process recorded its Start. lifecycle may be nil.
func HandleHealth(store *database.Store, lifecycle *stats.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		events, err := store.CountEvents(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		snapshots, err := store.CountSnapshots(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}

		body := map[string]any{"ok": true, "events": events, "snapshots": snapshots}
		if lifecycle != nil {
			if at := lifecycle.StartedAt(); !at.IsZero() {
				body["started_at"] = at.UTC()
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}
