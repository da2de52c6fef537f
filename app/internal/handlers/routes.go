package handlers

import (
	"net/http"

	"uptime/app/internal/auth"
	"uptime/app/internal/cache"
	"uptime/app/internal/database"
	"uptime/app/internal/models"
	"uptime/app/internal/ratelimit"
	"uptime/app/internal/security"
	"uptime/app/internal/stats"
)

// Deps are the components the HTTP surface reads from
type Deps struct {
	Store     *database.Store
	Engine    *stats.Engine
	Publisher *stats.Publisher
	Auth      *auth.Auth
	// Limiter meters public API requests per client IP; nil disables it
	Limiter *ratelimit.Limiter
	// Latest caches the newest persisted snapshot
	Latest *cache.Cache[*models.Snapshot]
	// Lifecycle reports the process start time on /healthz; may be nil
	Lifecycle *stats.Lifecycle
	// TrustProxy takes the client IP from X-Forwarded-For. Enable it only
	// behind a reverse proxy that overwrites the header.
	TrustProxy bool
}

// SetupRoutes configures all HTTP routes and middlewares
func SetupRoutes(d Deps) http.Handler {
	// Public API routes (with rate limiting)
	api := http.NewServeMux()
	api.HandleFunc("GET /api/availability", HandleAvailability(d.Engine))
	api.HandleFunc("GET /api/intervals", HandleIntervals(d.Engine))
	api.HandleFunc("GET /api/snapshots", HandleSnapshotsSince(d.Store))
	api.HandleFunc("GET /api/snapshots/latest", HandleLatestSnapshot(d.Store, d.Latest))

	// Admin API routes (with authentication)
	admin := http.NewServeMux()
	admin.HandleFunc("GET /api/admin/snapshots", d.Auth.RequireAuth(HandleListSnapshots(d.Store)))
	admin.HandleFunc("POST /api/admin/snapshot-now", d.Auth.RequireAuth(HandleSnapshotNow(d.Publisher)))
	admin.HandleFunc("GET /api/admin/publisher", d.Auth.RequireAuth(HandlePublisherStats(d.Publisher)))
	admin.HandleFunc("GET /api/admin/logs", d.Auth.RequireAuth(HandleGetLogs(d.Store)))
	admin.HandleFunc("GET /api/admin/logs/stats", d.Auth.RequireAuth(HandleGetLogStats(d.Store)))

	limit := func(h http.Handler) http.Handler { return h }
	if d.Limiter != nil {
		limit = security.RateLimit(d.Limiter)
	}

	// Main router
	mux := http.NewServeMux()
	mux.Handle("/api/admin/", limit(admin))
	mux.Handle("/api/", limit(api))
	mux.HandleFunc("GET /metrics", HandleMetrics(d.Engine, d.Publisher))
	mux.HandleFunc("GET /healthz", HandleHealth(d.Store, d.Lifecycle))

	var h http.Handler = security.SecureHeaders(GzipMiddleware(mux))
	if d.TrustProxy {
		h = security.ForwardedFor(h)
	}
	return h
}

// OnPublish returns a publisher hook that refreshes the latest snapshot cache
func OnPublish(latest *cache.Cache[*models.Snapshot]) func(models.Snapshot) {
	return func(s models.Snapshot) {
		latest.Set(latestKey, &s)
	}
}
