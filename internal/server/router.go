package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/de3sec/pagesight/internal/handlers"
	"github.com/de3sec/pagesight/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Collect   *handlers.CollectHandler
	Analytics *handlers.AnalyticsHandler
	Websites  *handlers.WebsitesHandler
	Script    *handlers.ScriptHandler
	Health    *handlers.HealthHandler
	Auth      *middleware.AuthMiddleware
}

// NewRouter constructs the ServeMux with all API routes registered.
func NewRouter(h Handlers) http.Handler {
	mux := http.NewServeMux()

	// Probes and metrics
	mux.HandleFunc("/healthz", h.Health.HealthCheck)
	mux.HandleFunc("/readyz", h.Health.Readiness)
	mux.Handle("/metrics", promhttp.Handler())

	// Public collection surface: wide-open CORS, no auth.
	collectCORS := middleware.CollectCORS()
	mux.Handle("/api/tracking/collect", collectCORS(http.HandlerFunc(h.Collect.Collect)))
	mux.Handle("/api/tracking/script", collectCORS(http.HandlerFunc(h.Script.Serve)))

	// Dashboard surface: bearer-token auth.
	mux.HandleFunc("/api/analytics/", h.Auth.RequireAuth(h.Analytics.Query))
	mux.HandleFunc("/api/websites", h.Auth.RequireAuth(h.Websites.Collection))
	mux.HandleFunc("/api/websites/", h.Auth.RequireAuth(h.Websites.Item))

	return middleware.RequestID(mux)
}
