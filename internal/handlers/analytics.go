package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/de3sec/pagesight/internal/httputil"
	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/middleware"
	"github.com/de3sec/pagesight/internal/models"
	"github.com/de3sec/pagesight/internal/repository"
	"github.com/de3sec/pagesight/internal/service"
)

// AnalyticsHandler serves the authenticated query endpoint.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	logger    *logging.Logger
}

func NewAnalyticsHandler(analytics *service.AnalyticsService, logger *logging.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: logger}
}

// Query handles GET /api/analytics/{websiteId}?type=...&start=...&end=...
func (h *AnalyticsHandler) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	websiteID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/analytics/"), "/")
	if websiteID == "" || strings.Contains(websiteID, "/") {
		httputil.WriteError(w, http.StatusNotFound, "website not found")
		return
	}

	ctx := r.Context()
	if _, err := h.analytics.AuthorizeWebsite(ctx, websiteID, middleware.GetUserID(ctx)); err != nil {
		if errors.Is(err, repository.ErrWebsiteNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "website not found")
			return
		}
		h.logger.ErrorContext(ctx, "website lookup failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	q := r.URL.Query()
	defaults := h.analytics.DefaultRange()
	rng := repository.TimeRange{
		Start: httputil.ParseTimeParam(timeParam(q, "startDate", "start"), defaults.Start),
		End:   httputil.ParseTimeParam(timeParam(q, "endDate", "end"), defaults.End),
	}

	queryType := q.Get("type")
	if queryType == "" {
		queryType = "overview"
	}

	var (
		result any
		err    error
	)
	switch queryType {
	case "overview":
		result, err = h.analytics.Overview(ctx, websiteID, rng)
	case "pageviews":
		result, err = h.analytics.PageViewsByHour(ctx, websiteID, rng)
	case "clicks":
		result, err = h.analytics.Clicks(ctx, websiteID, rng, q.Get("url"))
	case "devices":
		result, err = h.analytics.Devices(ctx, websiteID, rng, models.EventType(q.Get("eventType")))
	case "heatmap":
		result, err = h.analytics.Heatmap(ctx, websiteID, rng, q.Get("url"))
	case "realtime":
		result, err = h.analytics.Realtime(ctx, websiteID)
	default:
		httputil.WriteError(w, http.StatusBadRequest, "unknown query type")
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "analytics query failed",
			logging.WebsiteID(websiteID), logging.Query(queryType), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// timeParam returns the first non-empty query value among the given names.
// The dashboard sends startDate/endDate; start/end are kept as aliases.
func timeParam(q url.Values, names ...string) string {
	for _, name := range names {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}
