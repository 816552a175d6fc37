package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/de3sec/pagesight/internal/httputil"
	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/models"
	"github.com/de3sec/pagesight/internal/repository"
	"github.com/de3sec/pagesight/web"
)

// ScriptHandler serves the capture script with a per-tenant config prelude.
type ScriptHandler struct {
	websites       repository.WebsiteRepository
	collectBaseURL string
	logger         *logging.Logger
}

func NewScriptHandler(websites repository.WebsiteRepository, collectBaseURL string, logger *logging.Logger) *ScriptHandler {
	return &ScriptHandler{websites: websites, collectBaseURL: collectBaseURL, logger: logger}
}

// scriptConfig is what gets injected as window.__PAGESIGHT_CONFIG__. Only
// capture-facing settings are exposed; samplingRate and excludePaths stay
// server-side.
type scriptConfig struct {
	TrackingID     string `json:"trackingId"`
	Endpoint       string `json:"endpoint"`
	TrackClicks    bool   `json:"trackClicks"`
	TrackScrolls   bool   `json:"trackScrolls"`
	TrackPageViews bool   `json:"trackPageViews"`
}

// Serve handles GET /api/tracking/script?id=trk_...
func (h *ScriptHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	trackingID := r.URL.Query().Get("id")
	if trackingID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	website, err := h.websites.GetWebsiteByTrackingID(r.Context(), trackingID)
	if err != nil {
		if errors.Is(err, repository.ErrWebsiteNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "unknown tracking id")
			return
		}
		h.logger.ErrorContext(r.Context(), "script lookup failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	prelude, err := h.prelude(website)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "script config encoding failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(prelude)            //nolint:errcheck
	w.Write(web.TrackingScript) //nolint:errcheck
}

func (h *ScriptHandler) prelude(website *models.Website) ([]byte, error) {
	cfg := scriptConfig{
		TrackingID:     website.TrackingID,
		Endpoint:       h.collectBaseURL + "/api/tracking/collect",
		TrackClicks:    website.Settings.TrackClicks,
		TrackScrolls:   website.Settings.TrackScrolls,
		TrackPageViews: website.Settings.TrackPageViews,
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("window.__PAGESIGHT_CONFIG__ = %s;\n", data)), nil
}
