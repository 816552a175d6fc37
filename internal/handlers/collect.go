package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/de3sec/pagesight/internal/httputil"
	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/service"
)

// CollectHandler serves the public event collection endpoint.
type CollectHandler struct {
	ingest *service.IngestService
	logger *logging.Logger
}

func NewCollectHandler(ingest *service.IngestService, logger *logging.Logger) *CollectHandler {
	return &CollectHandler{ingest: ingest, logger: logger}
}

// collectResponse is the wire shape the capture script sees. Sampled-out
// events still report success so clients never retry them.
type collectResponse struct {
	Success bool `json:"success"`
	Sampled bool `json:"sampled,omitempty"`
}

// Collect handles POST /api/tracking/collect. OPTIONS preflight is answered
// by the CORS middleware before this handler runs.
func (h *CollectHandler) Collect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.CollectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.ingest.Collect(r.Context(), &req, httputil.GetClientIP(r), r.Header.Get("User-Agent"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingField), errors.Is(err, service.ErrInvalidPayload):
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInvalidTenant):
			httputil.WriteError(w, http.StatusUnauthorized, "invalid tracking id")
		default:
			h.logger.ErrorContext(r.Context(), "collect failed", logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, collectResponse{Success: result.Accepted, Sampled: result.Sampled})
}
