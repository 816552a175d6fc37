package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/de3sec/pagesight/internal/httputil"
	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/middleware"
	"github.com/de3sec/pagesight/internal/repository"
	"github.com/de3sec/pagesight/internal/service"
)

// WebsitesHandler serves the owner-scoped tenant registry.
type WebsitesHandler struct {
	registry *service.RegistryService
	logger   *logging.Logger
}

func NewWebsitesHandler(registry *service.RegistryService, logger *logging.Logger) *WebsitesHandler {
	return &WebsitesHandler{registry: registry, logger: logger}
}

type createWebsiteRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// Collection handles POST and GET /api/websites.
func (h *WebsitesHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item handles GET and PUT /api/websites/{id}.
func (h *WebsitesHandler) Item(w http.ResponseWriter, r *http.Request) {
	websiteID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/websites/"), "/")
	if websiteID == "" || strings.Contains(websiteID, "/") {
		httputil.WriteError(w, http.StatusNotFound, "website not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, websiteID)
	case http.MethodPut:
		h.update(w, r, websiteID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WebsitesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createWebsiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	website, err := h.registry.CreateWebsite(r.Context(), middleware.GetUserID(r.Context()), req.Name, req.Domain)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, website)
}

func (h *WebsitesHandler) list(w http.ResponseWriter, r *http.Request) {
	websites, err := h.registry.ListWebsites(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, websites)
}

func (h *WebsitesHandler) get(w http.ResponseWriter, r *http.Request, websiteID string) {
	website, err := h.registry.GetWebsite(r.Context(), websiteID, middleware.GetUserID(r.Context()))
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, website)
}

func (h *WebsitesHandler) update(w http.ResponseWriter, r *http.Request, websiteID string) {
	var req service.UpdateWebsiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	website, err := h.registry.UpdateWebsite(r.Context(), websiteID, middleware.GetUserID(r.Context()), &req)
	if err != nil {
		h.writeRegistryError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, website)
}

func (h *WebsitesHandler) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrMissingField):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrWebsiteNotFound):
		httputil.WriteError(w, http.StatusNotFound, "website not found")
	case errors.Is(err, repository.ErrDuplicateDomain):
		httputil.WriteError(w, http.StatusConflict, "domain already registered")
	case errors.Is(err, repository.ErrDuplicateTrackingID):
		httputil.WriteError(w, http.StatusConflict, "tracking id collision, retry")
	default:
		h.logger.ErrorContext(r.Context(), "registry operation failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
