package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de3sec/pagesight/internal/events"
	"github.com/de3sec/pagesight/internal/handlers"
	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/middleware"
	"github.com/de3sec/pagesight/internal/models"
	"github.com/de3sec/pagesight/internal/realtime"
	"github.com/de3sec/pagesight/internal/repository"
	"github.com/de3sec/pagesight/internal/sampling"
	"github.com/de3sec/pagesight/internal/server"
	"github.com/de3sec/pagesight/internal/service"
	"github.com/de3sec/pagesight/pkg/tokens"
)

type testEnv struct {
	router  http.Handler
	store   *repository.InMemoryStore
	tokens  *tokens.TokenGenerator
	website *models.Website
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	store := repository.NewInMemoryStore()
	logger := logging.New(slog.LevelError, "text")
	tg := tokens.NewTokenGenerator("test-secret")

	website := models.NewWebsite("owner-1", "Shop", "shop.example.com")
	require.NoError(t, store.CreateWebsite(context.Background(), website))

	ingest := service.NewIngestService(store, realtime.NoOpTracker{}, events.NoOpPublisher{}, sampling.Fixed{Retain: true}, logger)
	analytics := service.NewAnalyticsService(store, realtime.NoOpTracker{}, logger)
	registry := service.NewRegistryService(store, logger)

	router := server.NewRouter(server.Handlers{
		Collect:   handlers.NewCollectHandler(ingest, logger),
		Analytics: handlers.NewAnalyticsHandler(analytics, logger),
		Websites:  handlers.NewWebsitesHandler(registry, logger),
		Script:    handlers.NewScriptHandler(store, "", logger),
		Health:    handlers.NewHealthHandler(store),
		Auth:      middleware.NewAuthMiddleware(tg),
	})

	return &testEnv{router: router, store: store, tokens: tg, website: website}
}

func (env *testEnv) bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := env.tokens.GenerateAccessToken(userID)
	require.NoError(t, err)
	return "Bearer " + token
}

func (env *testEnv) postCollect(t *testing.T, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/tracking/collect", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0.0.0 Safari/537.36")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func collectBody(trackingID, sessionID, url string) map[string]any {
	return map[string]any{
		"trackingId": trackingID,
		"sessionId":  sessionID,
		"eventType":  "pageview",
		"eventData":  map[string]string{"url": url, "title": "Page"},
	}
}

func TestCollectEndpoint(t *testing.T) {
	env := setupEnv(t)

	t.Run("accepts a pageview", func(t *testing.T) {
		rec := env.postCollect(t, collectBody(env.website.TrackingID, "s1", "/home"))
		require.Equal(t, http.StatusOK, rec.Code)

		var res struct {
			Success bool `json:"success"`
			Sampled bool `json:"sampled"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.True(t, res.Success)
		assert.False(t, res.Sampled)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown tracking id", func(t *testing.T) {
		rec := env.postCollect(t, collectBody("trk_nope", "s1", "/home"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing session id", func(t *testing.T) {
		body := collectBody(env.website.TrackingID, "", "/home")
		rec := env.postCollect(t, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/tracking/collect", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/tracking/collect", nil)
		req.Header.Set("Origin", "https://shop.example.com")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})
}

func TestCollectThenOverview(t *testing.T) {
	env := setupEnv(t)

	rec := env.postCollect(t, collectBody(env.website.TrackingID, "S1", "/home"))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/"+env.website.ID+"?type=overview", nil)
	req.Header.Set("Authorization", env.bearer(t, "owner-1"))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.OverviewReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.EqualValues(t, 1, report.Overview.TotalPageViews)
	assert.EqualValues(t, 1, report.Overview.UniqueVisitors)
	require.Len(t, report.TopPages, 1)
	assert.Equal(t, models.PageCount{URL: "/home", Views: 1, UniqueViews: 1}, report.TopPages[0])
}

func TestAnalyticsEndpoint_DateParams(t *testing.T) {
	env := setupEnv(t)

	rec := env.postCollect(t, collectBody(env.website.TrackingID, "S1", "/home"))
	require.Equal(t, http.StatusOK, rec.Code)

	overview := func(t *testing.T, params string) models.OverviewReport {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/analytics/"+env.website.ID+"?type=overview"+params, nil)
		req.Header.Set("Authorization", env.bearer(t, "owner-1"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var report models.OverviewReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		return report
	}

	t.Run("window in the past excludes current events", func(t *testing.T) {
		report := overview(t, "&startDate=2001-01-01T00:00:00Z&endDate=2001-01-02T00:00:00Z")
		assert.EqualValues(t, 0, report.Overview.TotalPageViews)
		assert.Empty(t, report.TopPages)
	})

	t.Run("start and end work as aliases", func(t *testing.T) {
		report := overview(t, "&start=2001-01-01T00:00:00Z&end=2001-01-02T00:00:00Z")
		assert.EqualValues(t, 0, report.Overview.TotalPageViews)
	})

	t.Run("window around now includes the event", func(t *testing.T) {
		start := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		end := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
		report := overview(t, "&startDate="+start+"&endDate="+end)
		assert.EqualValues(t, 1, report.Overview.TotalPageViews)
	})
}

func TestAnalyticsEndpoint_Auth(t *testing.T) {
	env := setupEnv(t)
	url := "/api/analytics/" + env.website.ID + "?type=overview"

	t.Run("no token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-owner sees not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		req.Header.Set("Authorization", env.bearer(t, "owner-2"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown query type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/analytics/"+env.website.ID+"?type=astrology", nil)
		req.Header.Set("Authorization", env.bearer(t, "owner-1"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAnalyticsEndpoint_Heatmap(t *testing.T) {
	env := setupEnv(t)

	clicks := [][2]int{{10, 10}, {15, 18}, {200, 200}}
	for i, c := range clicks {
		rec := env.postCollect(t, map[string]any{
			"trackingId": env.website.TrackingID,
			"sessionId":  fmt.Sprintf("s%d", i),
			"eventType":  "click",
			"eventData":  map[string]any{"x": c[0], "y": c[1], "url": "/page", "element": "button"},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/"+env.website.ID+"?type=heatmap&url=/page", nil)
	req.Header.Set("Authorization", env.bearer(t, "owner-1"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.HeatmapReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report.Clicks, 3)
	require.Len(t, report.Cells, 2)
	assert.Equal(t, 2, report.Cells[0].Count)
	assert.InDelta(t, 1.0, report.Cells[0].Intensity, 0.001)
}

func TestWebsitesEndpoint(t *testing.T) {
	env := setupEnv(t)
	auth := env.bearer(t, "owner-1")

	do := func(method, path, body, token string) *httptest.ResponseRecorder {
		var reader *strings.Reader
		if body == "" {
			reader = strings.NewReader("")
		} else {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("create", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/websites", `{"name":"Blog","domain":"blog.example.com"}`, auth)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created models.Website
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.True(t, strings.HasPrefix(created.TrackingID, "trk_"))
	})

	t.Run("duplicate domain conflicts", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/websites", `{"name":"Again","domain":"shop.example.com"}`, auth)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("list is owner scoped", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/websites", "", env.bearer(t, "owner-9"))
		require.Equal(t, http.StatusOK, rec.Code)
		var sites []models.Website
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sites))
		assert.Empty(t, sites)
	})

	t.Run("get and update", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/websites/"+env.website.ID, "", auth)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(http.MethodPut, "/api/websites/"+env.website.ID, `{"name":"Renamed"}`, auth)
		require.Equal(t, http.StatusOK, rec.Code)
		var updated models.Website
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		assert.Equal(t, "Renamed", updated.Name)
	})

	t.Run("non-owner gets not found", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/websites/"+env.website.ID, "", env.bearer(t, "owner-9"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/websites", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestScriptEndpoint(t *testing.T) {
	env := setupEnv(t)

	t.Run("serves configured script", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tracking/script?id="+env.website.TrackingID, nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
		assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

		body := rec.Body.String()
		assert.Contains(t, body, "window.__PAGESIGHT_CONFIG__")
		assert.Contains(t, body, env.website.TrackingID)
		assert.Contains(t, body, "/api/tracking/collect")
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tracking/script", nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tracking/script?id=trk_nope", nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestProbeEndpoints(t *testing.T) {
	env := setupEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	t.Run("request id propagates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	})
}

func TestRealtimeEndpoint_WindowExclusion(t *testing.T) {
	env := setupEnv(t)

	// Event six minutes in the past, inserted directly with an old receipt time.
	old := time.Now().UTC().Add(-6 * time.Minute)
	require.NoError(t, env.store.InsertEvent(context.Background(), &models.Event{
		ID:         "ev-old",
		WebsiteID:  env.website.ID,
		SessionID:  "s-old",
		Type:       models.EventPageView,
		Payload:    &models.PageViewPayload{URL: "/stale"},
		Timestamp:  old,
		ReceivedAt: old,
	}))
	rec := env.postCollect(t, collectBody(env.website.TrackingID, "s-live", "/live"))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/"+env.website.ID+"?type=realtime", nil)
	req.Header.Set("Authorization", env.bearer(t, "owner-1"))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.RealtimeReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.EqualValues(t, 1, report.ActiveUsers)
	require.Len(t, report.RecentEvents, 1)
	assert.Equal(t, "/live", report.RecentEvents[0].URL)
}
