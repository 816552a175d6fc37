package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/de3sec/pagesight/internal/events"
	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/metrics"
	"github.com/de3sec/pagesight/internal/models"
	"github.com/de3sec/pagesight/internal/realtime"
	"github.com/de3sec/pagesight/internal/repository"
	"github.com/de3sec/pagesight/internal/sampling"
	"github.com/de3sec/pagesight/internal/useragent"
)

var (
	// ErrInvalidTenant means the tracking id does not resolve to an active website.
	ErrInvalidTenant = errors.New("unknown or inactive tracking id")

	// ErrMissingField means a required request field is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidPayload means the event type is unknown or its data does not decode.
	ErrInvalidPayload = errors.New("invalid event payload")
)

// CollectRequest is the JSON body the capture script posts.
type CollectRequest struct {
	TrackingID string             `json:"trackingId"`
	SessionID  string             `json:"sessionId"`
	EventType  models.EventType   `json:"eventType"`
	EventData  json.RawMessage    `json:"eventData"`
	Device     *models.DeviceInfo `json:"deviceInfo,omitempty"`
	Timestamp  *time.Time         `json:"timestamp,omitempty"`
}

// CollectResult reports what happened to one submitted event. Sampled is
// true when the event was deliberately not stored; the client cannot tell
// sampling from path exclusion, which keeps tenant config from leaking.
type CollectResult struct {
	Accepted bool `json:"accepted"`
	Sampled  bool `json:"sampled,omitempty"`
}

// IngestService owns the write path: validate, sample, enrich, persist,
// then fan out to the session tracker, realtime tracker and publisher.
// Only persistence failures surface to the caller.
type IngestService struct {
	store     repository.Store
	tracker   realtime.Tracker
	publisher events.Publisher
	sampler   sampling.Sampler
	logger    *logging.Logger
}

func NewIngestService(
	store repository.Store,
	tracker realtime.Tracker,
	publisher events.Publisher,
	sampler sampling.Sampler,
	logger *logging.Logger,
) *IngestService {
	return &IngestService{
		store:     store,
		tracker:   tracker,
		publisher: publisher,
		sampler:   sampler,
		logger:    logger,
	}
}

// Collect processes one inbound event. clientIP and userAgent come from the
// transport layer, not from the request body.
func (s *IngestService) Collect(ctx context.Context, req *CollectRequest, clientIP, userAgent string) (*CollectResult, error) {
	if req.TrackingID == "" {
		return nil, fmt.Errorf("%w: trackingId", ErrMissingField)
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: sessionId", ErrMissingField)
	}
	if req.EventType == "" {
		return nil, fmt.Errorf("%w: eventType", ErrMissingField)
	}

	website, err := s.store.GetWebsiteByTrackingID(ctx, req.TrackingID)
	if err != nil {
		if errors.Is(err, repository.ErrWebsiteNotFound) {
			metrics.EventsTotal.WithLabelValues(string(req.EventType), "rejected").Inc()
			return nil, ErrInvalidTenant
		}
		return nil, fmt.Errorf("tenant lookup: %w", err)
	}
	if !website.Active {
		metrics.EventsTotal.WithLabelValues(string(req.EventType), "rejected").Inc()
		return nil, ErrInvalidTenant
	}

	payload, err := models.DecodePayload(req.EventType, req.EventData)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(string(req.EventType), "rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if !s.sampler.Sample(website.Settings.SamplingRate) {
		metrics.EventsSampledOut.Inc()
		metrics.EventsTotal.WithLabelValues(string(req.EventType), "sampled").Inc()
		return &CollectResult{Accepted: true, Sampled: true}, nil
	}

	e := s.buildEvent(website, req, payload, clientIP, userAgent)

	if pathExcluded(website.Settings.ExcludePaths, e.URL()) {
		metrics.EventsTotal.WithLabelValues(string(req.EventType), "excluded").Inc()
		return &CollectResult{Accepted: true, Sampled: true}, nil
	}

	start := time.Now()
	if err := s.store.InsertEvent(ctx, e); err != nil {
		metrics.StorageErrors.Inc()
		metrics.EventsTotal.WithLabelValues(string(req.EventType), "error").Inc()
		return nil, fmt.Errorf("persist event: %w", err)
	}
	metrics.StorageDuration.Observe(time.Since(start).Seconds())

	s.updateSession(ctx, website, e)

	if err := s.tracker.RecordEvent(ctx, website.ID, e); err != nil {
		metrics.RealtimeErrors.Inc()
		s.logger.WarnContext(ctx, "realtime record failed",
			logging.WebsiteID(website.ID), logging.Error(err))
	}

	if err := s.publisher.PublishEvent(e); err != nil {
		metrics.PublishErrors.Inc()
		s.logger.WarnContext(ctx, "event publish failed",
			logging.WebsiteID(website.ID), logging.Error(err))
	}

	metrics.EventsTotal.WithLabelValues(string(req.EventType), "accepted").Inc()
	return &CollectResult{Accepted: true}, nil
}

func (s *IngestService) buildEvent(website *models.Website, req *CollectRequest, payload models.Payload, clientIP, userAgent string) *models.Event {
	now := time.Now().UTC()
	ts := now
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}

	return &models.Event{
		ID:         uuid.New().String(),
		WebsiteID:  website.ID,
		SessionID:  req.SessionID,
		Type:       req.EventType,
		Payload:    payload,
		Device:     enrichDevice(req.Device, userAgent),
		IP:         clientIP,
		Timestamp:  ts,
		ReceivedAt: now,
	}
}

// updateSession keeps session state in step with the event stream. Failures
// here are logged and counted, never surfaced: the event itself is already
// durable.
func (s *IngestService) updateSession(ctx context.Context, website *models.Website, e *models.Event) {
	if e.Type == models.EventPageView {
		upd := &models.SessionUpdate{
			SessionID: e.SessionID,
			WebsiteID: website.ID,
			URL:       e.URL(),
			Device:    e.Device,
			Geo:       models.UnknownGeo(e.IP),
			Now:       e.ReceivedAt,
		}
		if err := s.store.UpsertPageView(ctx, upd); err != nil {
			metrics.SessionUpdateErrors.Inc()
			s.logger.ErrorContext(ctx, "session upsert failed",
				logging.WebsiteID(website.ID), logging.SessionID(e.SessionID), logging.Error(err))
		}
		return
	}

	if err := s.store.BumpSessionEvents(ctx, e.SessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		metrics.SessionUpdateErrors.Inc()
		s.logger.WarnContext(ctx, "session event counter bump failed",
			logging.WebsiteID(website.ID), logging.SessionID(e.SessionID), logging.Error(err))
	}
}

// enrichDevice merges the client-reported device snapshot with what the
// user-agent string says. Client values win; gaps are filled server-side.
func enrichDevice(d *models.DeviceInfo, userAgent string) models.DeviceInfo {
	var out models.DeviceInfo
	if d != nil {
		out = *d
	}
	if out.UserAgent == "" {
		out.UserAgent = userAgent
	}

	info := useragent.Classify(out.UserAgent)
	if out.DeviceType == "" {
		out.DeviceType = info.DeviceType
	}
	if out.BrowserName == "" {
		out.BrowserName = info.BrowserName
	}
	if out.BrowserVersion == "" {
		out.BrowserVersion = info.BrowserVersion
	}
	if out.OS == "" {
		out.OS = info.OS
	}
	return out
}

func pathExcluded(prefixes []string, url string) bool {
	if url == "" {
		return false
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}
