package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/de3sec/pagesight/internal/logging"
	"github.com/de3sec/pagesight/internal/metrics"
	"github.com/de3sec/pagesight/internal/models"
	"github.com/de3sec/pagesight/internal/realtime"
	"github.com/de3sec/pagesight/internal/repository"
)

const (
	// TopPageLimit caps the overview top-pages table.
	TopPageLimit = 10

	// ClickLimit caps raw click results for heatmap rendering, newest first.
	ClickLimit = 10000

	// DefaultRangeDays is the trailing query window when the caller gives none.
	DefaultRangeDays = 30
)

// AnalyticsService answers the read-side queries. All queries tolerate empty
// ranges and return zeroed structures rather than errors.
type AnalyticsService struct {
	store   repository.Store
	tracker realtime.Tracker
	logger  *logging.Logger
	now     func() time.Time
}

func NewAnalyticsService(store repository.Store, tracker realtime.Tracker, logger *logging.Logger) *AnalyticsService {
	return &AnalyticsService{
		store:   store,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
}

// AuthorizeWebsite resolves a website and checks ownership. A website owned
// by someone else reports not-found, never forbidden, so website ids cannot
// be probed.
func (s *AnalyticsService) AuthorizeWebsite(ctx context.Context, websiteID, ownerID string) (*models.Website, error) {
	website, err := s.store.GetWebsiteByID(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	if website.OwnerID != ownerID {
		return nil, repository.ErrWebsiteNotFound
	}
	return website, nil
}

// DefaultRange returns the trailing 30-day window ending now.
func (s *AnalyticsService) DefaultRange() repository.TimeRange {
	return repository.LastDays(s.now().UTC(), DefaultRangeDays)
}

// Overview fans the eight sub-queries out in parallel and assembles the
// composite report.
func (s *AnalyticsService) Overview(ctx context.Context, websiteID string, rng repository.TimeRange) (*models.OverviewReport, error) {
	defer s.observe("overview", s.now())

	report := &models.OverviewReport{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.Overview.TotalPageViews, err = s.store.CountPageViews(gctx, websiteID, rng)
		return err
	})
	g.Go(func() (err error) {
		report.Overview.UniqueVisitors, err = s.store.CountDistinctSessions(gctx, websiteID, rng)
		return err
	})
	g.Go(func() (err error) {
		report.Overview.TotalSessions, err = s.store.CountSessions(gctx, websiteID, rng)
		return err
	})
	g.Go(func() (err error) {
		report.Overview.AvgSessionDuration, err = s.store.AvgSessionDurationMs(gctx, websiteID, rng)
		return err
	})
	g.Go(func() (err error) {
		report.Overview.BounceRate, err = s.store.BounceRate(gctx, websiteID, rng)
		return err
	})
	g.Go(func() (err error) {
		report.TopPages, err = s.store.TopPages(gctx, websiteID, rng, TopPageLimit)
		return err
	})
	g.Go(func() (err error) {
		report.DeviceBreakdown, err = s.store.DeviceTypeCounts(gctx, websiteID, rng)
		return err
	})
	g.Go(func() (err error) {
		report.DailyStats, err = s.store.DailyStats(gctx, websiteID, rng)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("overview query: %w", err)
	}
	return report, nil
}

// PageViewsByHour reports per-(url, hour) pageview buckets, ascending.
func (s *AnalyticsService) PageViewsByHour(ctx context.Context, websiteID string, rng repository.TimeRange) ([]models.HourlyPageViews, error) {
	defer s.observe("pageviews", s.now())

	rows, err := s.store.PageViewsByHour(ctx, websiteID, rng)
	if err != nil {
		return nil, fmt.Errorf("pageviews query: %w", err)
	}
	return rows, nil
}

// Clicks returns raw click events, newest first, capped at ClickLimit.
func (s *AnalyticsService) Clicks(ctx context.Context, websiteID string, rng repository.TimeRange, url string) ([]models.ClickPoint, error) {
	defer s.observe("clicks", s.now())

	clicks, err := s.store.ClickPoints(ctx, websiteID, rng, url, ClickLimit)
	if err != nil {
		return nil, fmt.Errorf("clicks query: %w", err)
	}
	return clicks, nil
}

// Devices reports (deviceType, browser, os) groups, optionally narrowed to
// one event type, sorted by distinct session count.
func (s *AnalyticsService) Devices(ctx context.Context, websiteID string, rng repository.TimeRange, eventType models.EventType) ([]models.DeviceGroup, error) {
	defer s.observe("devices", s.now())

	groups, err := s.store.DeviceBreakdown(ctx, websiteID, rng, eventType)
	if err != nil {
		return nil, fmt.Errorf("devices query: %w", err)
	}
	return groups, nil
}

// Heatmap returns the capped raw clicks plus their binned cells.
func (s *AnalyticsService) Heatmap(ctx context.Context, websiteID string, rng repository.TimeRange, url string) (*models.HeatmapReport, error) {
	defer s.observe("heatmap", s.now())

	clicks, err := s.store.ClickPoints(ctx, websiteID, rng, url, ClickLimit)
	if err != nil {
		return nil, fmt.Errorf("heatmap query: %w", err)
	}
	return &models.HeatmapReport{
		Clicks: clicks,
		Cells:  BinClicks(clicks),
	}, nil
}

// Realtime answers from the Redis tracker when available and falls back to
// the event store otherwise. The window is always measured against server
// receipt time.
func (s *AnalyticsService) Realtime(ctx context.Context, websiteID string) (*models.RealtimeReport, error) {
	defer s.observe("realtime", s.now())

	now := s.now().UTC()
	report, err := s.tracker.Snapshot(ctx, websiteID, now)
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, realtime.ErrUnavailable) {
		metrics.RealtimeErrors.Inc()
		s.logger.WarnContext(ctx, "realtime snapshot failed, falling back to store",
			logging.WebsiteID(websiteID), logging.Error(err))
	}

	since := now.Add(-realtime.Window)

	report = &models.RealtimeReport{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.ActiveUsers, err = s.store.ActiveSessionCount(gctx, websiteID, since)
		return err
	})
	g.Go(func() (err error) {
		report.RecentEvents, err = s.store.RecentEvents(gctx, websiteID, since, realtime.RecentEventLimit)
		return err
	})
	g.Go(func() (err error) {
		report.TopPages, err = s.store.TopPagesSince(gctx, websiteID, since, realtime.TopPageLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("realtime query: %w", err)
	}
	return report, nil
}

func (s *AnalyticsService) observe(query string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}
