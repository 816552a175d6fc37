package repository

import (
	"context"
	"errors"
	"time"

	"github.com/de3sec/pagesight/internal/models"
)

var (
	ErrWebsiteNotFound     = errors.New("website not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrDuplicateDomain     = errors.New("domain already tracked for this owner")
	ErrDuplicateTrackingID = errors.New("tracking id already exists")
)

// TimeRange is an inclusive [Start, End] window over client-reported event
// timestamps. A range with Start after End matches nothing; it is not an
// error.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// LastDays returns the trailing-n-days range ending at now.
func LastDays(now time.Time, n int) TimeRange {
	return TimeRange{Start: now.AddDate(0, 0, -n), End: now}
}

// WebsiteRepository is the tenant registry surface the rest of the engine
// depends on.
type WebsiteRepository interface {
	CreateWebsite(ctx context.Context, w *models.Website) error
	GetWebsiteByID(ctx context.Context, id string) (*models.Website, error)
	GetWebsiteByTrackingID(ctx context.Context, trackingID string) (*models.Website, error)
	ListWebsitesByOwner(ctx context.Context, ownerID string) ([]*models.Website, error)
	UpdateWebsite(ctx context.Context, w *models.Website) error
}

// EventRepository owns the append-only event log and the read-side grouping
// queries over it. Range queries filter on the client-reported timestamp;
// the Since queries filter on the server receipt time, which is what the
// realtime window trusts.
type EventRepository interface {
	InsertEvent(ctx context.Context, e *models.Event) error

	CountPageViews(ctx context.Context, websiteID string, rng TimeRange) (int64, error)
	CountDistinctSessions(ctx context.Context, websiteID string, rng TimeRange) (int64, error)
	TopPages(ctx context.Context, websiteID string, rng TimeRange, limit int) ([]models.PageCount, error)
	DeviceTypeCounts(ctx context.Context, websiteID string, rng TimeRange) ([]models.DeviceCount, error)
	DailyStats(ctx context.Context, websiteID string, rng TimeRange) ([]models.DailyStat, error)
	PageViewsByHour(ctx context.Context, websiteID string, rng TimeRange) ([]models.HourlyPageViews, error)
	ClickPoints(ctx context.Context, websiteID string, rng TimeRange, url string, limit int) ([]models.ClickPoint, error)
	DeviceBreakdown(ctx context.Context, websiteID string, rng TimeRange, eventType models.EventType) ([]models.DeviceGroup, error)

	ActiveSessionCount(ctx context.Context, websiteID string, since time.Time) (int64, error)
	RecentEvents(ctx context.Context, websiteID string, since time.Time, limit int) ([]models.RecentEvent, error)
	TopPagesSince(ctx context.Context, websiteID string, since time.Time, limit int) ([]models.PageViews, error)
}

// SessionRepository owns session records. UpsertPageView must be atomic in
// the store (increment-and-set, not read-modify-write in application code).
type SessionRepository interface {
	UpsertPageView(ctx context.Context, upd *models.SessionUpdate) error
	BumpSessionEvents(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	CountSessions(ctx context.Context, websiteID string, rng TimeRange) (int64, error)
	AvgSessionDurationMs(ctx context.Context, websiteID string, rng TimeRange) (float64, error)
	BounceRate(ctx context.Context, websiteID string, rng TimeRange) (float64, error)
}

// Store is the full persistence surface.
type Store interface {
	WebsiteRepository
	EventRepository
	SessionRepository

	// Ping reports whether the store can serve requests. Used by readiness
	// probes.
	Ping(ctx context.Context) error
	Close()
}
