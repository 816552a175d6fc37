package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/de3sec/pagesight/internal/models"
)

// InMemoryStore implements Store with maps and slices. It backs unit tests
// and local development; the aggregation semantics are identical to the
// Postgres implementation.
type InMemoryStore struct {
	mu         sync.RWMutex
	websites   map[string]*models.Website // by website id
	byTracking map[string]*models.Website // by tracking id
	events     []*models.Event
	sessions   map[string]*models.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		websites:   make(map[string]*models.Website),
		byTracking: make(map[string]*models.Website),
		sessions:   make(map[string]*models.Session),
	}
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() {}

// --- websites ---

func (s *InMemoryStore) CreateWebsite(_ context.Context, w *models.Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTracking[w.TrackingID]; exists {
		return ErrDuplicateTrackingID
	}
	for _, existing := range s.websites {
		if existing.OwnerID == w.OwnerID && existing.Domain == w.Domain {
			return ErrDuplicateDomain
		}
	}

	cp := *w
	s.websites[w.ID] = &cp
	s.byTracking[w.TrackingID] = &cp
	return nil
}

func (s *InMemoryStore) GetWebsiteByID(_ context.Context, id string) (*models.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.websites[id]
	if !ok {
		return nil, ErrWebsiteNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *InMemoryStore) GetWebsiteByTrackingID(_ context.Context, trackingID string) (*models.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byTracking[trackingID]
	if !ok {
		return nil, ErrWebsiteNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *InMemoryStore) ListWebsitesByOwner(_ context.Context, ownerID string) ([]*models.Website, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Website
	for _, w := range s.websites {
		if w.OwnerID == ownerID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) UpdateWebsite(_ context.Context, w *models.Website) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.websites[w.ID]
	if !ok {
		return ErrWebsiteNotFound
	}
	cp := *w
	cp.TrackingID = existing.TrackingID // immutable
	s.websites[w.ID] = &cp
	s.byTracking[cp.TrackingID] = &cp
	return nil
}

// --- events ---

func (s *InMemoryStore) InsertEvent(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

// inRange selects events for one website whose client timestamp falls in rng.
// Callers hold at least a read lock.
func (s *InMemoryStore) inRange(websiteID string, rng TimeRange) []*models.Event {
	var out []*models.Event
	for _, e := range s.events {
		if e.WebsiteID == websiteID && rng.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out
}

func (s *InMemoryStore) CountPageViews(_ context.Context, websiteID string, rng TimeRange) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.inRange(websiteID, rng) {
		if e.Type == models.EventPageView {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CountDistinctSessions(_ context.Context, websiteID string, rng TimeRange) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.inRange(websiteID, rng) {
		seen[e.SessionID] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (s *InMemoryStore) TopPages(_ context.Context, websiteID string, rng TimeRange, limit int) ([]models.PageCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make(map[string]int64)
	uniques := make(map[string]map[string]struct{})
	for _, e := range s.inRange(websiteID, rng) {
		if e.Type != models.EventPageView {
			continue
		}
		url := e.URL()
		views[url]++
		if uniques[url] == nil {
			uniques[url] = make(map[string]struct{})
		}
		uniques[url][e.SessionID] = struct{}{}
	}

	out := make([]models.PageCount, 0, len(views))
	for url, v := range views {
		out = append(out, models.PageCount{URL: url, Views: v, UniqueViews: int64(len(uniques[url]))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].URL < out[j].URL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) DeviceTypeCounts(_ context.Context, websiteID string, rng TimeRange) ([]models.DeviceCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range s.inRange(websiteID, rng) {
		counts[e.Device.DeviceType]++
	}

	out := make([]models.DeviceCount, 0, len(counts))
	for dt, n := range counts {
		out = append(out, models.DeviceCount{DeviceType: dt, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].DeviceType < out[j].DeviceType
	})
	return out, nil
}

func (s *InMemoryStore) DailyStats(_ context.Context, websiteID string, rng TimeRange) ([]models.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		pageViews int64
		sessions  map[string]struct{}
	}
	buckets := make(map[string]*bucket)
	for _, e := range s.inRange(websiteID, rng) {
		day := e.Timestamp.UTC().Format("2006-01-02")
		b := buckets[day]
		if b == nil {
			b = &bucket{sessions: make(map[string]struct{})}
			buckets[day] = b
		}
		if e.Type == models.EventPageView {
			b.pageViews++
		}
		b.sessions[e.SessionID] = struct{}{}
	}

	out := make([]models.DailyStat, 0, len(buckets))
	for day, b := range buckets {
		out = append(out, models.DailyStat{Date: day, PageViews: b.pageViews, Sessions: int64(len(b.sessions))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *InMemoryStore) PageViewsByHour(_ context.Context, websiteID string, rng TimeRange) ([]models.HourlyPageViews, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct{ url, hour string }
	views := make(map[key]int64)
	uniques := make(map[key]map[string]struct{})
	for _, e := range s.inRange(websiteID, rng) {
		if e.Type != models.EventPageView {
			continue
		}
		k := key{url: e.URL(), hour: e.Timestamp.UTC().Format("2006-01-02-15")}
		views[k]++
		if uniques[k] == nil {
			uniques[k] = make(map[string]struct{})
		}
		uniques[k][e.SessionID] = struct{}{}
	}

	out := make([]models.HourlyPageViews, 0, len(views))
	for k, v := range views {
		out = append(out, models.HourlyPageViews{
			URL:         k.url,
			Hour:        k.hour,
			Views:       v,
			UniqueViews: int64(len(uniques[k])),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

func (s *InMemoryStore) ClickPoints(_ context.Context, websiteID string, rng TimeRange, url string, limit int) ([]models.ClickPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ClickPoint
	for _, e := range s.inRange(websiteID, rng) {
		if e.Type != models.EventClick {
			continue
		}
		click, ok := e.Payload.(*models.ClickPayload)
		if !ok {
			continue
		}
		if url != "" && click.URL != url {
			continue
		}
		out = append(out, models.ClickPoint{
			X:           click.X,
			Y:           click.Y,
			Element:     click.Element,
			ElementText: click.ElementText,
			URL:         click.URL,
			Timestamp:   e.Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) DeviceBreakdown(_ context.Context, websiteID string, rng TimeRange, eventType models.EventType) ([]models.DeviceGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct{ deviceType, browser, os string }
	events := make(map[key]int64)
	sessions := make(map[key]map[string]struct{})
	for _, e := range s.inRange(websiteID, rng) {
		if eventType != "" && e.Type != eventType {
			continue
		}
		k := key{deviceType: e.Device.DeviceType, browser: e.Device.BrowserName, os: e.Device.OS}
		events[k]++
		if sessions[k] == nil {
			sessions[k] = make(map[string]struct{})
		}
		sessions[k][e.SessionID] = struct{}{}
	}

	out := make([]models.DeviceGroup, 0, len(events))
	for k, n := range events {
		out = append(out, models.DeviceGroup{
			DeviceType:  k.deviceType,
			BrowserName: k.browser,
			OS:          k.os,
			Sessions:    int64(len(sessions[k])),
			Events:      n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sessions != out[j].Sessions {
			return out[i].Sessions > out[j].Sessions
		}
		return out[i].Events > out[j].Events
	})
	return out, nil
}

func (s *InMemoryStore) ActiveSessionCount(_ context.Context, websiteID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range s.events {
		if e.WebsiteID == websiteID && !e.ReceivedAt.Before(since) {
			seen[e.SessionID] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (s *InMemoryStore) RecentEvents(_ context.Context, websiteID string, since time.Time, limit int) ([]models.RecentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RecentEvent
	for _, e := range s.events {
		if e.WebsiteID == websiteID && !e.ReceivedAt.Before(since) {
			out = append(out, models.RecentEvent{
				Type:      e.Type,
				URL:       e.URL(),
				SessionID: e.SessionID,
				Timestamp: e.ReceivedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) TopPagesSince(_ context.Context, websiteID string, since time.Time, limit int) ([]models.PageViews, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make(map[string]int64)
	for _, e := range s.events {
		if e.WebsiteID == websiteID && e.Type == models.EventPageView && !e.ReceivedAt.Before(since) {
			views[e.URL()]++
		}
	}

	out := make([]models.PageViews, 0, len(views))
	for url, v := range views {
		out = append(out, models.PageViews{URL: url, Views: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Views != out[j].Views {
			return out[i].Views > out[j].Views
		}
		return out[i].URL < out[j].URL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- sessions ---

func (s *InMemoryStore) UpsertPageView(_ context.Context, upd *models.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[upd.SessionID]
	if !ok {
		s.sessions[upd.SessionID] = &models.Session{
			ID:        upd.SessionID,
			WebsiteID: upd.WebsiteID,
			StartTime: upd.Now,
			PageViews: 1,
			Events:    1,
			EntryPage: upd.URL,
			ExitPage:  upd.URL,
			Device:    upd.Device,
			Geo:       upd.Geo,
		}
		return nil
	}

	end := upd.Now
	sess.EndTime = &end
	sess.DurationMs = end.Sub(sess.StartTime).Milliseconds()
	sess.PageViews++
	sess.Events++
	sess.ExitPage = upd.URL
	return nil
}

func (s *InMemoryStore) BumpSessionEvents(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Events++
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *InMemoryStore) CountSessions(_ context.Context, websiteID string, rng TimeRange) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, sess := range s.sessions {
		if sess.WebsiteID == websiteID && rng.Contains(sess.StartTime) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) AvgSessionDurationMs(_ context.Context, websiteID string, rng TimeRange) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum, n int64
	for _, sess := range s.sessions {
		if sess.WebsiteID == websiteID && rng.Contains(sess.StartTime) && sess.DurationMs > 0 {
			sum += sess.DurationMs
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (s *InMemoryStore) BounceRate(_ context.Context, websiteID string, rng TimeRange) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, bounced int64
	for _, sess := range s.sessions {
		if sess.WebsiteID == websiteID && rng.Contains(sess.StartTime) {
			total++
			if sess.Bounced() {
				bounced++
			}
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(bounced) / float64(total), nil
}
