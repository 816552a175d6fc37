// Package realtime provides the Redis-backed live-activity tracker.
//
// Designed for multiple collector instances writing concurrently. Queries
// fall back to the event store when Redis is not configured.
//
// Redis Key Structure:
//
//	rt:sessions:{website_id}           - ZSET of session ids scored by last-seen unix ms
//	rt:events:{website_id}             - List of recent event JSON blobs, newest first
//	rt:pages:{website_id}:{YYYYMMDDHHMM} - ZSET of pageview counts per URL for one minute
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/de3sec/pagesight/internal/models"
)

// ErrUnavailable signals that no live tracker is configured and callers
// should answer from the event store instead.
var ErrUnavailable = errors.New("realtime tracker unavailable")

const (
	// Window is the trailing activity window a visitor counts as "active" in.
	Window = 5 * time.Minute

	// RecentEventLimit caps the live event feed.
	RecentEventLimit = 50

	// TopPageLimit caps the live top-pages list.
	TopPageLimit = 5

	keyTTL = 10 * time.Minute
)

// Tracker records accepted events and answers the live-activity query.
type Tracker interface {
	RecordEvent(ctx context.Context, websiteID string, e *models.Event) error
	Snapshot(ctx context.Context, websiteID string, now time.Time) (*models.RealtimeReport, error)
}

// RedisTracker implements Tracker on Redis.
type RedisTracker struct {
	redis *redis.Client
}

// NewRedisTracker connects to Redis and verifies the connection.
func NewRedisTracker(redisURL string) (*RedisTracker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisTracker{redis: client}, nil
}

// NewRedisTrackerFromClient wraps an existing Redis connection.
func NewRedisTrackerFromClient(client *redis.Client) *RedisTracker {
	return &RedisTracker{redis: client}
}

func sessionsKey(websiteID string) string { return "rt:sessions:" + websiteID }
func eventsKey(websiteID string) string   { return "rt:events:" + websiteID }

func pagesKey(websiteID string, minute time.Time) string {
	return fmt.Sprintf("rt:pages:%s:%s", websiteID, minute.UTC().Format("200601021504"))
}

// RecordEvent is called on every accepted event. One pipeline round trip.
func (t *RedisTracker) RecordEvent(ctx context.Context, websiteID string, e *models.Event) error {
	recent := models.RecentEvent{
		Type:      e.Type,
		URL:       e.URL(),
		SessionID: e.SessionID,
		Timestamp: e.ReceivedAt,
	}
	blob, err := json.Marshal(recent)
	if err != nil {
		return fmt.Errorf("failed to marshal recent event: %w", err)
	}

	now := e.ReceivedAt
	pipe := t.redis.Pipeline()

	sk := sessionsKey(websiteID)
	pipe.ZAdd(ctx, sk, redis.Z{Score: float64(now.UnixMilli()), Member: e.SessionID})
	pipe.ZRemRangeByScore(ctx, sk, "-inf", fmt.Sprintf("%d", now.Add(-Window).UnixMilli()))
	pipe.Expire(ctx, sk, keyTTL)

	ek := eventsKey(websiteID)
	pipe.LPush(ctx, ek, blob)
	pipe.LTrim(ctx, ek, 0, RecentEventLimit-1)
	pipe.Expire(ctx, ek, keyTTL)

	if e.Type == models.EventPageView && recent.URL != "" {
		pk := pagesKey(websiteID, now)
		pipe.ZIncrBy(ctx, pk, 1, recent.URL)
		pipe.Expire(ctx, pk, keyTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return nil
}

// Snapshot answers the live-activity query for one website.
func (t *RedisTracker) Snapshot(ctx context.Context, websiteID string, now time.Time) (*models.RealtimeReport, error) {
	cutoff := now.Add(-Window)

	active, err := t.redis.ZCount(ctx, sessionsKey(websiteID),
		fmt.Sprintf("%d", cutoff.UnixMilli()), "+inf").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	blobs, err := t.redis.LRange(ctx, eventsKey(websiteID), 0, RecentEventLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}
	events := make([]models.RecentEvent, 0, len(blobs))
	for _, blob := range blobs {
		var e models.RecentEvent
		if err := json.Unmarshal([]byte(blob), &e); err != nil {
			continue // skip torn writes
		}
		if e.Timestamp.Before(cutoff) {
			continue
		}
		events = append(events, e)
	}

	pages, err := t.topPages(ctx, websiteID, now)
	if err != nil {
		return nil, err
	}

	return &models.RealtimeReport{
		ActiveUsers:  active,
		RecentEvents: events,
		TopPages:     pages,
	}, nil
}

// topPages merges the per-minute ZSETs covering the window into a scratch
// key and reads the top entries from it.
func (t *RedisTracker) topPages(ctx context.Context, websiteID string, now time.Time) ([]models.PageViews, error) {
	minutes := int(Window / time.Minute)
	keys := make([]string, 0, minutes+1)
	for i := 0; i <= minutes; i++ {
		keys = append(keys, pagesKey(websiteID, now.Add(-time.Duration(i)*time.Minute)))
	}

	scratch := fmt.Sprintf("rt:pages:%s:merge:%d", websiteID, now.UnixNano())
	if err := t.redis.ZUnionStore(ctx, scratch, &redis.ZStore{Keys: keys}).Err(); err != nil {
		return nil, fmt.Errorf("failed to merge page counters: %w", err)
	}
	defer t.redis.Del(context.WithoutCancel(ctx), scratch)

	top, err := t.redis.ZRevRangeWithScores(ctx, scratch, 0, TopPageLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read top pages: %w", err)
	}

	out := make([]models.PageViews, 0, len(top))
	for _, z := range top {
		url, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, models.PageViews{URL: url, Views: int64(z.Score)})
	}
	return out, nil
}

// NoOpTracker is used when no Redis address is configured.
type NoOpTracker struct{}

func (NoOpTracker) RecordEvent(context.Context, string, *models.Event) error { return nil }

func (NoOpTracker) Snapshot(context.Context, string, time.Time) (*models.RealtimeReport, error) {
	return nil, ErrUnavailable
}
