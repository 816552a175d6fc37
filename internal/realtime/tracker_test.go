package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de3sec/pagesight/internal/models"
)

func setupTracker(t *testing.T) (*RedisTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTrackerFromClient(client), mr
}

func liveEvent(sessionID, url string, eventType models.EventType, at time.Time) *models.Event {
	var payload models.Payload
	switch eventType {
	case models.EventPageView:
		payload = &models.PageViewPayload{URL: url}
	case models.EventClick:
		payload = &models.ClickPayload{URL: url, X: 1, Y: 1}
	default:
		payload = &models.CustomPayload{}
	}
	return &models.Event{
		SessionID:  sessionID,
		Type:       eventType,
		Payload:    payload,
		ReceivedAt: at,
	}
}

func TestRedisTracker_Snapshot(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.RecordEvent(ctx, "ws_1", liveEvent("s1", "/live", models.EventPageView, now.Add(-4*time.Minute))))
	require.NoError(t, tracker.RecordEvent(ctx, "ws_1", liveEvent("s1", "/live", models.EventPageView, now.Add(-2*time.Minute))))
	require.NoError(t, tracker.RecordEvent(ctx, "ws_1", liveEvent("s2", "/docs", models.EventPageView, now.Add(-time.Minute))))
	require.NoError(t, tracker.RecordEvent(ctx, "ws_1", liveEvent("s2", "/docs", models.EventClick, now.Add(-30*time.Second))))
	// Other websites never bleed in.
	require.NoError(t, tracker.RecordEvent(ctx, "ws_2", liveEvent("s9", "/other", models.EventPageView, now)))

	report, err := tracker.Snapshot(ctx, "ws_1", now)
	require.NoError(t, err)

	assert.EqualValues(t, 2, report.ActiveUsers)

	require.Len(t, report.RecentEvents, 4)
	// Newest first.
	assert.Equal(t, models.EventClick, report.RecentEvents[0].Type)
	assert.Equal(t, "s2", report.RecentEvents[0].SessionID)
	assert.Equal(t, models.EventPageView, report.RecentEvents[3].Type)
	assert.Equal(t, "/live", report.RecentEvents[3].URL)

	// Clicks count in the feed but never in the pageview leaderboard.
	require.Len(t, report.TopPages, 2)
	assert.Equal(t, models.PageViews{URL: "/live", Views: 2}, report.TopPages[0])
	assert.Equal(t, models.PageViews{URL: "/docs", Views: 1}, report.TopPages[1])
}

func TestRedisTracker_WindowExpiry(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.RecordEvent(ctx, "ws_1", liveEvent("s1", "/old", models.EventPageView, now.Add(-6*time.Minute))))
	require.NoError(t, tracker.RecordEvent(ctx, "ws_1", liveEvent("s2", "/new", models.EventPageView, now)))

	report, err := tracker.Snapshot(ctx, "ws_1", now)
	require.NoError(t, err)

	// The six-minute-old session dropped out of the window.
	assert.EqualValues(t, 1, report.ActiveUsers)

	// Stale entries in the feed are filtered on read.
	require.Len(t, report.RecentEvents, 1)
	assert.Equal(t, "/new", report.RecentEvents[0].URL)

	// The old minute bucket is outside the merged key set.
	require.Len(t, report.TopPages, 1)
	assert.Equal(t, "/new", report.TopPages[0].URL)
}

func TestRedisTracker_FeedCap(t *testing.T) {
	tracker, _ := setupTracker(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < RecentEventLimit+10; i++ {
		ev := liveEvent("s1", "/busy", models.EventPageView, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, tracker.RecordEvent(ctx, "ws_1", ev))
	}

	report, err := tracker.Snapshot(ctx, "ws_1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, report.RecentEvents, RecentEventLimit)
}

func TestRedisTracker_KeysExpire(t *testing.T) {
	tracker, mr := setupTracker(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, tracker.RecordEvent(ctx, "ws_1", liveEvent("s1", "/live", models.EventPageView, now)))
	assert.True(t, mr.Exists("rt:sessions:ws_1"))

	mr.FastForward(keyTTL + time.Minute)
	assert.False(t, mr.Exists("rt:sessions:ws_1"))
	assert.False(t, mr.Exists("rt:events:ws_1"))
}

func TestNoOpTracker(t *testing.T) {
	ctx := context.Background()
	var tracker Tracker = NoOpTracker{}

	assert.NoError(t, tracker.RecordEvent(ctx, "ws_1", liveEvent("s1", "/a", models.EventPageView, time.Now())))

	_, err := tracker.Snapshot(ctx, "ws_1", time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}
