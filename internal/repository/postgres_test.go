package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/de3sec/pagesight/internal/models"
)

// setupTestDatabase starts a PostgreSQL testcontainer, applies the schema
// and returns a ready store.
func setupTestDatabase(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("pagesight_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if err := applySchema(connStr); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	store, err := NewPostgresStore(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(store.Close)

	return store
}

func applySchema(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	migrationSQL, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	return nil
}

func TestPostgresStore_Websites(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()

	w := models.NewWebsite("owner-1", "Shop", "shop.example.com")
	require.NoError(t, store.CreateWebsite(ctx, w))

	got, err := store.GetWebsiteByTrackingID(ctx, w.TrackingID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
	assert.Equal(t, w.Settings, got.Settings)
	assert.True(t, got.Active)

	t.Run("duplicate domain maps to sentinel", func(t *testing.T) {
		dup := models.NewWebsite("owner-1", "Shop again", "shop.example.com")
		assert.ErrorIs(t, store.CreateWebsite(ctx, dup), ErrDuplicateDomain)
	})

	t.Run("update skips tracking id", func(t *testing.T) {
		upd := *w
		upd.Name = "Renamed"
		upd.TrackingID = "trk_forged"
		upd.UpdatedAt = time.Now().UTC()
		require.NoError(t, store.UpdateWebsite(ctx, &upd))

		got, err := store.GetWebsiteByID(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, w.TrackingID, got.TrackingID)
	})

	t.Run("missing website", func(t *testing.T) {
		_, err := store.GetWebsiteByID(ctx, "ws_missing")
		assert.ErrorIs(t, err, ErrWebsiteNotFound)
	})
}

func TestPostgresStore_EventAggregates(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	insert := func(e *models.Event) {
		t.Helper()
		if e.ID == "" {
			e.ID = fmt.Sprintf("ev-%d", time.Now().UnixNano())
			time.Sleep(time.Microsecond)
		}
		require.NoError(t, store.InsertEvent(ctx, e))
	}

	insert(pageview("ws_1", "s1", "/home", base))
	insert(pageview("ws_1", "s1", "/home", base.Add(time.Minute)))
	insert(pageview("ws_1", "s2", "/home", base.Add(2*time.Minute)))
	insert(pageview("ws_1", "s2", "/about", base.Add(40*time.Minute)))
	insert(click("ws_1", "s1", "/home", 105, 42, base.Add(time.Minute)))
	insert(pageview("ws_2", "s9", "/home", base))

	rng := TimeRange{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}

	t.Run("counts", func(t *testing.T) {
		views, err := store.CountPageViews(ctx, "ws_1", rng)
		require.NoError(t, err)
		assert.EqualValues(t, 4, views)

		sessions, err := store.CountDistinctSessions(ctx, "ws_1", rng)
		require.NoError(t, err)
		assert.EqualValues(t, 2, sessions)
	})

	t.Run("top pages", func(t *testing.T) {
		pages, err := store.TopPages(ctx, "ws_1", rng, 10)
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Equal(t, models.PageCount{URL: "/home", Views: 3, UniqueViews: 2}, pages[0])
	})

	t.Run("hourly buckets in UTC", func(t *testing.T) {
		rows, err := store.PageViewsByHour(ctx, "ws_1", rng)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, models.HourlyPageViews{URL: "/home", Hour: "2026-03-10-09", Views: 3, UniqueViews: 2}, rows[0])
		assert.Equal(t, models.HourlyPageViews{URL: "/about", Hour: "2026-03-10-10", Views: 1, UniqueViews: 1}, rows[1])
	})

	t.Run("daily stats", func(t *testing.T) {
		stats, err := store.DailyStats(ctx, "ws_1", rng)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, models.DailyStat{Date: "2026-03-10", PageViews: 4, Sessions: 2}, stats[0])
	})

	t.Run("click points come back from promoted columns", func(t *testing.T) {
		points, err := store.ClickPoints(ctx, "ws_1", rng, "", 100)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, 105, points[0].X)
		assert.Equal(t, 42, points[0].Y)
		assert.Equal(t, "button", points[0].Element)
	})

	t.Run("device breakdown", func(t *testing.T) {
		groups, err := store.DeviceBreakdown(ctx, "ws_1", rng, "")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "desktop", groups[0].DeviceType)
		assert.EqualValues(t, 2, groups[0].Sessions)
		assert.EqualValues(t, 5, groups[0].Events)
	})

	t.Run("inverted range matches nothing", func(t *testing.T) {
		views, err := store.CountPageViews(ctx, "ws_1", TimeRange{Start: base, End: base.Add(-time.Hour)})
		require.NoError(t, err)
		assert.Zero(t, views)
	})
}

func TestPostgresStore_SessionUpsert(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	upd := &models.SessionUpdate{
		SessionID: "s1",
		WebsiteID: "ws_1",
		URL:       "/landing",
		Device:    testDevice,
		Geo:       models.UnknownGeo("203.0.113.7"),
		Now:       start,
	}
	require.NoError(t, store.UpsertPageView(ctx, upd))

	second := *upd
	second.URL = "/pricing"
	second.Now = start.Add(90 * time.Second)
	require.NoError(t, store.UpsertPageView(ctx, &second))

	sess, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "/landing", sess.EntryPage)
	assert.Equal(t, "/pricing", sess.ExitPage)
	assert.Equal(t, 2, sess.PageViews)
	assert.EqualValues(t, 90_000, sess.DurationMs)
	assert.Equal(t, "203.0.113.7", sess.Geo.IP)
	assert.False(t, sess.Bounced())

	require.NoError(t, store.BumpSessionEvents(ctx, "s1"))
	sess, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, sess.Events)

	t.Run("aggregates", func(t *testing.T) {
		bounce := *upd
		bounce.SessionID = "s2"
		bounce.Now = start.Add(time.Minute)
		require.NoError(t, store.UpsertPageView(ctx, &bounce))

		rng := TimeRange{Start: start.Add(-time.Hour), End: start.Add(time.Hour)}

		total, err := store.CountSessions(ctx, "ws_1", rng)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)

		avg, err := store.AvgSessionDurationMs(ctx, "ws_1", rng)
		require.NoError(t, err)
		assert.InDelta(t, 90_000, avg, 0.001)

		rate, err := store.BounceRate(ctx, "ws_1", rng)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, rate, 0.001)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := store.GetSession(ctx, "s-missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.ErrorIs(t, store.BumpSessionEvents(ctx, "s-missing"), ErrSessionNotFound)
	})
}
