package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/de3sec/pagesight/internal/models"
)

// PostgresStore implements Store using PostgreSQL. Events are append-only
// with hot payload fields promoted to columns so the grouping queries never
// have to open the jsonb payload.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a pooled PostgreSQL store.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// mapUniqueViolation translates a 23505 into the matching sentinel error.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "tracking_id") {
			return ErrDuplicateTrackingID
		}
		return ErrDuplicateDomain
	}
	return nil
}

// --- websites ---

func (s *PostgresStore) CreateWebsite(ctx context.Context, w *models.Website) error {
	query := `
		INSERT INTO websites (id, owner_id, name, domain, tracking_id, active, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		w.ID, w.OwnerID, w.Name, w.Domain, w.TrackingID,
		w.Active, w.Settings, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to create website: %w", err)
	}

	return nil
}

const websiteColumns = `id, owner_id, name, domain, tracking_id, active, settings, created_at, updated_at`

func scanWebsite(row pgx.Row) (*models.Website, error) {
	w := &models.Website{}
	err := row.Scan(
		&w.ID, &w.OwnerID, &w.Name, &w.Domain, &w.TrackingID,
		&w.Active, &w.Settings, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWebsiteNotFound
		}
		return nil, fmt.Errorf("failed to scan website: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) GetWebsiteByID(ctx context.Context, id string) (*models.Website, error) {
	query := `SELECT ` + websiteColumns + ` FROM websites WHERE id = $1`
	return scanWebsite(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) GetWebsiteByTrackingID(ctx context.Context, trackingID string) (*models.Website, error) {
	query := `SELECT ` + websiteColumns + ` FROM websites WHERE tracking_id = $1`
	return scanWebsite(s.pool.QueryRow(ctx, query, trackingID))
}

func (s *PostgresStore) ListWebsitesByOwner(ctx context.Context, ownerID string) ([]*models.Website, error) {
	query := `SELECT ` + websiteColumns + ` FROM websites WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	defer rows.Close()

	var out []*models.Website
	for rows.Next() {
		w := &models.Website{}
		if err := rows.Scan(
			&w.ID, &w.OwnerID, &w.Name, &w.Domain, &w.TrackingID,
			&w.Active, &w.Settings, &w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan website: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateWebsite(ctx context.Context, w *models.Website) error {
	// tracking_id is deliberately absent from the SET list.
	query := `
		UPDATE websites
		SET name = $2, domain = $3, active = $4, settings = $5, updated_at = $6
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, w.ID, w.Name, w.Domain, w.Active, w.Settings, w.UpdatedAt)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("failed to update website: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWebsiteNotFound
	}

	return nil
}

// --- events ---

func (s *PostgresStore) InsertEvent(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (
			id, website_id, session_id, event_type, payload, url, click_x, click_y,
			element, element_text, device_type, browser_name, browser_version, os,
			user_agent, ip, ts, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	var clickX, clickY *int
	var element, elementText string
	if click, ok := e.Payload.(*models.ClickPayload); ok {
		clickX, clickY = &click.X, &click.Y
		element, elementText = click.Element, click.ElementText
	}

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.WebsiteID, e.SessionID, e.Type, e.Payload, e.URL(), clickX, clickY,
		element, elementText, e.Device.DeviceType, e.Device.BrowserName, e.Device.BrowserVersion,
		e.Device.OS, e.Device.UserAgent, e.IP, e.Timestamp, e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

func (s *PostgresStore) CountPageViews(ctx context.Context, websiteID string, rng TimeRange) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM events
		WHERE website_id = $1 AND event_type = 'pageview' AND ts >= $2 AND ts <= $3
	`

	var n int64
	if err := s.pool.QueryRow(ctx, query, websiteID, rng.Start, rng.End).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count page views: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountDistinctSessions(ctx context.Context, websiteID string, rng TimeRange) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT session_id)
		FROM events
		WHERE website_id = $1 AND ts >= $2 AND ts <= $3
	`

	var n int64
	if err := s.pool.QueryRow(ctx, query, websiteID, rng.Start, rng.End).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) TopPages(ctx context.Context, websiteID string, rng TimeRange, limit int) ([]models.PageCount, error) {
	query := `
		SELECT url, COUNT(*) AS views, COUNT(DISTINCT session_id) AS unique_views
		FROM events
		WHERE website_id = $1 AND event_type = 'pageview' AND ts >= $2 AND ts <= $3
		GROUP BY url
		ORDER BY views DESC, url ASC
		LIMIT $4
	`

	rows, err := s.pool.Query(ctx, query, websiteID, rng.Start, rng.End, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var out []models.PageCount
	for rows.Next() {
		var p models.PageCount
		if err := rows.Scan(&p.URL, &p.Views, &p.UniqueViews); err != nil {
			return nil, fmt.Errorf("failed to scan top pages: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeviceTypeCounts(ctx context.Context, websiteID string, rng TimeRange) ([]models.DeviceCount, error) {
	query := `
		SELECT device_type, COUNT(*) AS events
		FROM events
		WHERE website_id = $1 AND ts >= $2 AND ts <= $3
		GROUP BY device_type
		ORDER BY events DESC, device_type ASC
	`

	rows, err := s.pool.Query(ctx, query, websiteID, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query device counts: %w", err)
	}
	defer rows.Close()

	var out []models.DeviceCount
	for rows.Next() {
		var d models.DeviceCount
		if err := rows.Scan(&d.DeviceType, &d.Count); err != nil {
			return nil, fmt.Errorf("failed to scan device counts: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DailyStats(ctx context.Context, websiteID string, rng TimeRange) ([]models.DailyStat, error) {
	query := `
		SELECT
			to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*) FILTER (WHERE event_type = 'pageview') AS page_views,
			COUNT(DISTINCT session_id) AS sessions
		FROM events
		WHERE website_id = $1 AND ts >= $2 AND ts <= $3
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := s.pool.Query(ctx, query, websiteID, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var out []models.DailyStat
	for rows.Next() {
		var d models.DailyStat
		if err := rows.Scan(&d.Date, &d.PageViews, &d.Sessions); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PageViewsByHour(ctx context.Context, websiteID string, rng TimeRange) ([]models.HourlyPageViews, error) {
	query := `
		SELECT
			url,
			to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD-HH24') AS hour,
			COUNT(*) AS views,
			COUNT(DISTINCT session_id) AS unique_views
		FROM events
		WHERE website_id = $1 AND event_type = 'pageview' AND ts >= $2 AND ts <= $3
		GROUP BY url, hour
		ORDER BY hour ASC, url ASC
	`

	rows, err := s.pool.Query(ctx, query, websiteID, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly page views: %w", err)
	}
	defer rows.Close()

	var out []models.HourlyPageViews
	for rows.Next() {
		var h models.HourlyPageViews
		if err := rows.Scan(&h.URL, &h.Hour, &h.Views, &h.UniqueViews); err != nil {
			return nil, fmt.Errorf("failed to scan hourly page views: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ClickPoints(ctx context.Context, websiteID string, rng TimeRange, url string, limit int) ([]models.ClickPoint, error) {
	query := `
		SELECT click_x, click_y, element, element_text, url, ts
		FROM events
		WHERE website_id = $1 AND event_type = 'click' AND ts >= $2 AND ts <= $3
	`
	args := []any{websiteID, rng.Start, rng.End}
	if url != "" {
		query += ` AND url = $4`
		args = append(args, url)
	}
	query += fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query click points: %w", err)
	}
	defer rows.Close()

	var out []models.ClickPoint
	for rows.Next() {
		var c models.ClickPoint
		if err := rows.Scan(&c.X, &c.Y, &c.Element, &c.ElementText, &c.URL, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan click points: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeviceBreakdown(ctx context.Context, websiteID string, rng TimeRange, eventType models.EventType) ([]models.DeviceGroup, error) {
	query := `
		SELECT device_type, browser_name, os,
			COUNT(DISTINCT session_id) AS sessions,
			COUNT(*) AS events
		FROM events
		WHERE website_id = $1 AND ts >= $2 AND ts <= $3
	`
	args := []any{websiteID, rng.Start, rng.End}
	if eventType != "" {
		query += ` AND event_type = $4`
		args = append(args, eventType)
	}
	query += `
		GROUP BY device_type, browser_name, os
		ORDER BY sessions DESC, events DESC
	`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query device breakdown: %w", err)
	}
	defer rows.Close()

	var out []models.DeviceGroup
	for rows.Next() {
		var g models.DeviceGroup
		if err := rows.Scan(&g.DeviceType, &g.BrowserName, &g.OS, &g.Sessions, &g.Events); err != nil {
			return nil, fmt.Errorf("failed to scan device breakdown: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveSessionCount(ctx context.Context, websiteID string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT session_id)
		FROM events
		WHERE website_id = $1 AND received_at >= $2
	`

	var n int64
	if err := s.pool.QueryRow(ctx, query, websiteID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) RecentEvents(ctx context.Context, websiteID string, since time.Time, limit int) ([]models.RecentEvent, error) {
	query := `
		SELECT event_type, url, session_id, received_at
		FROM events
		WHERE website_id = $1 AND received_at >= $2
		ORDER BY received_at DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, websiteID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var out []models.RecentEvent
	for rows.Next() {
		var e models.RecentEvent
		if err := rows.Scan(&e.Type, &e.URL, &e.SessionID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan recent events: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TopPagesSince(ctx context.Context, websiteID string, since time.Time, limit int) ([]models.PageViews, error) {
	query := `
		SELECT url, COUNT(*) AS views
		FROM events
		WHERE website_id = $1 AND event_type = 'pageview' AND received_at >= $2
		GROUP BY url
		ORDER BY views DESC, url ASC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, websiteID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var out []models.PageViews
	for rows.Next() {
		var p models.PageViews
		if err := rows.Scan(&p.URL, &p.Views); err != nil {
			return nil, fmt.Errorf("failed to scan top pages: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- sessions ---

// UpsertPageView is a single-statement upsert so concurrent pageviews from
// the same session never lose increments.
func (s *PostgresStore) UpsertPageView(ctx context.Context, upd *models.SessionUpdate) error {
	query := `
		INSERT INTO sessions (
			id, website_id, start_time, end_time, duration_ms,
			page_views, events, entry_page, exit_page, device, geo
		)
		VALUES ($1, $2, $3, NULL, 0, 1, 1, $4, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.start_time,
			duration_ms = (EXTRACT(EPOCH FROM (EXCLUDED.start_time - sessions.start_time)) * 1000)::bigint,
			page_views = sessions.page_views + 1,
			events = sessions.events + 1,
			exit_page = EXCLUDED.exit_page
	`

	_, err := s.pool.Exec(ctx, query,
		upd.SessionID, upd.WebsiteID, upd.Now, upd.URL, upd.Device, upd.Geo,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	return nil
}

func (s *PostgresStore) BumpSessionEvents(ctx context.Context, sessionID string) error {
	query := `UPDATE sessions SET events = events + 1 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to bump session events: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT id, website_id, start_time, end_time, duration_ms,
			page_views, events, entry_page, exit_page, device, geo
		FROM sessions
		WHERE id = $1
	`

	sess := &models.Session{}
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&sess.ID, &sess.WebsiteID, &sess.StartTime, &sess.EndTime, &sess.DurationMs,
		&sess.PageViews, &sess.Events, &sess.EntryPage, &sess.ExitPage, &sess.Device, &sess.Geo,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

func (s *PostgresStore) CountSessions(ctx context.Context, websiteID string, rng TimeRange) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM sessions
		WHERE website_id = $1 AND start_time >= $2 AND start_time <= $3
	`

	var n int64
	if err := s.pool.QueryRow(ctx, query, websiteID, rng.Start, rng.End).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AvgSessionDurationMs(ctx context.Context, websiteID string, rng TimeRange) (float64, error) {
	query := `
		SELECT COALESCE(AVG(duration_ms) FILTER (WHERE duration_ms > 0), 0)
		FROM sessions
		WHERE website_id = $1 AND start_time >= $2 AND start_time <= $3
	`

	var avg float64
	if err := s.pool.QueryRow(ctx, query, websiteID, rng.Start, rng.End).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to compute average session duration: %w", err)
	}
	return avg, nil
}

func (s *PostgresStore) BounceRate(ctx context.Context, websiteID string, rng TimeRange) (float64, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE page_views <= 1)
		FROM sessions
		WHERE website_id = $1 AND start_time >= $2 AND start_time <= $3
	`

	var total, bounced int64
	if err := s.pool.QueryRow(ctx, query, websiteID, rng.Start, rng.End).Scan(&total, &bounced); err != nil {
		return 0, fmt.Errorf("failed to compute bounce rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(bounced) / float64(total), nil
}
