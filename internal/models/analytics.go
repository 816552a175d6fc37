package models

import "time"

// OverviewTotals are the headline numbers of the overview report.
type OverviewTotals struct {
	TotalPageViews     int64   `json:"totalPageViews"`
	UniqueVisitors     int64   `json:"uniqueVisitors"`
	TotalSessions      int64   `json:"totalSessions"`
	AvgSessionDuration float64 `json:"avgSessionDuration"`
	BounceRate         float64 `json:"bounceRate"`
}

// PageCount is one row of the top-pages table.
type PageCount struct {
	URL         string `json:"url"`
	Views       int64  `json:"views"`
	UniqueViews int64  `json:"uniqueViews"`
}

// DeviceCount is the event count for one device type.
type DeviceCount struct {
	DeviceType string `json:"deviceType"`
	Count      int64  `json:"count"`
}

// DailyStat is one UTC calendar-date bucket of pageviews and distinct sessions.
type DailyStat struct {
	Date      string `json:"date"` // YYYY-MM-DD
	PageViews int64  `json:"pageViews"`
	Sessions  int64  `json:"sessions"`
}

// OverviewReport is the composite answer to the overview query.
type OverviewReport struct {
	Overview        OverviewTotals `json:"overview"`
	TopPages        []PageCount    `json:"topPages"`
	DeviceBreakdown []DeviceCount  `json:"deviceBreakdown"`
	DailyStats      []DailyStat    `json:"dailyStats"`
}

// HourlyPageViews is one (url, hour) bucket. Hour is formatted
// YYYY-MM-DD-HH in UTC and rows sort ascending by it.
type HourlyPageViews struct {
	URL         string `json:"url"`
	Hour        string `json:"hour"`
	Views       int64  `json:"views"`
	UniqueViews int64  `json:"uniqueViews"`
}

// ClickPoint is one raw click event as consumed by heatmap rendering.
type ClickPoint struct {
	X           int       `json:"x"`
	Y           int       `json:"y"`
	Element     string    `json:"element,omitempty"`
	ElementText string    `json:"elementText,omitempty"`
	URL         string    `json:"url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// DeviceGroup is one (deviceType, browser, os) group with its distinct
// session count and raw event count.
type DeviceGroup struct {
	DeviceType  string `json:"deviceType"`
	BrowserName string `json:"browserName"`
	OS          string `json:"os"`
	Sessions    int64  `json:"sessions"`
	Events      int64  `json:"events"`
}

// HeatmapCell is a 20-pixel grid cell with its accumulated click count and
// the normalized render intensity (count / max cell count).
type HeatmapCell struct {
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
}

// HeatmapReport carries both the raw (capped) points and their binned cells.
type HeatmapReport struct {
	Clicks []ClickPoint  `json:"clicks"`
	Cells  []HeatmapCell `json:"cells"`
}

// RecentEvent is the compact event view shown in the realtime feed.
type RecentEvent struct {
	Type      EventType `json:"eventType"`
	URL       string    `json:"url,omitempty"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// PageViews is one row of the realtime top-pages list.
type PageViews struct {
	URL   string `json:"url"`
	Views int64  `json:"views"`
}

// RealtimeReport answers the trailing-window "active now" query.
type RealtimeReport struct {
	ActiveUsers  int64         `json:"activeUsers"`
	RecentEvents []RecentEvent `json:"recentEvents"`
	TopPages     []PageViews   `json:"topPages"`
}
