package models

import "time"

// GeoInfo is the geolocation stub attached to sessions. Only the IP handoff
// point is populated; country/city/region stay "Unknown" until a GeoIP
// integration fills them.
type GeoInfo struct {
	IP      string `json:"ip,omitempty"`
	Country string `json:"country"`
	City    string `json:"city"`
	Region  string `json:"region"`
}

// UnknownGeo returns the stub geo record for a client IP.
func UnknownGeo(ip string) GeoInfo {
	return GeoInfo{IP: ip, Country: "Unknown", City: "Unknown", Region: "Unknown"}
}

// Session is the mutable per-visit record derived from the pageview stream.
// The Session Tracker is its only writer. There is no stored "closed" state:
// readers treat a session as ended once more than the inactivity threshold
// has elapsed since its last update.
type Session struct {
	ID         string     `json:"sessionId"`
	WebsiteID  string     `json:"websiteId"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	DurationMs int64      `json:"duration"`
	PageViews  int        `json:"pageViews"`
	Events     int        `json:"events"`
	EntryPage  string     `json:"entryPage"`
	ExitPage   string     `json:"exitPage"`
	Device     DeviceInfo `json:"deviceInfo"`
	Geo        GeoInfo    `json:"geoInfo"`
}

// Bounced is recomputed on every read rather than stored, so it can never
// disagree with the page-view counter.
func (s *Session) Bounced() bool {
	return s.PageViews <= 1
}

// SessionUpdate carries the fields the Session Tracker needs for one
// pageview-driven upsert.
type SessionUpdate struct {
	SessionID string
	WebsiteID string
	URL       string
	Device    DeviceInfo
	Geo       GeoInfo
	Now       time.Time
}
