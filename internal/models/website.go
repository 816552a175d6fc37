package models

import (
	"crypto/rand"
	"time"
)

// WebsiteSettings controls what the capture script records and how much of
// the inbound stream is retained. JSON names match the capture script config.
type WebsiteSettings struct {
	TrackClicks       bool     `json:"trackClicks"`
	TrackScrolls      bool     `json:"trackScrolls"`
	TrackPageViews    bool     `json:"trackPageViews"`
	TrackUserSessions bool     `json:"trackUserSessions"`
	SamplingRate      float64  `json:"samplingRate"`
	ExcludePaths      []string `json:"excludePaths"`
	AllowedDomains    []string `json:"allowedDomains"`
}

// DefaultSettings returns the settings applied to a newly registered site:
// track everything, keep everything.
func DefaultSettings(domain string) WebsiteSettings {
	return WebsiteSettings{
		TrackClicks:       true,
		TrackScrolls:      true,
		TrackPageViews:    true,
		TrackUserSessions: true,
		SamplingRate:      1.0,
		ExcludePaths:      []string{},
		AllowedDomains:    []string{domain},
	}
}

// Website is one tracked tenant. TrackingID is the public token embedded in
// the capture script; it is globally unique and never changes. Websites are
// never hard-deleted while events reference them; Active false stops
// collection instead.
type Website struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"ownerId"`
	Name       string          `json:"name"`
	Domain     string          `json:"domain"`
	TrackingID string          `json:"trackingId"`
	Active     bool            `json:"isActive"`
	Settings   WebsiteSettings `json:"settings"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// NewWebsite builds a registered-but-unsaved website with fresh identifiers
// and default settings.
func NewWebsite(ownerID, name, domain string) *Website {
	now := time.Now().UTC()
	return &Website{
		ID:         NewWebsiteID(),
		OwnerID:    ownerID,
		Name:       name,
		Domain:     domain,
		TrackingID: NewTrackingID(),
		Active:     true,
		Settings:   DefaultSettings(domain),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomID(prefix string, n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return prefix + string(b)
}

// NewWebsiteID returns a fresh website identifier ("ws_" + 16 chars).
func NewWebsiteID() string {
	return randomID("ws_", 16)
}

// NewTrackingID returns a fresh public tracking identifier ("trk_" + 20 chars).
func NewTrackingID() string {
	return randomID("trk_", 20)
}
