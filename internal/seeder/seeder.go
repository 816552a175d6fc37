// Package seeder generates synthetic browsing traffic against a running
// collector. Used by the seed command for demos and load checks.
package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var pagePool = []string{
	"/", "/pricing", "/docs", "/blog", "/about", "/contact",
	"/features", "/signup", "/login", "/changelog",
}

// Options controls how much traffic gets generated.
type Options struct {
	Endpoint   string // collector base URL, e.g. http://localhost:8080
	TrackingID string
	Sessions   int
	PagesMin   int // pageviews per session, inclusive bounds
	PagesMax   int
	TimeSpread time.Duration // sessions are spread backwards from now
}

type Seeder struct {
	opts   Options
	client *http.Client
	rng    *rand.Rand
	faker  *gofakeit.Faker
}

func New(opts Options, seed int64) *Seeder {
	if opts.PagesMin < 1 {
		opts.PagesMin = 1
	}
	if opts.PagesMax < opts.PagesMin {
		opts.PagesMax = opts.PagesMin
	}
	return &Seeder{
		opts:   opts,
		client: &http.Client{Timeout: 10 * time.Second},
		rng:    rand.New(rand.NewSource(seed)),
		faker:  gofakeit.New(seed),
	}
}

// Run posts the generated sessions one by one. It stops on the first
// transport error or context cancellation.
func (s *Seeder) Run(ctx context.Context) (int, error) {
	sent := 0
	for i := 0; i < s.opts.Sessions; i++ {
		n, err := s.session(ctx, i)
		sent += n
		if err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func (s *Seeder) session(ctx context.Context, index int) (int, error) {
	sessionID := fmt.Sprintf("seed_%s", s.faker.UUID())
	userAgent := s.faker.UserAgent()

	start := time.Now()
	if s.opts.TimeSpread > 0 && s.opts.Sessions > 1 {
		offset := time.Duration(float64(s.opts.TimeSpread) * float64(index) / float64(s.opts.Sessions))
		start = start.Add(-s.opts.TimeSpread + offset)
	}

	pages := s.opts.PagesMin
	if s.opts.PagesMax > s.opts.PagesMin {
		pages += s.rng.Intn(s.opts.PagesMax - s.opts.PagesMin + 1)
	}

	sent := 0
	ts := start
	for p := 0; p < pages; p++ {
		url := pagePool[s.rng.Intn(len(pagePool))]

		if err := s.post(ctx, sessionID, userAgent, "pageview", ts, map[string]any{
			"url":      url,
			"title":    s.faker.Sentence(3),
			"referrer": "",
		}); err != nil {
			return sent, err
		}
		sent++

		// Roughly half the pageviews get a click somewhere on the page.
		if s.rng.Float64() < 0.5 {
			if err := s.post(ctx, sessionID, userAgent, "click", ts.Add(5*time.Second), map[string]any{
				"url":     url,
				"x":       s.rng.Intn(1280),
				"y":       s.rng.Intn(2000),
				"element": "button",
			}); err != nil {
				return sent, err
			}
			sent++
		}

		ts = ts.Add(time.Duration(15+s.rng.Intn(120)) * time.Second)
	}
	return sent, nil
}

func (s *Seeder) post(ctx context.Context, sessionID, userAgent, eventType string, ts time.Time, data map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"trackingId": s.opts.TrackingID,
		"sessionId":  sessionID,
		"eventType":  eventType,
		"eventData":  data,
		"timestamp":  ts.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.opts.Endpoint+"/api/tracking/collect", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collector returned %d", resp.StatusCode)
	}
	return nil
}
