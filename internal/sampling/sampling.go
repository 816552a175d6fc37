// Package sampling implements the per-tenant retention decision for inbound
// events. Sampling is per event, not per session: a session may keep some
// events and lose others, and downstream aggregates tolerate the undercount.
package sampling

import "math/rand"

// Sampler decides whether to retain a single inbound event given the
// tenant's configured rate in [0,1].
type Sampler interface {
	Sample(rate float64) bool
}

// Random draws a uniform value per event and retains iff it falls below the
// rate. Safe for concurrent use.
type Random struct{}

// New returns the production sampler.
func New() Sampler {
	return Random{}
}

// Sample retains the event iff u < rate for a fresh uniform u in [0,1).
// rate >= 1 retains everything; rate <= 0 retains nothing.
func (Random) Sample(rate float64) bool {
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	return rand.Float64() < rate
}

// Fixed always returns the configured decision. Test helper.
type Fixed struct {
	Retain bool
}

func (f Fixed) Sample(float64) bool {
	return f.Retain
}
