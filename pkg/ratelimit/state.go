// Package ratelimit tracks Ghost Admin API rate limiting. A 429 response
// with a Retry-After header blocks further requests to the same site until
// the indicated time; the block is shared through a Store so that several
// commands running against one site back off together.
package ratelimit

import (
	"time"
)

// KeyPrefix prefixes redis keys holding per-site state.
const KeyPrefix = "ghost:rate_limit"

// DefaultRetryAfter applies when a 429 carries no usable Retry-After.
const DefaultRetryAfter = 60 * time.Second

// State is the rate limit state of one Ghost site.
type State struct {
	// BlockedUntil is the earliest time the next request may be sent.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the state last changed.
	LastUpdate time.Time `json:"last_update"`

	// Hits counts 429 responses seen for the site.
	Hits int `json:"hits"`
}

// IsBlocked reports whether requests must wait at now.
func (s *State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// WaitDuration returns how long a request at now must wait (0 if none).
func (s *State) WaitDuration(now time.Time) time.Duration {
	if !s.IsBlocked(now) {
		return 0
	}
	return s.BlockedUntil.Sub(now)
}

// Block extends BlockedUntil to at least until and counts the hit.
func (s *State) Block(until, now time.Time) {
	if until.After(s.BlockedUntil) {
		s.BlockedUntil = until
	}
	s.Hits++
	s.LastUpdate = now
}
