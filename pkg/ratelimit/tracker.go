package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghost_rate_limit_hits_total",
		Help: "Total number of 429 responses from the Admin API",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ghost_rate_limit_waits_total",
		Help: "Total number of requests delayed by a recorded rate limit block",
	})
)

// Tracker gates requests to one site on its recorded rate limit state.
type Tracker struct {
	store  Store
	site   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker for site backed by store.
func NewTracker(store Store, site string, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		site:   site,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns the site's current state.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx, t.site)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}
	return state, nil
}

// UpdateFromResponse records a block when resp is a 429.
func (t *Tracker) UpdateFromResponse(ctx context.Context, resp *http.Response) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	now := t.now()
	wait := ParseRetryAfter(resp.Header.Get("Retry-After"), now)

	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}
	state.Block(now.Add(wait), now)

	if err := t.store.Save(ctx, t.site, state); err != nil {
		return fmt.Errorf("save rate limit state: %w", err)
	}

	rateLimitHitsTotal.Inc()
	t.logger.Warn().
		Str("site", t.site).
		Dur("retry_after", wait).
		Int("hits", state.Hits).
		Msg("Rate limited by Ghost, backing off")

	return nil
}

// Wait blocks until the site's recorded block has passed or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	wait := state.WaitDuration(t.now())
	if wait <= 0 {
		return nil
	}

	rateLimitWaitsTotal.Inc()
	t.logger.Debug().
		Str("site", t.site).
		Dur("wait", wait).
		Msg("Waiting for rate limit block to pass")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ParseRetryAfter interprets a Retry-After header value given as seconds
// or as an HTTP date. Missing or unparseable values yield DefaultRetryAfter.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRetryAfter
}
