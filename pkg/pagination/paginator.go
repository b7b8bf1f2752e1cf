package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
)

// ErrNonMonotonicCursor is returned when a response's next page does not
// lie after the page just requested.
var ErrNonMonotonicCursor = errors.New("pagination cursor did not advance")

var discoverPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ghost_discover_pages_total",
	Help: "Total collection pages fetched by resource",
}, []string{"resource"})

// Meta is the meta.pagination block of a browse response.
type Meta struct {
	Page  int  `json:"page"`
	Limit any  `json:"limit"`
	Pages int  `json:"pages"`
	Total int  `json:"total"`
	Next  *int `json:"next"`
	Prev  *int `json:"prev"`
}

// HasNext reports whether another page follows.
func (m Meta) HasNext() bool {
	return m.Next != nil && *m.Next != 0
}

// Page is one browse response.
type Page[T any] struct {
	Items      []T
	Pagination Meta
}

// PageFetcher is implemented by the REST client for single-page browsing.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, q query.Query) (*Page[T], error)
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc[T any] func(ctx context.Context, q query.Query) (*Page[T], error)

// FetchPage calls f.
func (f FetcherFunc[T]) FetchPage(ctx context.Context, q query.Query) (*Page[T], error) {
	return f(ctx, q)
}

// Progress observes a running discovery. Start is called once with the
// total from the first page, Update after every page with the running count.
type Progress interface {
	Start(total int)
	Update(fetched int)
}

// Config holds paginator configuration.
type Config struct {
	// Timeout per page fetch (0 disables)
	Timeout time.Duration
	// Progress is notified after each page (optional)
	Progress Progress
}

// DefaultConfig returns the default paginator configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// Paginator drives a PageFetcher to the end of a collection.
type Paginator[T any] struct {
	fetcher PageFetcher[T]
	config  Config
	logger  zerolog.Logger
}

// New creates a paginator over fetcher.
func New[T any](fetcher PageFetcher[T], config Config) *Paginator[T] {
	if config.Timeout < 0 {
		config.Timeout = 0
	}
	return &Paginator[T]{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "paginator").Logger(),
	}
}

// Discover fetches every page of q's collection and returns all items in
// server order. Any page failure discards what was accumulated.
func (p *Paginator[T]) Discover(ctx context.Context, q query.Query) ([]T, error) {
	start := time.Now()
	resource := string(q.Resource)

	var items []T
	page := 1
	for {
		resp, err := p.fetch(ctx, q.WithPage(page))
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", resource, page, err)
		}
		discoverPagesTotal.WithLabelValues(resource).Inc()

		items = append(items, resp.Items...)

		if p.config.Progress != nil {
			if page == 1 {
				p.config.Progress.Start(resp.Pagination.Total)
			}
			p.config.Progress.Update(len(items))
		}

		p.logger.Debug().
			Str("resource", resource).
			Int("page", page).
			Int("items", len(resp.Items)).
			Int("total", resp.Pagination.Total).
			Msg("Fetched page")

		if !resp.Pagination.HasNext() {
			break
		}
		next := *resp.Pagination.Next
		if next <= page {
			return nil, fmt.Errorf("%w: %s page %d returned next=%d", ErrNonMonotonicCursor, resource, page, next)
		}
		page = next
	}

	p.logger.Info().
		Str("resource", resource).
		Int("pages", page).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Discovery complete")

	return items, nil
}

// Count returns the collection total from a single request without
// materializing the items.
func (p *Paginator[T]) Count(ctx context.Context, q query.Query) (int, error) {
	resp, err := p.fetch(ctx, q.WithPage(1).WithLimit(1))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Resource, err)
	}
	discoverPagesTotal.WithLabelValues(string(q.Resource)).Inc()
	return resp.Pagination.Total, nil
}

func (p *Paginator[T]) fetch(ctx context.Context, q query.Query) (*Page[T], error) {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}
	resp, err := p.fetcher.FetchPage(ctx, q)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("nil page")
	}
	return resp, nil
}

// Discover is shorthand for New(fetcher, DefaultConfig()).Discover(ctx, q).
func Discover[T any](ctx context.Context, fetcher PageFetcher[T], q query.Query) ([]T, error) {
	return New(fetcher, DefaultConfig()).Discover(ctx, q)
}

// Count is shorthand for New(fetcher, DefaultConfig()).Count(ctx, q).
func Count[T any](ctx context.Context, fetcher PageFetcher[T], q query.Query) (int, error) {
	return New(fetcher, DefaultConfig()).Count(ctx, q)
}

// LogProgress reports discovery progress through a zerolog logger.
type LogProgress struct {
	logger   zerolog.Logger
	resource string
	total    int
}

// NewLogProgress creates a Progress that logs at debug level.
func NewLogProgress(logger zerolog.Logger, resource string) *LogProgress {
	return &LogProgress{logger: logger, resource: resource}
}

// Start records the collection total.
func (lp *LogProgress) Start(total int) {
	lp.total = total
	lp.logger.Debug().Str("resource", lp.resource).Int("total", total).Msg("Discovering")
}

// Update logs the running count.
func (lp *LogProgress) Update(fetched int) {
	ev := lp.logger.Debug().
		Str("resource", lp.resource).
		Int("fetched", fetched).
		Int("total", lp.total)
	if lp.total > 0 {
		ev = ev.Float64("progress_pct", float64(fetched)/float64(lp.total)*100)
	}
	ev.Msg("Discovery progress")
}
