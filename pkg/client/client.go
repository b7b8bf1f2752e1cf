// Package client provides the Ghost Admin API HTTP client with token
// signing, rate limiting, caching and error handling.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/ghost-admin-tools/pkg/cache"
	"github.com/Sternrassler/ghost-admin-tools/pkg/ratelimit"
)

// Prometheus metrics for Admin API requests.
var (
	ghostRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghost_requests_total",
		Help: "Total Admin API requests by resource and status",
	}, []string{"resource", "status"})

	ghostRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghost_request_duration_seconds",
		Help:    "Admin API request duration in seconds by resource",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"resource"})

	ghostErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghost_errors_total",
		Help: "Total Admin API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

const (
	// APIPath is the Admin API root below the site URL.
	APIPath = "/ghost/api/admin/"

	// DefaultAPIVersion is sent as Accept-Version.
	DefaultAPIVersion = "v5.0"

	// DefaultUserAgent identifies the tool to Ghost.
	DefaultUserAgent = "ghost-admin-tools"
)

// Client is the Ghost Admin API client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	site        string
	tokens      *tokenSource
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	retryPolicy RetryPolicy
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the site URL, e.g. "https://blog.example.com"
	BaseURL string

	// AdminKey is the "<id>:<secret>" Admin API key
	AdminKey string

	// APIVersion is sent as Accept-Version (default v5.0)
	APIVersion string

	// UserAgent header
	UserAgent string

	// Timeout for a single HTTP attempt
	Timeout time.Duration

	// Redis enables shared rate limit state and, with CacheTTL > 0,
	// the browse cache. Optional.
	Redis *redis.Client

	// CacheTTL is how long browse pages stay cached (0 disables)
	CacheTTL time.Duration

	// RetryPolicy overrides RetryConfigForErrorClass for GET requests
	// (optional). Writes only ever retry 429s.
	RetryPolicy RetryPolicy
}

// DefaultConfig returns a configuration for the given site and key.
func DefaultConfig(baseURL, adminKey string) Config {
	return Config{
		BaseURL:    baseURL,
		AdminKey:   adminKey,
		APIVersion: DefaultAPIVersion,
		UserAgent:  DefaultUserAgent,
		Timeout:    30 * time.Second,
	}
}

// New creates a new Admin API client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	baseURL, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || baseURL.Host == "" || (baseURL.Scheme != "http" && baseURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	key, err := ParseAdminKey(cfg.AdminKey)
	if err != nil {
		return nil, err
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "ghost-client").Str("site", baseURL.Host).Logger()

	var store ratelimit.Store
	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		store = ratelimit.NewRedisStore(cfg.Redis)
		if cfg.CacheTTL > 0 {
			cacheManager = cache.NewManager(cfg.Redis, cfg.CacheTTL)
		}
	}

	policy := cfg.RetryPolicy
	if policy == nil {
		policy = RetryConfigForErrorClass
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     baseURL,
		site:        baseURL.Host,
		tokens:      newTokenSource(key),
		rateLimiter: ratelimit.NewTracker(store, baseURL.Host, logger),
		cache:       cacheManager,
		retryPolicy: policy,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Site returns the host the client talks to.
func (c *Client) Site() string {
	return c.site
}

// Endpoint returns the Admin API URL for resource, optionally for one id.
func (c *Client) Endpoint(resource, id string) string {
	path := APIPath + strings.Trim(resource, "/") + "/"
	if id != "" {
		path += url.PathEscape(id) + "/"
	}
	return c.baseURL.String() + path
}

// Do performs an HTTP request with authentication, rate limiting and
// caching. Retries follow the configured policy for GETs; other methods
// are only re-sent after a 429. Any non-2xx status is returned as an
// *APIError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	resource := resourceLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		ghostRequestDuration.WithLabelValues(resource).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Cache
	cacheable := c.cache != nil && req.Method == http.MethodGet
	var cacheKey cache.Key
	var cachedEntry *cache.Entry
	if cacheable {
		cacheKey = cache.Key{Site: c.site, Resource: resource, Query: req.URL.Query()}
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil && entry.ETag == "":
			c.logger.Debug().Str("resource", resource).Msg("Serving from cache")
			ghostRequestsTotal.WithLabelValues(resource, "cached").Inc()
			return cache.EntryToResponse(entry, req), nil
		case err == nil:
			cachedEntry = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("resource", resource).Msg("Cache get error")
		}
	}

	// Step 2: Execute with retry
	policy := c.retryPolicy
	if req.Method != http.MethodGet {
		policy = writePolicy(policy)
	}
	var resp *http.Response
	err := retryWithBackoff(ctx, policy, func(attempt int) (ErrorClass, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		attemptReq, err := c.prepare(req, attempt, cachedEntry)
		if err != nil {
			return "", err
		}

		c.logger.Debug().
			Str("resource", resource).
			Str("method", req.Method).
			Int("attempt", attempt).
			Msg("Executing Admin API request")

		r, err := c.httpClient.Do(attemptReq)
		if err != nil {
			errClass := ErrorClassNetwork
			ghostErrorsTotal.WithLabelValues(string(errClass)).Inc()
			ghostRequestsTotal.WithLabelValues(resource, "network_error").Inc()
			c.logger.Warn().Err(err).Str("resource", resource).Msg("HTTP request failed")
			return errClass, err
		}

		if err := c.rateLimiter.UpdateFromResponse(ctx, r); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit state")
		}

		ghostRequestsTotal.WithLabelValues(resource, strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode >= 400 {
			errClass := classifyStatus(r.StatusCode)
			ghostErrorsTotal.WithLabelValues(string(errClass)).Inc()
			apiErr := newAPIError(r, errClass)

			c.logger.Debug().
				Str("resource", resource).
				Int("status", r.StatusCode).
				Str("error_class", string(errClass)).
				Str("message", apiErr.Message).
				Msg("Admin API request error")
			return errClass, apiErr
		}

		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}

	// Step 3: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		resp.Body.Close()
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("resource", resource).Msg("304 Not Modified - using cache")
		if err := c.cache.Refresh(ctx, cacheKey, cachedEntry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	// Step 4: Update Cache
	switch {
	case cacheable && resp.StatusCode == http.StatusOK:
		entry, err := cache.ResponseToEntry(resp, c.cache.TTL())
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	case c.cache != nil && req.Method != http.MethodGet:
		n, err := c.cache.Invalidate(ctx, cache.Prefix(c.site, resource))
		if err != nil {
			c.logger.Warn().Err(err).Str("resource", resource).Msg("Failed to invalidate cache")
		} else if n > 0 {
			c.logger.Debug().Str("resource", resource).Int("keys", n).Msg("Invalidated cached pages")
		}
	}

	return resp, nil
}

// prepare clones req for one attempt with fresh auth headers and body.
func (c *Client) prepare(req *http.Request, attempt int, cached *cache.Entry) (*http.Request, error) {
	r := req.Clone(req.Context())
	if attempt > 1 && req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		r.Body = body
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	r.Header.Set("Authorization", "Ghost "+token)
	r.Header.Set("Accept-Version", c.config.APIVersion)
	r.Header.Set("User-Agent", c.config.UserAgent)
	r.Header.Set("Accept", "application/json")
	if r.Body != nil && r.Body != http.NoBody && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
	cache.AddConditionalHeaders(r, cached)
	return r, nil
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// resourceLabel extracts the collection name from an Admin API path.
func resourceLabel(path string) string {
	idx := strings.Index(path, APIPath)
	if idx < 0 {
		return "other"
	}
	rest := strings.Trim(path[idx+len(APIPath):], "/")
	resource, _, _ := strings.Cut(rest, "/")
	if resource == "" {
		return "other"
	}
	return resource
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the rate limit tracker (for testing).
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
