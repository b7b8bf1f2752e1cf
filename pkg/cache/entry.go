package cache

import (
	"net/http"
	"time"
)

// Entry is a cached browse response.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag,omitempty"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Header holds the response headers
	Header http.Header `json:"header"`

	// CachedAt is when the response was stored
	CachedAt time.Time `json:"cached_at"`

	// Expires is CachedAt plus the manager TTL
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
