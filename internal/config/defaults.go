package config

import (
	"time"

	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
)

// Default configuration values.
const (
	DefaultDelay       = 50 * time.Millisecond
	DefaultConcurrency = 3
	DefaultTimeout     = 30 * time.Second
)

// Flag names shared by the CLI and Merge.
const (
	FlagConfig      = "config"
	FlagURL         = "url"
	FlagAdminKey    = "key"
	FlagAPIVersion  = "api-version"
	FlagDelay       = "delay"
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagVerbose     = "verbose"
	FlagLogJSON     = "log-json"
	FlagRedisURL    = "redis-url"
	FlagCacheTTL    = "cache-ttl"
	FlagMetricsFile = "metrics-file"
)

// Defaults returns the session used when neither file nor flags set a value.
func Defaults() Session {
	return Session{
		APIVersion:  client.DefaultAPIVersion,
		Delay:       DefaultDelay,
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
	}
}

// WithDefaults returns s with empty or out-of-range fields corrected.
// A zero Delay is kept: it disables the pause between writes.
func WithDefaults(s Session) Session {
	if s.APIVersion == "" {
		s.APIVersion = client.DefaultAPIVersion
	}
	if s.Delay < 0 {
		s.Delay = 0
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}
