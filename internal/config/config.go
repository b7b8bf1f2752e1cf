// Package config holds the explicit session configuration every command
// receives. Values come from an optional YAML file and from flags; the
// process environment is never consulted.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
)

// Session is the configuration of one command invocation.
type Session struct {
	// URL is the Ghost site URL
	URL string `yaml:"url"`

	// AdminKey is the "<id>:<secret>" Admin API key
	AdminKey string `yaml:"admin_key"`

	// APIVersion is sent as Accept-Version
	APIVersion string `yaml:"api_version"`

	// Delay is the pause after every write call
	Delay time.Duration `yaml:"delay"`

	// Concurrency bounds read-only phases
	Concurrency int `yaml:"concurrency"`

	// Timeout bounds a single HTTP attempt
	Timeout time.Duration `yaml:"timeout"`

	Verbose bool `yaml:"verbose"`
	LogJSON bool `yaml:"log_json"`

	// RedisURL enables the browse cache and shared rate limit state,
	// e.g. redis://localhost:6379/0
	RedisURL string `yaml:"redis_url"`

	// CacheTTL is how long browse pages stay cached (0 disables)
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// MetricsFile receives a Prometheus textfile snapshot at exit
	MetricsFile string `yaml:"metrics_file"`
}

// Load reads a YAML session file over Defaults().
func Load(path string) (Session, error) {
	s := Defaults()
	if err := loadInto(path, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func loadInto(path string, s *Session) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Resolve builds the session for a run: defaults, then the file at path
// (if any), then every flag the user set.
func Resolve(path string, flags Session, changed func(flag string) bool) (Session, error) {
	s := Defaults()
	if path != "" {
		if err := loadInto(path, &s); err != nil {
			return Session{}, err
		}
	}
	s = Merge(s, flags, changed)
	return WithDefaults(s), nil
}

// Merge returns base with the fields of override whose flag was set.
func Merge(base, override Session, changed func(flag string) bool) Session {
	if changed == nil {
		return base
	}
	if changed(FlagURL) {
		base.URL = override.URL
	}
	if changed(FlagAdminKey) {
		base.AdminKey = override.AdminKey
	}
	if changed(FlagAPIVersion) {
		base.APIVersion = override.APIVersion
	}
	if changed(FlagDelay) {
		base.Delay = override.Delay
	}
	if changed(FlagConcurrency) {
		base.Concurrency = override.Concurrency
	}
	if changed(FlagTimeout) {
		base.Timeout = override.Timeout
	}
	if changed(FlagVerbose) {
		base.Verbose = override.Verbose
	}
	if changed(FlagLogJSON) {
		base.LogJSON = override.LogJSON
	}
	if changed(FlagRedisURL) {
		base.RedisURL = override.RedisURL
	}
	if changed(FlagCacheTTL) {
		base.CacheTTL = override.CacheTTL
	}
	if changed(FlagMetricsFile) {
		base.MetricsFile = override.MetricsFile
	}
	return base
}

// ClientConfig returns the Admin API client configuration for s.
// The redis client, if any, is passed in by the caller.
func (s Session) ClientConfig(redisClient *redis.Client) client.Config {
	cfg := client.DefaultConfig(s.URL, s.AdminKey)
	cfg.APIVersion = s.APIVersion
	cfg.Timeout = s.Timeout
	cfg.Redis = redisClient
	cfg.CacheTTL = s.CacheTTL
	return cfg
}

// RedisClient connects to RedisURL, or returns nil when it is unset.
func (s Session) RedisClient() (*redis.Client, error) {
	if s.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(s.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
