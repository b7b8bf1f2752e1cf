package config

import (
	"net/url"
	"strings"

	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
)

// Validate checks the fields an API command needs.
func (s Session) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return toolerrors.Usage("missing Ghost site URL (--%s)", FlagURL)
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return toolerrors.Usage("invalid Ghost site URL %q: expected http(s)://host", s.URL)
	}
	if strings.TrimSpace(s.AdminKey) == "" {
		return toolerrors.Usage("missing Admin API key (--%s)", FlagAdminKey)
	}
	if _, err := client.ParseAdminKey(s.AdminKey); err != nil {
		return toolerrors.WrapUsage(err, "check the key from Ghost Admin > Integrations")
	}
	if s.CacheTTL > 0 && s.RedisURL == "" {
		return toolerrors.Usage("--%s requires --%s", FlagCacheTTL, FlagRedisURL)
	}
	return nil
}
