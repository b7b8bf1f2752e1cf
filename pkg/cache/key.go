package cache

import (
	"net/url"
	"strings"
)

// KeyPrefix starts every cache key.
const KeyPrefix = "ghost"

// Key identifies one cached browse page.
type Key struct {
	// Site is the Ghost host (e.g. "blog.example.com")
	Site string

	// Resource is the Admin API collection (e.g. "posts")
	Resource string

	// Query holds the browse parameters
	Query url.Values
}

// String generates a deterministic key.
// Format: ghost:<site>:<resource>:<encoded query sorted by name>
//
// Example:
//
//	ghost:blog.example.com:posts:limit=15&page=2
func (k Key) String() string {
	return Prefix(k.Site, k.Resource) + k.Query.Encode()
}

// Prefix returns the key prefix shared by every page of resource on site.
func Prefix(site, resource string) string {
	return KeyPrefix + ":" + site + ":" + strings.Trim(resource, "/") + ":"
}

// globEscaper escapes redis MATCH metacharacters.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func matchPattern(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}
