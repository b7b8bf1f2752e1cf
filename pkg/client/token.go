package client

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenLifetime is the maximum lifetime Ghost accepts for admin tokens.
	TokenLifetime = 5 * time.Minute

	tokenAudience = "/admin/"

	// tokens are re-signed when less than this is left
	tokenRefreshMargin = time.Minute
)

var adminKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}:[0-9a-fA-F]{64}$`)

// AdminKey is a parsed Admin API key.
type AdminKey struct {
	ID     string
	Secret []byte
}

// ParseAdminKey parses "<24 hex id>:<64 hex secret>".
func ParseAdminKey(s string) (AdminKey, error) {
	s = strings.TrimSpace(s)
	if !adminKeyPattern.MatchString(s) {
		return AdminKey{}, fmt.Errorf("%w: expected <id>:<secret>", ErrInvalidAdminKey)
	}
	id, secretHex, _ := strings.Cut(s, ":")
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return AdminKey{}, fmt.Errorf("%w: %v", ErrInvalidAdminKey, err)
	}
	return AdminKey{ID: id, Secret: secret}, nil
}

// Sign creates an HS256 token valid from now for TokenLifetime.
func (k AdminKey) Sign(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		Audience:  jwt.ClaimStrings{tokenAudience},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = k.ID

	signed, err := token.SignedString(k.Secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// tokenSource hands out a cached token and re-signs it near expiry.
type tokenSource struct {
	key AdminKey
	now func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(key AdminKey) *tokenSource {
	return &tokenSource{key: key, now: time.Now}
}

func (s *tokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && s.expires.Sub(now) > tokenRefreshMargin {
		return s.token, nil
	}

	token, err := s.key.Sign(now)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expires = now.Add(TokenLifetime)
	return token, nil
}
