package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Sternrassler/ghost-admin-tools/internal/testutil"
	"github.com/Sternrassler/ghost-admin-tools/pkg/pagination"
	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
)

// fastRetry opts GET requests into retries in the millisecond range.
func fastRetry(ErrorClass) RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestClient(t *testing.T, mock *testutil.MockGhost) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.URL(), testutil.AdminKey)
	cfg.RetryPolicy = fastRetry
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://blog.example.com", testutil.AdminKey),
		},
		{
			name:     "missing base url",
			config:   DefaultConfig("", testutil.AdminKey),
			errorMsg: "base url is required",
		},
		{
			name:     "base url without scheme",
			config:   DefaultConfig("blog.example.com", testutil.AdminKey),
			errorMsg: `invalid base url "blog.example.com"`,
		},
		{
			name: "empty user agent",
			config: Config{
				BaseURL:  "https://blog.example.com",
				AdminKey: testutil.AdminKey,
			},
			errorMsg: "user-agent is required",
		},
		{
			name:     "malformed key",
			config:   DefaultConfig("https://blog.example.com", "abc:def"),
			errorMsg: "invalid admin API key: expected <id>:<secret>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if c.Site() != "blog.example.com" {
					t.Errorf("Site() = %q, want blog.example.com", c.Site())
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error but got nil")
			}
			if err.Error() != tt.errorMsg {
				t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestClient_Endpoint(t *testing.T) {
	c, err := New(DefaultConfig("https://example.com/blog/", testutil.AdminKey))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := c.Endpoint("posts", ""); got != "https://example.com/blog/ghost/api/admin/posts/" {
		t.Errorf("Endpoint() = %q", got)
	}
	if got := c.Endpoint("tags", "abc"); got != "https://example.com/blog/ghost/api/admin/tags/abc/" {
		t.Errorf("Endpoint() = %q", got)
	}
}

func TestClient_RequestHeaders(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	c := newTestClient(t, mock)

	if _, err := c.SiteInfo(context.Background()); err != nil {
		t.Fatalf("SiteInfo() error = %v", err)
	}

	h := mock.LastRequestHeader
	if got := h.Get("Accept-Version"); got != DefaultAPIVersion {
		t.Errorf("Accept-Version = %q, want %q", got, DefaultAPIVersion)
	}
	if got := h.Get("User-Agent"); got != DefaultUserAgent {
		t.Errorf("User-Agent = %q", got)
	}

	auth := h.Get("Authorization")
	if !strings.HasPrefix(auth, "Ghost ") {
		t.Fatalf("Authorization = %q, want Ghost scheme", auth)
	}

	key, _ := ParseAdminKey(testutil.AdminKey)
	token, err := jwt.Parse(strings.TrimPrefix(auth, "Ghost "), func(tok *jwt.Token) (any, error) {
		return key.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithAudience("/admin/"))
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if token.Header["kid"] != key.ID {
		t.Errorf("kid = %v, want %s", token.Header["kid"], key.ID)
	}
}

func TestClient_BrowseWithPaginator(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetCollection("posts", testutil.Items("post", 35))
	c := newTestClient(t, mock)

	q, err := query.Build(query.Posts, query.Args{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	posts, err := pagination.Discover[Entity](context.Background(), c.Resource(query.Posts), q)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	if len(posts) != 35 {
		t.Fatalf("Discover() returned %d posts, want 35", len(posts))
	}
	for i, p := range posts {
		if want := testutil.ID(i + 1); p.ID() != want {
			t.Fatalf("posts[%d].ID() = %s, want %s", i, p.ID(), want)
		}
	}
	if calls := mock.Calls(http.MethodGet, "posts"); calls != 3 {
		t.Errorf("browse calls = %d, want 3", calls)
	}
}

func TestClient_BrowseSendsQuery(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetCollection("tags", testutil.Items("tag", 3))
	c := newTestClient(t, mock)

	q, _ := query.Build(query.Tags, query.Args{Filter: "visibility:public"})
	page, err := c.Browse(context.Background(), q.WithPage(1))
	if err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	if page.Pagination.Total != 0 {
		t.Errorf("Total = %d, want 0 (no tag has visibility)", page.Pagination.Total)
	}

	raw := mock.Queries()[0]
	for _, want := range []string{"include=count.posts", "limit=50", "page=1", "filter=visibility%3Apublic"} {
		if !strings.Contains(raw, want) {
			t.Errorf("query %q missing %q", raw, want)
		}
	}
}

func TestClient_Count(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetCollection("members", testutil.Items("member", 230))
	c := newTestClient(t, mock)

	q, _ := query.Build(query.Members, query.Args{})
	total, err := pagination.Count[Entity](context.Background(), c.Resource(query.Members), q)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if total != 230 {
		t.Errorf("Count() = %d, want 230", total)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClient_CRUD(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetCollection("tags", testutil.Items("tag", 2))
	c := newTestClient(t, mock)
	ctx := context.Background()

	added, err := c.Add(ctx, query.Tags, Entity{"name": "News"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if added.ID() == "" || added.String("name") != "News" {
		t.Errorf("Add() = %v", added)
	}

	edited, err := c.Edit(ctx, query.Tags, added.ID(), Entity{"name": "Updates"})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if edited.String("name") != "Updates" {
		t.Errorf("Edit() name = %q, want Updates", edited.String("name"))
	}

	read, err := c.Read(ctx, query.Tags, added.ID())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if read.String("name") != "Updates" {
		t.Errorf("Read() name = %q, want Updates", read.String("name"))
	}

	if err := c.Delete(ctx, query.Tags, added.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n := len(mock.Collection("tags")); n != 2 {
		t.Errorf("tags left = %d, want 2", n)
	}

	_, err = c.Read(ctx, query.Tags, added.ID())
	if !IsNotFound(err) {
		t.Errorf("Read() after delete error = %v, want 404", err)
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetCollection("posts", testutil.Items("post", 1))
	mock.FailID(testutil.ID(1), http.StatusUnprocessableEntity)
	c := newTestClient(t, mock)

	err := c.Delete(context.Background(), query.Posts, testutil.ID(1))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Delete() error = %v, want *APIError", err)
	}
	if apiErr.ErrorClass != ErrorClassClient || apiErr.StatusCode != 422 {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !strings.Contains(apiErr.Message, "Validation error") {
		t.Errorf("Message = %q, want body message", apiErr.Message)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client errors must not be retried")
	}
	if calls := mock.Calls(http.MethodDelete, "posts"); calls != 1 {
		t.Errorf("delete calls = %d, want 1", calls)
	}
}

func TestClient_ServerErrorRetried(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetCollection("tags", testutil.Items("tag", 1))
	mock.FailNext(http.StatusInternalServerError, http.StatusBadGateway)
	c := newTestClient(t, mock)

	if _, err := c.Read(context.Background(), query.Tags, testutil.ID(1)); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestClient_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.FailNext(500, 500, 500, 500)
	c := newTestClient(t, mock)

	_, err := c.SiteInfo(context.Background())
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("SiteInfo() error = %v, want ErrRetryExhausted", err)
	}
	if StatusCode(err) != 500 {
		t.Errorf("StatusCode(err) = %d, want 500", StatusCode(err))
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestClient_RateLimitedRequestWaits(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetRetryAfter("1")
	mock.FailNext(http.StatusTooManyRequests)
	c := newTestClient(t, mock)
	ctx := context.Background()

	start := time.Now()
	if _, err := c.SiteInfo(ctx); err != nil {
		t.Fatalf("SiteInfo() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("request finished after %v, want Retry-After wait of ~1s", elapsed)
	}

	state, err := c.RateLimiter().GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Hits != 1 {
		t.Errorf("Hits = %d, want 1", state.Hits)
	}
}

func TestClient_EditReplaysBodyAfterRateLimit(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetCollection("posts", testutil.Items("post", 1))
	mock.FailNext(http.StatusTooManyRequests)
	c := newTestClient(t, mock)

	edited, err := c.Edit(context.Background(), query.Posts, testutil.ID(1), Entity{
		"visibility": "paid",
		"updated_at": "2024-01-01T00:00:00.000Z",
	})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if edited.String("visibility") != "paid" {
		t.Errorf("visibility = %q, want paid", edited.String("visibility"))
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestClient_WritesNotRetried(t *testing.T) {
	policies := []struct {
		name   string
		policy RetryPolicy
	}{
		{"default policy", nil},
		{"transient policy", fastRetry},
	}
	for _, p := range policies {
		for _, status := range []int{http.StatusInternalServerError, http.StatusServiceUnavailable} {
			t.Run(p.name+"/"+http.StatusText(status), func(t *testing.T) {
				mock := testutil.NewMockGhost()
				defer mock.Close()
				mock.SetCollection("posts", testutil.Items("post", 1))
				mock.FailNext(status)

				cfg := DefaultConfig(mock.URL(), testutil.AdminKey)
				cfg.RetryPolicy = p.policy
				c, err := New(cfg)
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				defer c.Close()

				err = c.Delete(context.Background(), query.Posts, testutil.ID(1))
				if StatusCode(err) != status {
					t.Errorf("Delete() error = %v, want status %d", err, status)
				}
				if errors.Is(err, ErrRetryExhausted) {
					t.Error("write failure reported as retry exhaustion")
				}
				if got := mock.GetRequestCount(); got != 1 {
					t.Errorf("requests = %d, want 1", got)
				}
				if got := len(mock.Collection("posts")); got != 1 {
					t.Errorf("posts left = %d, want 1", got)
				}
			})
		}
	}
}

func TestClient_DefaultPolicyFailsDiscovery(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	mock.SetCollection("posts", testutil.Items("post", 35))
	mock.FailNext(http.StatusInternalServerError)

	c, err := New(DefaultConfig(mock.URL(), testutil.AdminKey))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	q, _ := query.Build(query.Posts, query.Args{})
	items, err := pagination.Discover[Entity](context.Background(), c.Resource(query.Posts), q)
	if StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("Discover() error = %v, want status 500", err)
	}
	if items != nil {
		t.Errorf("Discover() items = %d, want none", len(items))
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockGhost()
	defer mock.Close()
	c := newTestClient(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.SiteInfo(ctx); err == nil {
		t.Error("SiteInfo() with cancelled context should fail")
	}
}

func TestResourceLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/ghost/api/admin/posts/", "posts"},
		{"/blog/ghost/api/admin/tags/abc/", "tags"},
		{"/ghost/api/admin/", "other"},
		{"/health", "other"},
	}
	for _, tt := range tests {
		if got := resourceLabel(tt.path); got != tt.want {
			t.Errorf("resourceLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{400, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}
