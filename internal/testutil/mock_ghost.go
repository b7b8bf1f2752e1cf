// Package testutil provides a mock Ghost Admin API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AdminKey is a well-formed key accepted by the client.
const AdminKey = "6489b1f2c7d3a40001a1b2c3:" +
	"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

const apiPath = "/ghost/api/admin/"

// MockGhost is a configurable in-memory Ghost Admin API.
type MockGhost struct {
	server *httptest.Server

	mu          sync.Mutex
	collections map[string][]map[string]any
	handlers    map[string]http.HandlerFunc
	failIDs     map[string]int
	failNext    []int
	retryAfter  string
	nextID      int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	calls             map[string]int
	queries           []string
}

// NewMockGhost starts a mock server with empty collections.
func NewMockGhost() *MockGhost {
	mock := &MockGhost{
		collections: make(map[string][]map[string]any),
		handlers:    make(map[string]http.HandlerFunc),
		failIDs:     make(map[string]int),
		calls:       make(map[string]int),
		retryAfter:  "0",
		nextID:      1000,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the site URL of the mock.
func (m *MockGhost) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGhost) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGhost) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.calls = make(map[string]int)
	m.queries = nil
}

// ID formats n as a Ghost object id.
func ID(n int) string {
	return fmt.Sprintf("%024x", n)
}

// Items builds n records of the given singular kind with ids ID(1)..ID(n).
func Items(kind string, n int) []map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		num := i + 1
		item := map[string]any{
			"id":         ID(num),
			"slug":       fmt.Sprintf("%s-%d", kind, num),
			"updated_at": "2024-01-01T00:00:00.000Z",
		}
		switch kind {
		case "member":
			item["email"] = fmt.Sprintf("member%d@example.com", num)
			item["name"] = fmt.Sprintf("Member %d", num)
			item["labels"] = []any{}
		case "tag", "label", "tier", "newsletter", "user":
			item["name"] = fmt.Sprintf("%s %d", kind, num)
		default:
			item["title"] = fmt.Sprintf("%s %d", kind, num)
			item["status"] = "published"
			item["visibility"] = "public"
			item["tags"] = []any{}
		}
		items[i] = item
	}
	return items
}

// SetCollection replaces the records of resource.
func (m *MockGhost) SetCollection(resource string, items []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[resource] = items
}

// Collection returns a copy of the records of resource.
func (m *MockGhost) Collection(resource string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.collections[resource]))
	copy(out, m.collections[resource])
	return out
}

// SetHandler overrides the handler for an exact request path.
func (m *MockGhost) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// FailID makes every write to id answer with status.
func (m *MockGhost) FailID(id string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIDs[id] = status
}

// FailNext queues statuses returned by the next requests, in order,
// before normal handling resumes. 429s carry the configured Retry-After.
func (m *MockGhost) FailNext(statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, statuses...)
}

// SetRetryAfter sets the Retry-After value sent with queued 429s.
func (m *MockGhost) SetRetryAfter(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryAfter = value
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGhost) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockGhost) GetConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConditionalCount
}

// Calls returns how many requests were made with method on resource.
func (m *MockGhost) Calls(method, resource string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method+" "+resource]
}

// Queries returns the raw query strings of every browse request.
func (m *MockGhost) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func (m *MockGhost) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" {
		m.ConditionalCount++
	}
	handler, custom := m.handlers[r.URL.Path]
	var injected int
	if len(m.failNext) > 0 {
		injected, m.failNext = m.failNext[0], m.failNext[1:]
	}
	retryAfter := m.retryAfter
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Ghost ") {
		writeError(w, http.StatusUnauthorized, "Authorization header format is \"Authorization: Ghost [token]\"", "")
		return
	}

	if injected != 0 {
		if injected == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, injected, "Too many requests", "TooManyRequestsError")
			return
		}
		writeError(w, injected, http.StatusText(injected), "InternalServerError")
		return
	}

	if custom {
		handler(w, r)
		return
	}

	if !strings.HasPrefix(r.URL.Path, apiPath) {
		writeError(w, http.StatusNotFound, "Resource not found", "NotFoundError")
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, apiPath), "/")
	resource, id, _ := strings.Cut(rest, "/")

	m.mu.Lock()
	m.calls[r.Method+" "+resource]++
	m.mu.Unlock()

	if resource == "site" {
		writeJSON(w, http.StatusOK, map[string]any{
			"site": map[string]any{"title": "Mock Ghost", "url": m.server.URL, "version": "5.0"},
		})
		return
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		m.browse(w, r, resource)
	case r.Method == http.MethodGet:
		m.read(w, resource, id)
	case r.Method == http.MethodPost && id == "":
		m.add(w, r, resource)
	case r.Method == http.MethodPut && id != "":
		m.edit(w, r, resource, id)
	case r.Method == http.MethodDelete && id != "":
		m.remove(w, resource, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "MethodNotAllowedError")
	}
}

func (m *MockGhost) browse(w http.ResponseWriter, r *http.Request, resource string) {
	q := r.URL.Query()

	m.mu.Lock()
	m.queries = append(m.queries, r.URL.RawQuery)
	var items []map[string]any
	for _, item := range m.collections[resource] {
		if matchFilter(item, q.Get("filter")) {
			items = append(items, item)
		}
	}
	m.mu.Unlock()

	total := len(items)
	page := atoiDefault(q.Get("page"), 1)
	limit := 15
	var limitOut any = limit
	switch l := q.Get("limit"); {
	case l == "all":
		limit = total
		limitOut = "all"
	case l != "":
		limit = atoiDefault(l, 15)
		limitOut = limit
	}

	pages := 1
	if limit > 0 && total > 0 {
		pages = (total + limit - 1) / limit
	}

	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total || limit == 0 {
		end = total
	}

	var next, prev any
	if page < pages {
		next = page + 1
	}
	if page > 1 {
		prev = page - 1
	}

	body := map[string]any{
		resource: nonNil(items[start:end]),
		"meta": map[string]any{
			"pagination": map[string]any{
				"page": page, "limit": limitOut, "pages": pages,
				"total": total, "next": next, "prev": prev,
			},
		},
	}

	data, _ := json.Marshal(body)
	h := fnv.New64a()
	h.Write(data)
	etag := fmt.Sprintf(`W/"%x"`, h.Sum64())
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (m *MockGhost) read(w http.ResponseWriter, resource, id string) {
	m.mu.Lock()
	item, _ := m.find(resource, id)
	m.mu.Unlock()

	if item == nil {
		writeError(w, http.StatusNotFound, "Resource not found", "NotFoundError")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{resource: []any{item}})
}

func (m *MockGhost) add(w http.ResponseWriter, r *http.Request, resource string) {
	item, ok := decodeOne(w, r, resource)
	if !ok {
		return
	}

	m.mu.Lock()
	m.nextID++
	item["id"] = ID(m.nextID)
	item["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	m.collections[resource] = append(m.collections[resource], item)
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{resource: []any{item}})
}

func (m *MockGhost) edit(w http.ResponseWriter, r *http.Request, resource, id string) {
	if m.failFor(w, id) {
		return
	}
	patch, ok := decodeOne(w, r, resource)
	if !ok {
		return
	}

	m.mu.Lock()
	item, _ := m.find(resource, id)
	if item != nil {
		merged := make(map[string]any, len(item)+len(patch))
		for k, v := range item {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		merged["id"] = id
		merged["updated_at"] = time.Now().UTC().Format(time.RFC3339)
		_, idx := m.find(resource, id)
		m.collections[resource][idx] = merged
		item = merged
	}
	m.mu.Unlock()

	if item == nil {
		writeError(w, http.StatusNotFound, "Resource not found", "NotFoundError")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{resource: []any{item}})
}

func (m *MockGhost) remove(w http.ResponseWriter, resource, id string) {
	if m.failFor(w, id) {
		return
	}

	m.mu.Lock()
	_, idx := m.find(resource, id)
	if idx >= 0 {
		items := m.collections[resource]
		m.collections[resource] = append(items[:idx:idx], items[idx+1:]...)
	}
	m.mu.Unlock()

	if idx < 0 {
		writeError(w, http.StatusNotFound, "Resource not found", "NotFoundError")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockGhost) failFor(w http.ResponseWriter, id string) bool {
	m.mu.Lock()
	status, ok := m.failIDs[id]
	m.mu.Unlock()
	if ok {
		writeError(w, status, "Validation error, cannot edit "+id, "ValidationError")
	}
	return ok
}

// find must be called with m.mu held.
func (m *MockGhost) find(resource, id string) (map[string]any, int) {
	for i, item := range m.collections[resource] {
		if item["id"] == id {
			return item, i
		}
	}
	return nil, -1
}

// matchFilter supports "key:value" terms joined by "+". Relation keys
// (tag, tags, label, labels) match on nested slugs.
func matchFilter(item map[string]any, filter string) bool {
	if filter == "" {
		return true
	}
	for _, term := range strings.Split(filter, "+") {
		key, value, ok := strings.Cut(term, ":")
		if !ok {
			continue
		}
		value = strings.Trim(value, `'"`)
		switch key {
		case "tag", "tags", "label", "labels":
			rel := strings.TrimSuffix(key, "s") + "s"
			if !hasSlug(item[rel], value) {
				return false
			}
		default:
			if fmt.Sprint(item[key]) != value {
				return false
			}
		}
	}
	return true
}

func hasSlug(v any, slug string) bool {
	list, _ := v.([]any)
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok && m["slug"] == slug {
			return true
		}
	}
	return false
}

func decodeOne(w http.ResponseWriter, r *http.Request, resource string) (map[string]any, bool) {
	var body map[string][]map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body[resource]) != 1 {
		writeError(w, http.StatusBadRequest, "Request body must contain one "+resource+" object", "BadRequestError")
		return nil, false
	}
	return body[resource][0], true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]any{{"message": message, "type": errType, "context": nil}},
	})
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}

func nonNil(items []map[string]any) []map[string]any {
	if items == nil {
		return []map[string]any{}
	}
	return items
}

