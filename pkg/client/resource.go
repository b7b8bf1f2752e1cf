package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/pagination"
	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
)

// Entity is one Admin API record as decoded from JSON.
type Entity map[string]any

// ID returns the entity id.
func (e Entity) ID() string {
	return e.String("id")
}

// String returns the field as a string; numbers are formatted, anything
// else yields "".
func (e Entity) String(key string) string {
	switch v := e[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Count returns count.<name> as included by "include=count.<name>".
// The second result is false when the count was not included.
func (e Entity) Count(name string) (int, bool) {
	counts, ok := e["count"].(map[string]any)
	if !ok {
		return 0, false
	}
	n, ok := counts[name].(float64)
	return int(n), ok
}

// Describe returns the descriptor used to attribute per-entity failures.
func (e Entity) Describe(rt query.ResourceType) toolerrors.Resource {
	title := e.String("title")
	if title == "" {
		title = e.String("name")
	}
	return toolerrors.Resource{
		Type:  rt.Singular(),
		ID:    e.ID(),
		Slug:  e.String("slug"),
		Title: title,
		Email: e.String("email"),
	}
}

type browseMeta struct {
	Meta struct {
		Pagination pagination.Meta `json:"pagination"`
	} `json:"meta"`
}

// Browse fetches one page of q's collection.
func (c *Client) Browse(ctx context.Context, q query.Query) (*pagination.Page[Entity], error) {
	endpoint := c.Endpoint(string(q.Resource), "")
	if values := q.Values(); len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	data, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	items, err := decodeEnvelope(data, string(q.Resource))
	if err != nil {
		return nil, err
	}

	var meta browseMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s pagination: %w", q.Resource, err)
	}

	return &pagination.Page[Entity]{
		Items:      items,
		Pagination: meta.Meta.Pagination,
	}, nil
}

// Resource returns a page fetcher bound to rt.
func (c *Client) Resource(rt query.ResourceType) pagination.PageFetcher[Entity] {
	return pagination.FetcherFunc[Entity](func(ctx context.Context, q query.Query) (*pagination.Page[Entity], error) {
		q.Resource = rt
		return c.Browse(ctx, q)
	})
}

// Read fetches a single entity by id.
func (c *Client) Read(ctx context.Context, rt query.ResourceType, id string) (Entity, error) {
	data, err := c.call(ctx, http.MethodGet, c.Endpoint(string(rt), id), nil)
	if err != nil {
		return nil, err
	}
	return firstEntity(data, string(rt))
}

// Add creates an entity and returns it as stored by Ghost.
func (c *Client) Add(ctx context.Context, rt query.ResourceType, e Entity) (Entity, error) {
	data, err := c.call(ctx, http.MethodPost, c.Endpoint(string(rt), ""), envelope(rt, e))
	if err != nil {
		return nil, err
	}
	return firstEntity(data, string(rt))
}

// Edit updates entity id with the fields in e. Posts and pages need the
// current updated_at in e for Ghost's collision detection.
func (c *Client) Edit(ctx context.Context, rt query.ResourceType, id string, e Entity) (Entity, error) {
	data, err := c.call(ctx, http.MethodPut, c.Endpoint(string(rt), id), envelope(rt, e))
	if err != nil {
		return nil, err
	}
	return firstEntity(data, string(rt))
}

// Delete removes entity id.
func (c *Client) Delete(ctx context.Context, rt query.ResourceType, id string) error {
	_, err := c.call(ctx, http.MethodDelete, c.Endpoint(string(rt), id), nil)
	return err
}

// SiteInfo returns the site record (title, url, version).
func (c *Client) SiteInfo(ctx context.Context) (Entity, error) {
	data, err := c.call(ctx, http.MethodGet, c.Endpoint("site", ""), nil)
	if err != nil {
		return nil, err
	}
	var body struct {
		Site Entity `json:"site"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode site: %w", err)
	}
	return body.Site, nil
}

func envelope(rt query.ResourceType, e Entity) map[string][]Entity {
	return map[string][]Entity{string(rt): {e}}
}

// call performs one API call and returns the response body.
func (c *Client) call(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte, resource string) ([]Entity, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode %s: %w", resource, err)
	}
	raw, ok := body[resource]
	if !ok {
		return nil, fmt.Errorf("decode %s: response has no %q key", resource, resource)
	}
	var items []Entity
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", resource, err)
	}
	if items == nil {
		items = []Entity{}
	}
	return items, nil
}

func firstEntity(data []byte, resource string) (Entity, error) {
	items, err := decodeEnvelope(data, resource)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("decode %s: empty response", resource)
	}
	return items[0], nil
}
