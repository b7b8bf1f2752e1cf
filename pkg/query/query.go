// Package query builds normalized Ghost Admin API browse parameters.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidLimit is returned when a limit is neither a positive integer nor "all".
var ErrInvalidLimit = errors.New("invalid limit")

// ErrUnknownResource is returned for a resource type the Admin API does not expose.
var ErrUnknownResource = errors.New("unknown resource type")

// ResourceType names a browsable Admin API collection.
type ResourceType string

const (
	Posts       ResourceType = "posts"
	Pages       ResourceType = "pages"
	Tags        ResourceType = "tags"
	Users       ResourceType = "users"
	Members     ResourceType = "members"
	Newsletters ResourceType = "newsletters"
	Labels      ResourceType = "labels"
	Tiers       ResourceType = "tiers"
)

// AllResourceTypes lists every supported collection in display order.
var AllResourceTypes = []ResourceType{Posts, Pages, Tags, Users, Members, Newsletters, Labels, Tiers}

// ParseResourceType validates s as a ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllResourceTypes {
		if rt == known {
			return rt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
}

// Singular returns the singular noun used in messages ("post", "tag").
func (rt ResourceType) Singular() string {
	return strings.TrimSuffix(string(rt), "s")
}

const (
	// DefaultLimit is the page size used unless a resource overrides it.
	DefaultLimit = 15

	// LimitAll requests the whole collection in one page.
	LimitAll = -1
)

// defaults holds the per-resource overrides applied before user arguments.
var defaults = map[ResourceType]Query{
	Tags:    {Limit: 50, Include: "count.posts"},
	Users:   {Limit: 50},
	Members: {Limit: 100},
}

// Args are the user-supplied browse options. Empty fields keep the defaults.
type Args struct {
	Filter  string
	Include string
	Fields  string
	Order   string
	Formats string
	Limit   string
}

// Query is a normalized browse request for one resource type.
// Page is 0 until the paginator issues its first request.
type Query struct {
	Resource ResourceType
	Page     int
	Limit    int
	Filter   string
	Include  string
	Fields   string
	Order    string
	Formats  string
}

// Build returns the query for rt with per-resource defaults and args applied.
// A non-numeric limit is reported as ErrInvalidLimit.
func Build(rt ResourceType, args Args) (Query, error) {
	q := Query{Resource: rt, Limit: DefaultLimit}
	if d, ok := defaults[rt]; ok {
		if d.Limit != 0 {
			q.Limit = d.Limit
		}
		q.Include = d.Include
	}

	if strings.TrimSpace(args.Limit) != "" {
		limit, err := ParseLimit(args.Limit)
		if err != nil {
			return Query{}, err
		}
		q.Limit = limit
	}

	override(&q.Filter, args.Filter)
	override(&q.Include, args.Include)
	override(&q.Fields, args.Fields)
	override(&q.Order, args.Order)
	override(&q.Formats, args.Formats)

	return q, nil
}

// ParseLimit parses a positive integer or the literal "all".
func ParseLimit(s string) (int, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return LimitAll, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimit, s)
	}
	return n, nil
}

func override(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// WithPage returns a copy of q requesting page n.
func (q Query) WithPage(n int) Query {
	q.Page = n
	return q
}

// WithFilter returns a copy of q with filter replaced.
func (q Query) WithFilter(filter string) Query {
	q.Filter = filter
	return q
}

// WithLimit returns a copy of q with limit replaced.
func (q Query) WithLimit(limit int) Query {
	q.Limit = limit
	return q
}

// LimitString renders the limit as sent on the wire.
func (q Query) LimitString() string {
	if q.Limit == LimitAll {
		return "all"
	}
	return strconv.Itoa(q.Limit)
}

// Values encodes q as URL query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit != 0 {
		v.Set("limit", q.LimitString())
	}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("filter", q.Filter)
	set("include", q.Include)
	set("fields", q.Fields)
	set("order", q.Order)
	set("formats", q.Formats)
	return v
}
