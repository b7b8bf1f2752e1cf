package client

import (
	"encoding/json"
	"testing"

	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
)

func decodeEntity(t *testing.T, s string) Entity {
	t.Helper()
	var e Entity
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return e
}

func TestEntity_String(t *testing.T) {
	e := decodeEntity(t, `{"id":"abc","count":3,"featured":true,"tags":[]}`)

	tests := []struct {
		key  string
		want string
	}{
		{"id", "abc"},
		{"count", "3"},
		{"featured", "true"},
		{"tags", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := e.String(tt.key); got != tt.want {
			t.Errorf("String(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestEntity_Count(t *testing.T) {
	e := decodeEntity(t, `{"count":{"posts":0,"members":4}}`)

	if n, ok := e.Count("posts"); !ok || n != 0 {
		t.Errorf("Count(posts) = %d, %v; want 0, true", n, ok)
	}
	if n, ok := e.Count("members"); !ok || n != 4 {
		t.Errorf("Count(members) = %d, %v; want 4, true", n, ok)
	}
	if _, ok := decodeEntity(t, `{}`).Count("posts"); ok {
		t.Error("Count() without include should report false")
	}
}

func TestEntity_Describe(t *testing.T) {
	tests := []struct {
		name   string
		entity Entity
		rt     query.ResourceType
		want   string
	}{
		{
			name:   "post",
			entity: Entity{"id": "1", "title": "Hello", "slug": "hello"},
			rt:     query.Posts,
			want:   `post "Hello" id=1`,
		},
		{
			name:   "tag uses name",
			entity: Entity{"id": "2", "name": "News", "slug": "news"},
			rt:     query.Tags,
			want:   `tag "News" id=2`,
		},
		{
			name:   "member",
			entity: Entity{"id": "3", "email": "a@example.com"},
			rt:     query.Members,
			want:   "member a@example.com id=3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entity.Describe(tt.rt).String(); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeEnvelope(t *testing.T) {
	items, err := decodeEnvelope([]byte(`{"posts":[]}`), "posts")
	if err != nil || items == nil || len(items) != 0 {
		t.Errorf("decodeEnvelope() = %v, %v; want empty non-nil", items, err)
	}

	if _, err := decodeEnvelope([]byte(`{"tags":[]}`), "posts"); err == nil {
		t.Error("decodeEnvelope() with wrong key should fail")
	}
}
