package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// sampleExport builds an export with n posts, one tag per post and one author.
func sampleExport(n int) string {
	var posts, postsTags []string
	for i := 1; i <= n; i++ {
		posts = append(posts, fmt.Sprintf(`{"id":"p%d","title":"Post %d"}`, i, i))
		postsTags = append(postsTags, fmt.Sprintf(`{"id":"pt%d","post_id":"p%d","tag_id":"t1"}`, i, i))
	}
	return fmt.Sprintf(`{"db":[{"meta":{"exported_on":1700000000000,"version":"5.70.0"},"data":{
		"posts":[%s],
		"posts_tags":[%s],
		"tags":[{"id":"t1","name":"News","slug":"news"}],
		"users":[{"id":"u1","name":"Author","email":"a@example.com"}]
	}}]}`, strings.Join(posts, ","), strings.Join(postsTags, ","))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "valid", data: sampleExport(2)},
		{name: "not json", data: `{`, wantErr: true},
		{name: "missing db", data: `{"data":{}}`, wantErr: true},
		{name: "empty db", data: `{"db":[]}`, wantErr: true},
		{name: "post without id", data: `{"db":[{"meta":{},"data":{"posts":[{"title":"x"}]}}]}`, wantErr: true},
		{name: "relation without post_id", data: `{"db":[{"meta":{},"data":{"posts_tags":[{"tag_id":"t"}]}}]}`, wantErr: true},
		{name: "table not an array", data: `{"db":[{"meta":{},"data":{"settings":{}}}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse(t *testing.T) {
	exp, err := Parse([]byte(sampleExport(3)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if exp.Count("posts") != 3 {
		t.Errorf("Count(posts) = %d, want 3", exp.Count("posts"))
	}
	if exp.Meta()["version"] != "5.70.0" {
		t.Errorf("version = %v", exp.Meta()["version"])
	}
	want := []string{"posts", "posts_tags", "tags", "users"}
	if got := exp.Tables(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Tables() = %v, want %v", got, want)
	}
}

func TestSplit(t *testing.T) {
	exp, _ := Parse([]byte(sampleExport(5)))

	chunks, err := Split(exp, 2)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Split() returned %d chunks, want 3", len(chunks))
	}

	wantPosts := []int{2, 2, 1}
	for i, chunk := range chunks {
		if got := chunk.Count("posts"); got != wantPosts[i] {
			t.Errorf("chunk %d posts = %d, want %d", i, got, wantPosts[i])
		}
		if got := chunk.Count("posts_tags"); got != wantPosts[i] {
			t.Errorf("chunk %d posts_tags = %d, want %d", i, got, wantPosts[i])
		}
		if chunk.Count("tags") != 1 || chunk.Count("users") != 1 {
			t.Errorf("chunk %d should carry shared tables", i)
		}
		for _, rel := range chunk.Data()["posts_tags"] {
			found := false
			for _, p := range chunk.Data()["posts"] {
				if p["id"] == rel["post_id"] {
					found = true
				}
			}
			if !found {
				t.Errorf("chunk %d has relation for foreign post %v", i, rel["post_id"])
			}
		}
	}
}

func TestSplit_Edges(t *testing.T) {
	exp, _ := Parse([]byte(sampleExport(3)))

	if _, err := Split(exp, 0); err == nil {
		t.Error("Split() with size 0 should fail")
	}

	chunks, err := Split(exp, 10)
	if err != nil || len(chunks) != 1 || chunks[0].Count("posts") != 3 {
		t.Errorf("Split() larger than input = %d chunks, %v", len(chunks), err)
	}

	empty, _ := Parse([]byte(`{"db":[{"meta":{},"data":{"tags":[{"id":"t1"}]}}]}`))
	chunks, err = Split(empty, 2)
	if err != nil || len(chunks) != 1 {
		t.Errorf("Split() without posts = %d chunks, %v; want 1", len(chunks), err)
	}
}

func TestCombine(t *testing.T) {
	exp, _ := Parse([]byte(sampleExport(5)))
	chunks, _ := Split(exp, 2)

	combined := Combine(chunks...)

	if got := combined.Count("posts"); got != 5 {
		t.Errorf("posts = %d, want 5", got)
	}
	if got := combined.Count("posts_tags"); got != 5 {
		t.Errorf("posts_tags = %d, want 5", got)
	}
	if got := combined.Count("tags"); got != 1 {
		t.Errorf("tags = %d, want 1 (de-duplicated)", got)
	}
	if combined.Meta()["version"] != "5.70.0" {
		t.Errorf("meta not taken from first export")
	}
	for i, p := range combined.Data()["posts"] {
		if want := fmt.Sprintf("p%d", i+1); p["id"] != want {
			t.Errorf("posts[%d] = %v, want %s", i, p["id"], want)
		}
	}
}

func TestCombine_RowsWithoutID(t *testing.T) {
	a, _ := Parse([]byte(`{"db":[{"meta":{},"data":{"posts_authors":[{"post_id":"p1","author_id":"u1"}]}}]}`))
	b, _ := Parse([]byte(`{"db":[{"meta":{},"data":{"posts_authors":[{"author_id":"u1","post_id":"p1"},{"post_id":"p2","author_id":"u1"}]}}]}`))

	combined := Combine(a, b)
	if got := combined.Count("posts_authors"); got != 2 {
		t.Errorf("posts_authors = %d, want 2", got)
	}
}

func TestReadWrite(t *testing.T) {
	dir := t.TempDir()
	exp, _ := Parse([]byte(sampleExport(2)))

	path := filepath.Join(dir, "nested", "out.json")
	if err := Write(path, exp); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	back, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if back.Count("posts") != 2 {
		t.Errorf("posts = %d, want 2", back.Count("posts"))
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"db":[]}`), 0o644)
	if _, err := Read(bad); err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Errorf("Read() invalid export error = %v, want file name", err)
	}
}
