package export

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChunkSize is returned for a non-positive posts-per-file value.
var ErrInvalidChunkSize = errors.New("posts per file must be positive")

// Split divides exp into exports of at most maxPosts posts each. Tables
// keyed by post_id keep only the rows of their chunk's posts; every other
// table is copied into each chunk so each file imports on its own.
func Split(exp *Export, maxPosts int) ([]*Export, error) {
	if maxPosts <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxPosts)
	}

	data := exp.Data()
	posts := data[TablePosts]
	if len(posts) == 0 {
		return []*Export{exp}, nil
	}

	var chunks []*Export
	for start := 0; start < len(posts); start += maxPosts {
		end := min(start+maxPosts, len(posts))
		chunkPosts := posts[start:end]

		ids := make(map[string]bool, len(chunkPosts))
		for _, p := range chunkPosts {
			ids[rowID(p["id"])] = true
		}

		chunkData := make(map[string][]Row, len(data))
		for table, rows := range data {
			switch {
			case table == TablePosts:
				chunkData[table] = chunkPosts
			case isPostRelation(rows):
				var kept []Row
				for _, r := range rows {
					if ids[rowID(r["post_id"])] {
						kept = append(kept, r)
					}
				}
				chunkData[table] = nonNilRows(kept)
			default:
				chunkData[table] = rows
			}
		}

		chunks = append(chunks, &Export{DB: []Database{{
			Meta: exp.Meta(),
			Data: chunkData,
		}}})
	}
	return chunks, nil
}

// isPostRelation reports whether rows reference posts by post_id.
func isPostRelation(rows []Row) bool {
	if len(rows) == 0 {
		return false
	}
	_, ok := rows[0]["post_id"]
	return ok
}

func rowID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return strings.TrimSpace(fmt.Sprint(id))
	}
}

func nonNilRows(rows []Row) []Row {
	if rows == nil {
		return []Row{}
	}
	return rows
}
