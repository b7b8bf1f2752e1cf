package export

import (
	"encoding/json"
)

// Combine merges exports into one. Meta comes from the first export.
// Rows with an id are de-duplicated by id (first occurrence wins); rows
// without one are de-duplicated by their full content.
func Combine(exports ...*Export) *Export {
	out := &Export{DB: []Database{{Data: map[string][]Row{}}}}
	if len(exports) == 0 {
		return out
	}
	out.DB[0].Meta = exports[0].Meta()

	seen := map[string]map[string]bool{}
	for _, exp := range exports {
		for _, table := range exp.Tables() {
			if seen[table] == nil {
				seen[table] = map[string]bool{}
				out.DB[0].Data[table] = []Row{}
			}
			for _, row := range exp.Data()[table] {
				key := rowKey(row)
				if seen[table][key] {
					continue
				}
				seen[table][key] = true
				out.DB[0].Data[table] = append(out.DB[0].Data[table], row)
			}
		}
	}
	return out
}

func rowKey(row Row) string {
	if id := rowID(row["id"]); id != "" {
		return "id:" + id
	}
	// encoding/json sorts map keys, so equal rows encode identically
	data, _ := json.Marshal(row)
	return "row:" + string(data)
}
