// Package csvdiff compares two member CSV exports.
package csvdiff

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultKey is the column members are matched on.
const DefaultKey = "email"

// ErrMissingColumn is returned when the key column is absent.
var ErrMissingColumn = errors.New("missing key column")

// Table is a parsed CSV file.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of name (case-insensitive), or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// Parse reads a CSV with a header row.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Table{}, nil
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return &Table{Header: header, Rows: records[1:]}, nil
}

// Read parses the CSV file at path.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Result is the outcome of Diff.
type Result struct {
	// Header of the after file
	Header []string
	// Added rows exist in after but not in before, in after's order
	Added [][]string
	// Removed rows exist in before but not in after, in before's order
	Removed [][]string
	// Unchanged counts keys present in both
	Unchanged int
}

// Diff matches rows of before and after on the key column, ignoring case and
// surrounding space. Rows with an empty key are ignored.
func Diff(before, after *Table, key string) (*Result, error) {
	oldCol := before.Column(key)
	if oldCol < 0 {
		return nil, fmt.Errorf("%w %q in old file", ErrMissingColumn, key)
	}
	newCol := after.Column(key)
	if newCol < 0 {
		return nil, fmt.Errorf("%w %q in new file", ErrMissingColumn, key)
	}

	oldKeys := keySet(before, oldCol)
	newKeys := keySet(after, newCol)

	res := &Result{Header: after.Header}
	seen := make(map[string]bool)
	for _, row := range after.Rows {
		k := normalize(field(row, newCol))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if oldKeys[k] {
			res.Unchanged++
		} else {
			res.Added = append(res.Added, row)
		}
	}
	seen = make(map[string]bool)
	for _, row := range before.Rows {
		k := normalize(field(row, oldCol))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if !newKeys[k] {
			res.Removed = append(res.Removed, row)
		}
	}
	return res, nil
}

// Write stores header and rows as CSV at path.
func Write(path string, header []string, rows [][]string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

func keySet(t *Table, col int) map[string]bool {
	keys := make(map[string]bool, len(t.Rows))
	for _, row := range t.Rows {
		if k := normalize(field(row, col)); k != "" {
			keys[k] = true
		}
	}
	return keys
}

func field(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
