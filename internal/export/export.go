// Package export reads, splits and combines Ghost JSON content exports.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Table names.
const (
	TablePosts = "posts"
	TableTags  = "tags"
	TableUsers = "users"
)

// Row is one record of an export table.
type Row = map[string]any

// Export is a Ghost JSON content export.
type Export struct {
	DB []Database `json:"db"`
}

// Database is one entry of the export's "db" array.
type Database struct {
	Meta map[string]any   `json:"meta"`
	Data map[string][]Row `json:"data"`
}

// Data returns the tables of the first database.
func (e *Export) Data() map[string][]Row {
	if len(e.DB) == 0 {
		return nil
	}
	return e.DB[0].Data
}

// Meta returns the meta block of the first database.
func (e *Export) Meta() map[string]any {
	if len(e.DB) == 0 {
		return nil
	}
	return e.DB[0].Meta
}

// Tables returns the table names in sorted order.
func (e *Export) Tables() []string {
	data := e.Data()
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of rows in table.
func (e *Export) Count(table string) int {
	return len(e.Data()[table])
}

// Parse validates and decodes an export.
func Parse(data []byte) (*Export, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var exp Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	if exp.DB[0].Data == nil {
		exp.DB[0].Data = map[string][]Row{}
	}
	return &exp, nil
}

// Read loads and validates the export at path.
func Read(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	exp, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return exp, nil
}

// Write stores exp at path as indented JSON, creating parent directories.
func Write(path string, exp *Export) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
