package tasks

import (
	"fmt"
	"sync"
	"time"

	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
)

// Conventional accumulator keys.
const (
	KeyUpdated = "updated"
	KeyDeleted = "deleted"
	KeyAdded   = "added"
	KeyChanged = "changed"
	KeySkipped = "skipped"
)

// TaskError is a failure recorded in a RunContext.
type TaskError struct {
	Task     string
	Resource *toolerrors.Resource
	Err      error
}

func (e *TaskError) Error() string {
	if e.Task == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// RunContext is the shared result bag threaded through every task of a run.
// Appends are serialized; under concurrency > 1 list order follows
// completion order.
type RunContext struct {
	mu      sync.Mutex
	started time.Time
	errs    []*TaskError
	lists   map[string][]any
	values  map[string]any
}

// NewRunContext creates an empty context and starts its clock.
func NewRunContext() *RunContext {
	return &RunContext{
		started: time.Now(),
		lists:   make(map[string][]any),
		values:  make(map[string]any),
	}
}

// Append adds values to the named list.
func (c *RunContext) Append(key string, vs ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = append(c.lists[key], vs...)
}

// List returns a copy of the named list.
func (c *RunContext) List(key string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.lists[key]...)
}

// Len returns the length of the named list.
func (c *RunContext) Len(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lists[key])
}

// Set stores a named value, overwriting any previous one.
func (c *RunContext) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Get returns a named value.
func (c *RunContext) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// RecordError appends a failure attributed to task. The resource
// descriptor is taken from err when present.
func (c *RunContext) RecordError(task string, err error) {
	te := &TaskError{Task: task, Resource: toolerrors.ResourceOf(err), Err: err}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, te)
}

// Errors returns a copy of the recorded failures in record order.
func (c *RunContext) Errors() []*TaskError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*TaskError(nil), c.errs...)
}

// HasErrors reports whether any failure was recorded.
func (c *RunContext) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs) > 0
}

// Elapsed returns the time since the context was created.
func (c *RunContext) Elapsed() time.Duration {
	return time.Since(c.started)
}

// Get returns the named value asserted to T.
func Get[T any](c *RunContext, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Items returns the elements of the named list that are of type T.
func Items[T any](c *RunContext, key string) []T {
	var out []T
	for _, v := range c.List(key) {
		if t, ok := v.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
