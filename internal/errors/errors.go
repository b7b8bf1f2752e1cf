// Package errors provides the error taxonomy shared by all ghost-tools commands.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes. A run is either ok or errored; no finer distinction is made.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Kind classifies a ToolError.
type Kind int

const (
	// KindUsage is malformed CLI input. The run does not start.
	KindUsage Kind = iota
	// KindDiscovery is a failed paginated fetch. Fatal for the command.
	KindDiscovery
	// KindEntity is a failed mutation of a single entity. Recovered and aggregated.
	KindEntity
	// KindFileIO is a local read/write failure. Fatal for file commands.
	KindFileIO
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindDiscovery:
		return "discovery"
	case KindEntity:
		return "entity"
	case KindFileIO:
		return "file"
	default:
		return "unknown"
	}
}

// Resource identifies the entity a KindEntity error belongs to.
type Resource struct {
	Type  string
	ID    string
	Slug  string
	Title string
	Email string
}

// String renders the most human-friendly identifier available.
func (r Resource) String() string {
	var parts []string
	switch {
	case r.Title != "":
		parts = append(parts, fmt.Sprintf("%q", r.Title))
	case r.Email != "":
		parts = append(parts, r.Email)
	case r.Slug != "":
		parts = append(parts, r.Slug)
	}
	if r.ID != "" {
		parts = append(parts, "id="+r.ID)
	}
	s := strings.Join(parts, " ")
	if r.Type != "" {
		return r.Type + " " + s
	}
	return s
}

// ToolError is the base error type for ghost-tools.
type ToolError struct {
	Kind     Kind
	Message  string
	Resource *Resource
	Cause    error
}

func (e *ToolError) Error() string {
	msg := e.Message
	if e.Resource != nil {
		msg = fmt.Sprintf("[%s] %s", e.Resource, msg)
	}
	if e.Cause != nil {
		if msg == "" {
			return e.Cause.Error()
		}
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// Usage creates a usage error.
func Usage(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindUsage, Message: fmt.Sprintf(format, args...)}
}

// WrapUsage wraps err as a usage error.
func WrapUsage(err error, message string) *ToolError {
	return &ToolError{Kind: KindUsage, Message: message, Cause: err}
}

// Discovery wraps a failed collection fetch.
func Discovery(resource string, err error) *ToolError {
	return &ToolError{Kind: KindDiscovery, Message: "discover " + resource, Cause: err}
}

// Entity wraps a failed mutation of one entity.
func Entity(res Resource, action string, err error) *ToolError {
	return &ToolError{Kind: KindEntity, Message: action, Resource: &res, Cause: err}
}

// FileIO wraps a failed local file operation on path.
func FileIO(path string, err error) *ToolError {
	return &ToolError{Kind: KindFileIO, Message: path, Cause: err}
}

// KindOf reports the kind of the first ToolError in err's chain.
func KindOf(err error) (Kind, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// ResourceOf returns the resource descriptor attached to err, if any.
func ResourceOf(err error) *Resource {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Resource
	}
	return nil
}

// IsUsage reports whether err is a usage error.
func IsUsage(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindUsage
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitFailure
}
