package tasks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Task.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateSkipped || s == StateFailed
}

// SkipDecision is the result of a Task's skip predicate: run, or skip with
// an optional reason.
type SkipDecision struct {
	skip   bool
	reason string
}

// Proceed lets the task run.
func Proceed() SkipDecision { return SkipDecision{} }

// Skip skips the task. reason may be empty.
func Skip(reason string) SkipDecision { return SkipDecision{skip: true, reason: reason} }

// SkipIf skips with reason when cond holds.
func SkipIf(cond bool, reason string) SkipDecision {
	if cond {
		return Skip(reason)
	}
	return Proceed()
}

// Skipped reports whether the decision is to skip.
func (d SkipDecision) Skipped() bool { return d.skip }

// Reason returns the human-readable skip reason, if any.
func (d SkipDecision) Reason() string { return d.reason }

// Outcome is what a task body produces: a plain value, or a nested Runner
// that must complete before the task does.
type Outcome struct {
	value any
	sub   *Runner
}

// Value wraps a plain result.
func Value(v any) Outcome { return Outcome{value: v} }

// Done is an Outcome with no result.
func Done() Outcome { return Outcome{} }

// Sub returns an Outcome that expands into more work.
func Sub(r *Runner) Outcome { return Outcome{sub: r} }

// Runner returns the nested runner, if the outcome carries one.
func (o Outcome) Runner() (*Runner, bool) { return o.sub, o.sub != nil }

// Result returns the plain value, or nil for a nested runner.
func (o Outcome) Result() any { return o.value }

// SkipFunc decides whether a task should run.
type SkipFunc func(rc *RunContext) SkipDecision

// Func is a task body.
type Func func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error)

// Task is a named unit of work executed exactly once by a Runner.
type Task struct {
	Title string
	Skip  SkipFunc
	Run   Func

	// DependsOnPrior makes the task wait, under concurrency > 1, until every
	// earlier task in the list has settled before it starts.
	DependsOnPrior bool

	state atomic.Int32

	mu         sync.Mutex
	skipReason string
	result     any
	err        error
	output     string
	duration   time.Duration
	renderer   Renderer
	depth      int
}

// New creates a task.
func New(title string, run Func) *Task {
	return &Task{Title: title, Run: run}
}

// WithSkip sets the skip predicate and returns t.
func (t *Task) WithSkip(skip SkipFunc) *Task {
	t.Skip = skip
	return t
}

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

func (t *Task) setState(s State) { t.state.Store(int32(s)) }

// Err returns the failure, if the task failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Result returns the value produced by a completed task.
func (t *Task) Result() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// SkipReason returns the reason given when the task was skipped.
func (t *Task) SkipReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipReason
}

// LastOutput returns the most recent status message.
func (t *Task) LastOutput() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output
}

// Duration returns how long the body ran.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Output publishes a progress message for the running task.
func (t *Task) Output(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.output = msg
	r, depth := t.renderer, t.depth
	t.mu.Unlock()
	if r != nil {
		r.TaskOutput(t, depth, msg)
	}
}
