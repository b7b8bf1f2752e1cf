package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrAlreadyRun is returned when a Runner is run a second time.
var ErrAlreadyRun = errors.New("runner already run")

var tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ghost_tasks_total",
	Help: "Total tasks settled by terminal state",
}, []string{"state"})

// Options configures a Runner. Options are copied into the runner and never
// modified by it.
type Options struct {
	// Concurrency is the maximum number of tasks in flight. Values below 1
	// mean 1 (strictly sequential).
	Concurrency int

	// ExitOnError stops starting new tasks after the first failure. Tasks
	// already started still settle.
	ExitOnError bool

	// TopLevel marks the root runner of a command. Its renderer receives
	// RunFinished once every task has settled. Scheduling is unaffected.
	TopLevel bool

	// Renderer receives task events. Nil inherits the parent's renderer
	// for nested runners and is silent otherwise.
	Renderer Renderer
}

// Runner executes an ordered list of tasks.
//
// With Concurrency 1 task i+1 starts only after task i has settled. With
// Concurrency N > 1 tasks start in list order with up to N in flight;
// completion order is unspecified. A failing task never prevents started
// siblings from settling. Run returns a *RunError once every started task
// has settled if any of them failed.
type Runner struct {
	tasks []*Task
	opts  Options
	depth int
	ran   atomic.Bool
}

// NewRunner creates a runner over tasks.
func NewRunner(tasks []*Task, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{tasks: tasks, opts: opts}
}

// Tasks returns the runner's task list.
func (r *Runner) Tasks() []*Task { return r.tasks }

// Options returns a copy of the runner's options.
func (r *Runner) Options() Options { return r.opts }

// Run executes the tasks against rc. A nil rc gets a fresh context.
func (r *Runner) Run(ctx context.Context, rc *RunContext) error {
	if !r.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	if rc == nil {
		rc = NewRunContext()
	}
	if r.opts.Renderer == nil {
		r.opts.Renderer = SilentRenderer{}
	}

	start := time.Now()
	var errs []error
	if r.opts.Concurrency == 1 {
		errs = r.runSequential(ctx, rc)
	} else {
		errs = r.runParallel(ctx, rc)
	}

	var err error
	if len(errs) > 0 {
		err = &RunError{Errs: errs}
	}
	if r.opts.TopLevel {
		r.opts.Renderer.RunFinished(time.Since(start), err)
	}
	return err
}

func (r *Runner) runSequential(ctx context.Context, rc *RunContext) []error {
	var errs []error
	for _, t := range r.tasks {
		if err := ctx.Err(); err != nil {
			return append(errs, err)
		}
		if !r.begin(rc, t) {
			continue
		}
		if err := r.finish(ctx, rc, t); err != nil {
			errs = append(errs, err)
			if r.opts.ExitOnError {
				break
			}
		}
	}
	return errs
}

// runParallel bounds in-flight tasks with a channel semaphore. Each task is
// begun on the scheduling goroutine so start order equals list order.
func (r *Runner) runParallel(ctx context.Context, rc *RunContext) []error {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		errs    []error
		stopped atomic.Bool
	)
	sem := make(chan struct{}, r.opts.Concurrency)

schedule:
	for _, t := range r.tasks {
		if t.DependsOnPrior {
			wg.Wait()
		}
		if stopped.Load() {
			break
		}

		select {
		case <-ctx.Done():
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			break schedule
		case sem <- struct{}{}:
		}

		if stopped.Load() {
			<-sem
			break
		}
		if !r.begin(rc, t) {
			<-sem
			continue
		}

		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := r.finish(ctx, rc, t); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				if r.opts.ExitOnError {
					stopped.Store(true)
				}
			}
		}(t)
	}

	wg.Wait()
	return errs
}

// begin evaluates the skip predicate and moves t to running. It returns
// false when the task was skipped.
func (r *Runner) begin(rc *RunContext, t *Task) bool {
	t.mu.Lock()
	t.renderer = r.opts.Renderer
	t.depth = r.depth
	t.mu.Unlock()

	if t.Skip != nil {
		if d := t.Skip(rc); d.Skipped() {
			t.mu.Lock()
			t.skipReason = d.Reason()
			t.mu.Unlock()
			t.setState(StateSkipped)
			tasksTotal.WithLabelValues(StateSkipped.String()).Inc()
			r.opts.Renderer.TaskSkipped(t, r.depth, d.Reason())
			return false
		}
	}

	t.setState(StateRunning)
	r.opts.Renderer.TaskStarted(t, r.depth)
	return true
}

// finish runs the body of a begun task, drives any nested runner, and
// records a failure in rc exactly once.
func (r *Runner) finish(ctx context.Context, rc *RunContext, t *Task) error {
	start := time.Now()

	out, err := r.invoke(ctx, rc, t)
	if err == nil {
		if sub, ok := out.Runner(); ok {
			sub.depth = r.depth + 1
			if sub.opts.Renderer == nil {
				sub.opts.Renderer = r.opts.Renderer
			}
			err = sub.Run(ctx, rc)
		}
	}

	elapsed := time.Since(start)
	t.mu.Lock()
	t.duration = elapsed
	if err == nil {
		t.result = out.Result()
	} else {
		t.err = err
	}
	t.mu.Unlock()

	if err != nil {
		t.setState(StateFailed)
		tasksTotal.WithLabelValues(StateFailed.String()).Inc()

		// Failures inside a nested runner were recorded by that runner.
		var nested *RunError
		if !errors.As(err, &nested) {
			rc.RecordError(t.Title, err)
		}
		r.opts.Renderer.TaskFailed(t, r.depth, err)
		return fmt.Errorf("%s: %w", t.Title, err)
	}

	t.setState(StateCompleted)
	tasksTotal.WithLabelValues(StateCompleted.String()).Inc()
	r.opts.Renderer.TaskCompleted(t, r.depth, elapsed)
	return nil
}

func (r *Runner) invoke(ctx context.Context, rc *RunContext, t *Task) (out Outcome, err error) {
	if t.Run == nil {
		return Done(), nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Run(ctx, rc, t)
}

// Stats counts the runner's tasks by state.
func (r *Runner) Stats() map[State]int {
	stats := make(map[State]int)
	for _, t := range r.tasks {
		stats[t.State()]++
	}
	return stats
}

// RunError aggregates the failures of one runner.
type RunError struct {
	Errs []error
}

func (e *RunError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d tasks failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *RunError) Unwrap() []error { return e.Errs }

// Run is shorthand for NewRunner(tasks, opts).Run(ctx, rc).
func Run(ctx context.Context, rc *RunContext, tasks []*Task, opts Options) error {
	return NewRunner(tasks, opts).Run(ctx, rc)
}
