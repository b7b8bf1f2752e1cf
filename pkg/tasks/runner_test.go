package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
)

// eventLog records start/end events in a thread-safe way.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func TestRunner_SequentialOrdering(t *testing.T) {
	log := &eventLog{}
	var list []*Task
	for i := 1; i <= 5; i++ {
		list = append(list, New(fmt.Sprintf("unit %d", i), func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
			log.add("start " + t.Title)
			time.Sleep(2 * time.Millisecond)
			log.add("end " + t.Title)
			return Done(), nil
		}))
	}

	if err := NewRunner(list, Options{Concurrency: 1}).Run(context.Background(), NewRunContext()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var want []string
	for i := 1; i <= 5; i++ {
		want = append(want, fmt.Sprintf("start unit %d", i), fmt.Sprintf("end unit %d", i))
	}
	got := log.snapshot()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestRunner_FailureIsolation(t *testing.T) {
	rc := NewRunContext()
	boom := errors.New("boom")

	var list []*Task
	for i := 1; i <= 5; i++ {
		i := i
		list = append(list, New(fmt.Sprintf("unit %d", i), func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
			if i == 3 {
				return Done(), boom
			}
			rc.Append(KeyUpdated, i)
			return Done(), nil
		}))
	}

	err := NewRunner(list, Options{Concurrency: 1}).Run(context.Background(), rc)

	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("Run() error = %v, want *RunError", err)
	}
	if !errors.Is(err, boom) {
		t.Error("errors.Is(err, boom) = false, want true")
	}

	for i, task := range list {
		if !task.State().IsTerminal() {
			t.Errorf("unit %d state = %v, want terminal", i+1, task.State())
		}
	}
	if list[2].State() != StateFailed {
		t.Errorf("unit 3 state = %v, want failed", list[2].State())
	}

	errs := rc.Errors()
	if len(errs) != 1 {
		t.Fatalf("len(errors) = %d, want 1", len(errs))
	}
	if errs[0].Task != "unit 3" {
		t.Errorf("error attributed to %q, want %q", errs[0].Task, "unit 3")
	}

	if got := Items[int](rc, KeyUpdated); fmt.Sprint(got) != "[1 2 4 5]" {
		t.Errorf("updated = %v, want [1 2 4 5]", got)
	}
}

func TestRunner_SkipShortCircuit(t *testing.T) {
	rc := NewRunContext()
	var called atomic.Bool

	skipped := New("skip me", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		called.Store(true)
		return Done(), nil
	}).WithSkip(func(*RunContext) SkipDecision { return Skip("nothing to do") })

	silent := New("skip quietly", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		called.Store(true)
		return Done(), nil
	}).WithSkip(func(*RunContext) SkipDecision { return Skip("") })

	ran := New("run me", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		return Value(42), nil
	}).WithSkip(func(*RunContext) SkipDecision { return SkipIf(false, "never") })

	if err := NewRunner([]*Task{skipped, silent, ran}, Options{}).Run(context.Background(), rc); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if called.Load() {
		t.Error("skipped task body was invoked")
	}
	if skipped.State() != StateSkipped || silent.State() != StateSkipped {
		t.Errorf("states = %v, %v, want skipped", skipped.State(), silent.State())
	}
	if skipped.SkipReason() != "nothing to do" {
		t.Errorf("SkipReason() = %q", skipped.SkipReason())
	}
	if ran.State() != StateCompleted {
		t.Errorf("ran state = %v, want completed", ran.State())
	}
	if ran.Result() != 42 {
		t.Errorf("Result() = %v, want 42", ran.Result())
	}
	if rc.HasErrors() {
		t.Error("skips must not record errors")
	}
}

func TestRunner_ParallelBoundAndStartOrder(t *testing.T) {
	const (
		total       = 12
		concurrency = 3
	)
	var inFlight, peak atomic.Int32
	log := &eventLog{}

	var list []*Task
	for i := 0; i < total; i++ {
		list = append(list, New(fmt.Sprintf("%02d", i), func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return Done(), nil
		}))
	}

	r := NewRunner(list, Options{Concurrency: concurrency, Renderer: &startRecorder{log: log}})
	if err := r.Run(context.Background(), NewRunContext()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if p := peak.Load(); p > concurrency {
		t.Errorf("peak in-flight = %d, want <= %d", p, concurrency)
	}
	if p := peak.Load(); p < 2 {
		t.Errorf("peak in-flight = %d, expected tasks to overlap", p)
	}

	starts := log.snapshot()
	for i, title := range starts {
		if want := fmt.Sprintf("%02d", i); title != want {
			t.Fatalf("start order = %v, want list order", starts)
		}
	}
	if stats := r.Stats(); stats[StateCompleted] != total {
		t.Errorf("completed = %d, want %d", stats[StateCompleted], total)
	}
}

type startRecorder struct {
	SilentRenderer
	log *eventLog
}

func (s *startRecorder) TaskStarted(t *Task, _ int) { s.log.add(t.Title) }

type finishRecorder struct {
	SilentRenderer
	mu       sync.Mutex
	finished []error
}

func (f *finishRecorder) RunFinished(_ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, err)
}

func TestRunner_TopLevelReportsRunFinished(t *testing.T) {
	newList := func(fail bool) []*Task {
		child := New("child", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
			if fail {
				return Done(), errors.New("boom")
			}
			return Done(), nil
		})
		return []*Task{New("parent", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
			return Sub(NewRunner([]*Task{child}, Options{})), nil
		})}
	}

	tests := []struct {
		name     string
		topLevel bool
		fail     bool
		want     int
	}{
		{"top level", true, false, 1},
		{"top level with failure", true, true, 1},
		{"not top level", false, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &finishRecorder{}
			err := NewRunner(newList(tt.fail), Options{TopLevel: tt.topLevel, Renderer: rec}).Run(context.Background(), nil)

			if len(rec.finished) != tt.want {
				t.Fatalf("RunFinished calls = %d, want %d", len(rec.finished), tt.want)
			}
			if tt.want == 1 && (rec.finished[0] != nil) != tt.fail {
				t.Errorf("RunFinished error = %v, want failure %v", rec.finished[0], tt.fail)
			}
			if (err != nil) != tt.fail {
				t.Errorf("Run() error = %v, want failure %v", err, tt.fail)
			}
		})
	}
}

func TestRunner_ParallelFailureLetsSiblingsSettle(t *testing.T) {
	rc := NewRunContext()
	var list []*Task
	for i := 0; i < 6; i++ {
		i := i
		list = append(list, New(fmt.Sprintf("unit %d", i), func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
			time.Sleep(time.Duration(6-i) * time.Millisecond)
			if i == 1 {
				return Done(), errors.New("fail")
			}
			rc.Append(KeyUpdated, i)
			return Done(), nil
		}))
	}

	err := NewRunner(list, Options{Concurrency: 3}).Run(context.Background(), rc)
	if err == nil {
		t.Fatal("Run() error = nil, want failure")
	}
	for _, task := range list {
		if !task.State().IsTerminal() {
			t.Errorf("%s state = %v, want terminal", task.Title, task.State())
		}
	}
	if rc.Len(KeyUpdated) != 5 {
		t.Errorf("updated = %d, want 5", rc.Len(KeyUpdated))
	}
	if len(rc.Errors()) != 1 {
		t.Errorf("errors = %d, want 1", len(rc.Errors()))
	}
}

func TestRunner_ExitOnError(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
	}{
		{name: "sequential", concurrency: 1},
		{name: "parallel", concurrency: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := New("first", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
				return Done(), errors.New("discover failed")
			})
			second := New("second", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
				return Done(), nil
			})
			second.DependsOnPrior = true

			err := NewRunner([]*Task{first, second}, Options{Concurrency: tt.concurrency, ExitOnError: true}).
				Run(context.Background(), NewRunContext())
			if err == nil {
				t.Fatal("Run() error = nil")
			}
			if second.State() != StatePending {
				t.Errorf("second state = %v, want pending", second.State())
			}
		})
	}
}

func TestRunner_NestedRunner(t *testing.T) {
	rc := NewRunContext()
	var children []*Task

	parent := New("expand", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		for i := 0; i < 4; i++ {
			i := i
			children = append(children, New(fmt.Sprintf("child %d", i), func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
				if i == 2 {
					return Done(), toolerrors.Entity(toolerrors.Resource{ID: "c2"}, "edit", errors.New("rejected"))
				}
				rc.Append(KeyChanged, i)
				return Done(), nil
			}))
		}
		return Sub(NewRunner(children, Options{Concurrency: 1})), nil
	})
	after := New("report", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		return Done(), nil
	})

	err := NewRunner([]*Task{parent, after}, Options{TopLevel: true}).Run(context.Background(), rc)
	if err == nil {
		t.Fatal("Run() error = nil, want nested failure")
	}

	if parent.State() != StateFailed {
		t.Errorf("parent state = %v, want failed", parent.State())
	}
	if after.State() != StateCompleted {
		t.Errorf("later phase state = %v, want completed", after.State())
	}
	if len(children) != 4 {
		t.Fatalf("children = %d, want 4", len(children))
	}
	if rc.Len(KeyChanged) != 3 {
		t.Errorf("changed = %d, want 3", rc.Len(KeyChanged))
	}

	errs := rc.Errors()
	if len(errs) != 1 {
		t.Fatalf("len(errors) = %d, want exactly 1 (no double recording)", len(errs))
	}
	if errs[0].Resource == nil || errs[0].Resource.ID != "c2" {
		t.Errorf("resource = %+v, want id c2", errs[0].Resource)
	}
}

func TestRunner_RunTwice(t *testing.T) {
	r := NewRunner(nil, Options{})
	if err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := r.Run(context.Background(), nil); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRun", err)
	}
}

func TestRunner_PanicBecomesFailure(t *testing.T) {
	rc := NewRunContext()
	task := New("panics", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		panic("unexpected")
	})

	if err := NewRunner([]*Task{task}, Options{}).Run(context.Background(), rc); err == nil {
		t.Fatal("Run() error = nil, want panic converted to error")
	}
	if task.State() != StateFailed {
		t.Errorf("state = %v, want failed", task.State())
	}
	if len(rc.Errors()) != 1 {
		t.Errorf("errors = %d, want 1", len(rc.Errors()))
	}
}

func TestRunner_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := New("first", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		cancel()
		return Done(), nil
	})
	second := New("second", nil)

	err := NewRunner([]*Task{first, second}, Options{}).Run(ctx, NewRunContext())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if second.State() != StatePending {
		t.Errorf("second state = %v, want pending", second.State())
	}
}

func TestRunner_DependsOnPrior(t *testing.T) {
	log := &eventLog{}
	slow := New("slow", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		time.Sleep(20 * time.Millisecond)
		log.add("slow done")
		return Done(), nil
	})
	barrier := New("barrier", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		log.add("barrier start")
		return Done(), nil
	})
	barrier.DependsOnPrior = true

	if err := NewRunner([]*Task{slow, barrier}, Options{Concurrency: 4}).Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := log.snapshot(); fmt.Sprint(got) != "[slow done barrier start]" {
		t.Errorf("events = %v", got)
	}
}

func TestRunner_TaskOutput(t *testing.T) {
	task := New("talks", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		t.Output("processed %d of %d", 3, 10)
		return Done(), nil
	})
	if err := NewRunner([]*Task{task}, Options{}).Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := task.LastOutput(); got != "processed 3 of 10" {
		t.Errorf("LastOutput() = %q", got)
	}
}

// Ten discovered entities are edited one at a time with a 10ms throttle;
// entity 6 is rejected by the API.
func TestRunner_MutatePhaseWithThrottle(t *testing.T) {
	const delay = 10 * time.Millisecond
	rc := NewRunContext()

	type entity struct{ id, title string }
	var entities []entity
	for i := 1; i <= 10; i++ {
		entities = append(entities, entity{id: fmt.Sprint(i), title: fmt.Sprintf("Post %d", i)})
	}

	mutate := New("Updating posts", func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
		var children []*Task
		for _, e := range entities {
			e := e
			children = append(children, New(e.title, Throttled(func(ctx context.Context, rc *RunContext, t *Task) (Outcome, error) {
				if e.id == "6" {
					return Done(), toolerrors.Entity(toolerrors.Resource{ID: e.id, Title: e.title}, "edit", errors.New("422 validation failed"))
				}
				rc.Append(KeyUpdated, e.id)
				return Done(), nil
			}, delay)))
		}
		return Sub(NewRunner(children, Options{Concurrency: 1})), nil
	})

	start := time.Now()
	_ = NewRunner([]*Task{mutate}, Options{TopLevel: true}).Run(context.Background(), rc)
	elapsed := time.Since(start)

	if got := rc.Len(KeyUpdated); got != 9 {
		t.Errorf("updated = %d, want 9", got)
	}
	errs := rc.Errors()
	if len(errs) != 1 {
		t.Fatalf("errors = %d, want 1", len(errs))
	}
	if errs[0].Resource == nil || errs[0].Resource.ID != "6" {
		t.Errorf("error resource = %+v, want entity 6", errs[0].Resource)
	}
	if elapsed < 10*delay {
		t.Errorf("elapsed = %v, want >= %v (throttle after every call)", elapsed, 10*delay)
	}
}

func TestDelay(t *testing.T) {
	start := time.Now()
	if err := Delay(context.Background(), 15*time.Millisecond); err != nil {
		t.Fatalf("Delay() error = %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Delay() returned early")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Delay(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Delay(cancelled) error = %v, want context.Canceled", err)
	}
	if err := Delay(context.Background(), 0); err != nil {
		t.Errorf("Delay(0) error = %v", err)
	}
}
