package tasks

import (
	"time"

	"github.com/rs/zerolog"
)

// Renderer reports task lifecycle events. depth is 0 for tasks of the
// outermost runner and grows by one per nested runner. RunFinished is only
// sent by runners with Options.TopLevel set.
type Renderer interface {
	TaskStarted(t *Task, depth int)
	TaskOutput(t *Task, depth int, msg string)
	TaskSkipped(t *Task, depth int, reason string)
	TaskCompleted(t *Task, depth int, d time.Duration)
	TaskFailed(t *Task, depth int, err error)
	RunFinished(d time.Duration, err error)
}

// SilentRenderer discards all events.
type SilentRenderer struct{}

func (SilentRenderer) TaskStarted(*Task, int)                  {}
func (SilentRenderer) TaskOutput(*Task, int, string)           {}
func (SilentRenderer) TaskSkipped(*Task, int, string)          {}
func (SilentRenderer) TaskCompleted(*Task, int, time.Duration) {}
func (SilentRenderer) TaskFailed(*Task, int, error)            {}
func (SilentRenderer) RunFinished(time.Duration, error)        {}

// LogRenderer writes task events to a zerolog logger. Top-level tasks log
// at info, nested tasks at debug, so per-entity noise only shows in
// verbose runs. Failures always log at warn.
type LogRenderer struct {
	logger zerolog.Logger
}

// NewLogRenderer creates a LogRenderer.
func NewLogRenderer(logger zerolog.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) level(depth int) zerolog.Level {
	if depth == 0 {
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}

func (r *LogRenderer) TaskStarted(t *Task, depth int) {
	r.logger.WithLevel(r.level(depth)).
		Int("depth", depth).
		Str("task", t.Title).
		Msg("Task started")
}

func (r *LogRenderer) TaskOutput(t *Task, depth int, msg string) {
	r.logger.WithLevel(r.level(depth)).
		Int("depth", depth).
		Str("task", t.Title).
		Msg(msg)
}

func (r *LogRenderer) TaskSkipped(t *Task, depth int, reason string) {
	ev := r.logger.WithLevel(r.level(depth)).
		Int("depth", depth).
		Str("task", t.Title)
	if reason != "" {
		ev = ev.Str("reason", reason)
	}
	ev.Msg("Task skipped")
}

func (r *LogRenderer) TaskCompleted(t *Task, depth int, d time.Duration) {
	r.logger.WithLevel(r.level(depth)).
		Int("depth", depth).
		Str("task", t.Title).
		Dur("duration", d).
		Msg("Task completed")
}

func (r *LogRenderer) TaskFailed(t *Task, depth int, err error) {
	r.logger.Warn().
		Int("depth", depth).
		Str("task", t.Title).
		Err(err).
		Msg("Task failed")
}

func (r *LogRenderer) RunFinished(d time.Duration, err error) {
	if err != nil {
		r.logger.Warn().Dur("duration", d).Err(err).Msg("Run finished with errors")
		return
	}
	r.logger.Info().Dur("duration", d).Msg("Run finished")
}
