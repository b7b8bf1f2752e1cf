package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/ghost-admin-tools/internal/config"
	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
	"github.com/Sternrassler/ghost-admin-tools/pkg/pagination"
	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
	"github.com/Sternrassler/ghost-admin-tools/pkg/tasks"
)

// RunContext keys shared by the pipeline steps.
const (
	keySite       = "site"
	keyDiscovered = "discovered"
	keySelected   = "selected"
	keyCounted    = "counted"
	keyWritten    = "written"
	keyRead       = "read"
	keyRemoved    = "removed"
	keyUnchanged  = "unchanged"
)

// API is the part of the Admin API client the commands use.
type API interface {
	SiteInfo(ctx context.Context) (client.Entity, error)
	Resource(rt query.ResourceType) pagination.PageFetcher[client.Entity]
	Edit(ctx context.Context, rt query.ResourceType, id string, e client.Entity) (client.Entity, error)
	Delete(ctx context.Context, rt query.ResourceType, id string) error
}

// mutation changes one selected entity.
type mutation func(ctx context.Context, e client.Entity) error

// pipeline builds and runs the task list of one command invocation.
type pipeline struct {
	api     API
	session config.Session
	logger  zerolog.Logger
}

func newPipeline(api API, s config.Session, logger zerolog.Logger) *pipeline {
	return &pipeline{api: api, session: s, logger: logger}
}

// execute runs list on a top-level runner that stops after the first
// failed step.
func (p *pipeline) execute(ctx context.Context, list []*tasks.Task) (*tasks.RunContext, error) {
	rc := tasks.NewRunContext()
	err := tasks.Run(ctx, rc, list, tasks.Options{
		Concurrency: 1,
		ExitOnError: true,
		TopLevel:    true,
		Renderer:    tasks.NewLogRenderer(p.logger),
	})
	return rc, err
}

// run executes list and prints the summary to w.
func (p *pipeline) run(ctx context.Context, w io.Writer, list []*tasks.Task, s summary) error {
	rc, err := p.execute(ctx, list)
	return s.report(w, rc, err)
}

// connect checks credentials by reading the site record.
func (p *pipeline) connect() *tasks.Task {
	return tasks.New("Connecting to Ghost", func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
		site, err := p.api.SiteInfo(ctx)
		if err != nil {
			return tasks.Done(), fmt.Errorf("connect: %w", err)
		}
		rc.Set(keySite, site)
		t.Output("Connected to %q (Ghost %s)", site.String("title"), site.String("version"))
		return tasks.Value(site), nil
	})
}

// discover walks q's collection to the end and stores the entities as both
// discovered and selected.
func (p *pipeline) discover(q query.Query) *tasks.Task {
	return tasks.New("Fetching "+string(q.Resource), func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
		cfg := pagination.DefaultConfig()
		cfg.Progress = pagination.NewLogProgress(p.logger, string(q.Resource))

		items, err := pagination.New(p.api.Resource(q.Resource), cfg).Discover(ctx, q)
		if err != nil {
			return tasks.Done(), toolerrors.Discovery(string(q.Resource), err)
		}

		rc.Set(keyDiscovered, items)
		rc.Set(keySelected, items)
		t.Output("Found %d %s", len(items), q.Resource)
		return tasks.Value(len(items)), nil
	})
}

// filter narrows the selection to the entities keep accepts. Rejected
// entities go to the skipped list.
func (p *pipeline) filter(title string, keep func(client.Entity) bool) *tasks.Task {
	return tasks.New(title, func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
		items, _ := tasks.Get[[]client.Entity](rc, keyDiscovered)
		selected := make([]client.Entity, 0, len(items))
		for _, e := range items {
			if keep(e) {
				selected = append(selected, e)
			} else {
				rc.Append(tasks.KeySkipped, e)
			}
		}
		rc.Set(keySelected, selected)
		t.Output("Selected %d of %d", len(selected), len(items))
		return tasks.Value(len(selected)), nil
	}).WithSkip(whenNone(keyDiscovered, "nothing found"))
}

// mutate expands into one throttled child task per selected entity, run
// strictly in order. A failed entity is recorded and its siblings go on;
// successful ones are appended to key.
func (p *pipeline) mutate(title string, rt query.ResourceType, action, key string, fn mutation) *tasks.Task {
	return tasks.New(title, func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
		selected, _ := tasks.Get[[]client.Entity](rc, keySelected)

		// The delay separates consecutive writes; none follows the last one.
		children := make([]*tasks.Task, 0, len(selected))
		for i, e := range selected {
			res := e.Describe(rt)
			body := func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
				if err := fn(ctx, e); err != nil {
					return tasks.Done(), toolerrors.Entity(res, action, err)
				}
				rc.Append(key, e)
				return tasks.Done(), nil
			}
			if i < len(selected)-1 {
				body = tasks.Throttled(body, p.session.Delay)
			}
			children = append(children, tasks.New(res.String(), body))
		}

		t.Output("Queued %d %s", len(children), rt)
		return tasks.Sub(tasks.NewRunner(children, tasks.Options{Concurrency: 1})), nil
	}).WithSkip(whenNone(keySelected, "nothing to do"))
}

// whenNone skips a task when the entity list under key is empty.
func whenNone(key, reason string) tasks.SkipFunc {
	return func(rc *tasks.RunContext) tasks.SkipDecision {
		items, _ := tasks.Get[[]client.Entity](rc, key)
		return tasks.SkipIf(len(items) == 0, reason)
	}
}

// joinFilter combines NQL terms with "+" (and), dropping empty ones.
func joinFilter(terms ...string) string {
	var parts []string
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			parts = append(parts, term)
		}
	}
	return strings.Join(parts, "+")
}

// relationHas reports whether the nested relation of e contains an entry
// whose name or slug matches name.
func relationHas(e client.Entity, relation, name string) bool {
	items, _ := e[relation].([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		n, _ := m["name"].(string)
		slug, _ := m["slug"].(string)
		if strings.EqualFold(n, name) || strings.EqualFold(slug, name) {
			return true
		}
	}
	return false
}

// withRelation returns the nested relation of e with {"name": name} appended.
func withRelation(e client.Entity, relation, name string) []any {
	items, _ := e[relation].([]any)
	out := make([]any, 0, len(items)+1)
	out = append(out, items...)
	return append(out, map[string]any{"name": name})
}
