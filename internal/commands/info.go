package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
	"github.com/Sternrassler/ghost-admin-tools/pkg/pagination"
	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
	"github.com/Sternrassler/ghost-admin-tools/pkg/tasks"
)

func newInfoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info [URL] [ADMIN_KEY]",
		Short: "Show the site and how many records each collection holds",
		Args:  apiArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeFn, err := opts.dial(args)
			if err != nil {
				return err
			}
			defer closeFn()

			list := []*tasks.Task{
				p.connect(),
				p.count(query.AllResourceTypes),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun:   "collections",
				keys:   []string{keyCounted},
				detail: printCounts,
			})
		},
	}
}

func countKey(rt query.ResourceType) string {
	return "count:" + string(rt)
}

// count runs one info-only request per resource type, in parallel up to
// the session concurrency.
func (p *pipeline) count(types []query.ResourceType) *tasks.Task {
	return tasks.New("Counting records", func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
		children := make([]*tasks.Task, 0, len(types))
		for _, rt := range types {
			children = append(children, tasks.New("Counting "+string(rt), func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
				q, err := query.Build(rt, query.Args{})
				if err != nil {
					return tasks.Done(), err
				}
				n, err := pagination.Count(ctx, p.api.Resource(rt), q)
				if err != nil {
					return tasks.Done(), toolerrors.Discovery(string(rt), err)
				}
				rc.Set(countKey(rt), n)
				rc.Append(keyCounted, rt)
				t.Output("%d %s", n, rt)
				return tasks.Value(n), nil
			}))
		}
		return tasks.Sub(tasks.NewRunner(children, tasks.Options{Concurrency: p.session.Concurrency})), nil
	})
}

// printCounts writes the site line and a two-column table of counts in
// AllResourceTypes order.
func printCounts(w io.Writer, rc *tasks.RunContext) {
	if site, ok := tasks.Get[client.Entity](rc, keySite); ok {
		fmt.Fprintf(w, "%s (%s, Ghost %s)\n", site.String("title"), site.String("url"), site.String("version"))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, rt := range query.AllResourceTypes {
		if n, ok := tasks.Get[int](rc, countKey(rt)); ok {
			fmt.Fprintf(tw, "%s\t%d\n", titleCaser.String(string(rt)), n)
		}
	}
	tw.Flush()
}
