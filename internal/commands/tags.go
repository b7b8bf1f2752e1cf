package commands

import (
	"context"

	"github.com/spf13/cobra"

	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
	"github.com/Sternrassler/ghost-admin-tools/pkg/tasks"
)

func newDeleteUnusedTagsCmd(opts *globalOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "delete-unused-tags [URL] [ADMIN_KEY]",
		Short: "Delete tags that are not used by any post or page",
		Args:  apiArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.Build(query.Tags, query.Args{Filter: filter})
			if err != nil {
				return toolerrors.WrapUsage(err, "build query")
			}

			p, closeFn, err := opts.dial(args)
			if err != nil {
				return err
			}
			defer closeFn()

			list := []*tasks.Task{
				p.connect(),
				p.discover(q),
				p.filter("Selecting unused tags", unusedTag),
				p.mutate("Deleting tags", query.Tags, "delete", tasks.KeyDeleted,
					func(ctx context.Context, e client.Entity) error {
						return p.api.Delete(ctx, query.Tags, e.ID())
					}),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: "tags",
				keys: []string{tasks.KeyDeleted, tasks.KeySkipped},
			})
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "NQL filter applied to tags, e.g. visibility:internal")
	return cmd
}

// unusedTag keeps tags whose post count was included and is zero. Tags
// without a count are never deleted.
func unusedTag(e client.Entity) bool {
	n, ok := e.Count("posts")
	return ok && n == 0
}
