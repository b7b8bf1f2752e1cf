package commands

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
	"github.com/Sternrassler/ghost-admin-tools/pkg/tasks"
)

// memberQuery builds the members browse query from --filter and a label slug.
func memberQuery(filter, label string) (query.Query, error) {
	var labelTerm string
	if label != "" {
		labelTerm = "label:" + label
	}
	q, err := query.Build(query.Members, query.Args{Filter: joinFilter(filter, labelTerm)})
	if err != nil {
		return query.Query{}, toolerrors.WrapUsage(err, "build query")
	}
	return q, nil
}

func newDeleteMembersCmd(opts *globalOptions) *cobra.Command {
	var (
		filter string
		label  string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "delete-members [URL] [ADMIN_KEY]",
		Short: "Delete the members matching a filter or label",
		Args:  apiArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if joinFilter(filter, label) == "" && !all {
				return toolerrors.Usage("no --filter or --label given; pass --all to delete every member")
			}
			q, err := memberQuery(filter, label)
			if err != nil {
				return err
			}

			p, closeFn, err := opts.dial(args)
			if err != nil {
				return err
			}
			defer closeFn()

			list := []*tasks.Task{
				p.connect(),
				p.discover(q),
				p.mutate("Deleting members", query.Members, "delete", tasks.KeyDeleted,
					func(ctx context.Context, e client.Entity) error {
						return p.api.Delete(ctx, query.Members, e.ID())
					}),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: "members",
				keys: []string{tasks.KeyDeleted},
			})
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "NQL filter, e.g. status:free")
	cmd.Flags().StringVar(&label, "label", "", "only members with this label slug")
	cmd.Flags().BoolVar(&all, "all", false, "allow running without --filter or --label")
	return cmd
}

func newAddMemberLabelCmd(opts *globalOptions) *cobra.Command {
	var (
		filter string
		label  string
	)

	cmd := &cobra.Command{
		Use:   "add-member-label [URL] [ADMIN_KEY]",
		Short: "Add a label to every matching member",
		Args:  apiArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(label)
			if name == "" {
				return toolerrors.Usage("--label is required")
			}
			q, err := memberQuery(filter, "")
			if err != nil {
				return err
			}

			p, closeFn, err := opts.dial(args)
			if err != nil {
				return err
			}
			defer closeFn()

			list := []*tasks.Task{
				p.connect(),
				p.discover(q),
				p.filter("Skipping already labelled", func(e client.Entity) bool {
					return !relationHas(e, "labels", name)
				}),
				p.mutate("Labelling members", query.Members, "add label", tasks.KeyUpdated,
					func(ctx context.Context, e client.Entity) error {
						_, err := p.api.Edit(ctx, query.Members, e.ID(), client.Entity{
							"labels": withRelation(e, "labels", name),
						})
						return err
					}),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: "members",
				keys: []string{tasks.KeyUpdated, tasks.KeySkipped},
			})
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "NQL filter, e.g. status:paid")
	cmd.Flags().StringVar(&label, "label", "", "name of the label to add (created if missing)")
	return cmd
}
