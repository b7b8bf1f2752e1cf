package commands

import (
	"context"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
	"github.com/Sternrassler/ghost-admin-tools/pkg/query"
	"github.com/Sternrassler/ghost-admin-tools/pkg/tasks"
)

// Post visibility values accepted by change-visibility.
var visibilities = []string{"public", "members", "paid"}

// postArgs are the selection flags shared by the post commands.
type postArgs struct {
	filter string
	tag    string
	author string
	kind   string
}

// bind registers the selection flags. withTag is false for commands that
// use --tag for something else.
func (a *postArgs) bind(cmd *cobra.Command, withTag bool) {
	cmd.Flags().StringVar(&a.filter, "filter", "", "NQL filter, e.g. status:draft")
	if withTag {
		cmd.Flags().StringVar(&a.tag, "tag", "", "only posts with this tag slug")
	}
	cmd.Flags().StringVar(&a.author, "author", "", "only posts by this author slug")
	cmd.Flags().StringVar(&a.kind, "type", string(query.Posts), "posts or pages")
}

func (a *postArgs) hasCriteria() bool {
	return joinFilter(a.filter, a.tag, a.author) != ""
}

// query builds the browse query for the selected posts or pages.
func (a *postArgs) query(include string) (query.Query, error) {
	rt, err := postType(a.kind)
	if err != nil {
		return query.Query{}, err
	}
	var tag, author string
	if a.tag != "" {
		tag = "tag:" + a.tag
	}
	if a.author != "" {
		author = "author:" + a.author
	}
	q, err := query.Build(rt, query.Args{
		Filter:  joinFilter(a.filter, tag, author),
		Include: include,
	})
	if err != nil {
		return query.Query{}, toolerrors.WrapUsage(err, "build query")
	}
	return q, nil
}

func postType(s string) (query.ResourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "posts", "post":
		return query.Posts, nil
	case "pages", "page":
		return query.Pages, nil
	default:
		return "", toolerrors.Usage("invalid --type %q: expected posts or pages", s)
	}
}

func newDeletePostsCmd(opts *globalOptions) *cobra.Command {
	var (
		sel postArgs
		all bool
	)

	cmd := &cobra.Command{
		Use:   "delete-posts [URL] [ADMIN_KEY]",
		Short: "Delete the posts or pages matching a filter",
		Args:  apiArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !sel.hasCriteria() && !all {
				return toolerrors.Usage("no --filter, --tag or --author given; pass --all to delete every %s", sel.kind)
			}
			q, err := sel.query("")
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
				p.mutate("Deleting "+string(q.Resource), q.Resource, "delete", tasks.KeyDeleted,
					func(ctx context.Context, e client.Entity) error {
						return p.api.Delete(ctx, q.Resource, e.ID())
					}),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: string(q.Resource),
				keys: []string{tasks.KeyDeleted},
			})
		},
	}

	sel.bind(cmd, true)
	cmd.Flags().BoolVar(&all, "all", false, "allow running without any selection flag")
	return cmd
}

func newAddTagCmd(opts *globalOptions) *cobra.Command {
	var (
		sel postArgs
		tag string
	)

	cmd := &cobra.Command{
		Use:   "add-tag [URL] [ADMIN_KEY]",
		Short: "Add a tag to every matching post or page",
		Args:  apiArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(tag)
			if name == "" {
				return toolerrors.Usage("--tag is required")
			}
			q, err := sel.query("tags")
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
				p.filter("Skipping already tagged", func(e client.Entity) bool {
					return !relationHas(e, "tags", name)
				}),
				p.mutate("Tagging "+string(q.Resource), q.Resource, "add tag", tasks.KeyUpdated,
					func(ctx context.Context, e client.Entity) error {
						_, err := p.api.Edit(ctx, q.Resource, e.ID(), client.Entity{
							"tags":       withRelation(e, "tags", name),
							"updated_at": e["updated_at"],
						})
						return err
					}),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: string(q.Resource),
				keys: []string{tasks.KeyUpdated, tasks.KeySkipped},
			})
		},
	}

	sel.bind(cmd, false)
	cmd.Flags().StringVar(&tag, "tag", "", "name of the tag to add (created if missing)")
	return cmd
}

func newChangeVisibilityCmd(opts *globalOptions) *cobra.Command {
	var (
		sel        postArgs
		visibility string
	)

	cmd := &cobra.Command{
		Use:   "change-visibility [URL] [ADMIN_KEY]",
		Short: "Set the visibility of every matching post or page",
		Args:  apiArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := strings.ToLower(strings.TrimSpace(visibility))
			if !slices.Contains(visibilities, v) {
				return toolerrors.Usage("invalid --visibility %q: expected one of %s", visibility, strings.Join(visibilities, ", "))
			}
			q, err := sel.query("")
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
				p.filter("Skipping unchanged", func(e client.Entity) bool {
					return e.String("visibility") != v
				}),
				p.mutate("Updating "+string(q.Resource), q.Resource, "change visibility", tasks.KeyUpdated,
					func(ctx context.Context, e client.Entity) error {
						_, err := p.api.Edit(ctx, q.Resource, e.ID(), client.Entity{
							"visibility": v,
							"updated_at": e["updated_at"],
						})
						return err
					}),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: string(q.Resource),
				keys: []string{tasks.KeyUpdated, tasks.KeySkipped},
			})
		},
	}

	sel.bind(cmd, true)
	cmd.Flags().StringVar(&visibility, "visibility", "", "public, members or paid")
	return cmd
}
