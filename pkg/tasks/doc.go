// Package tasks sequences and parallelizes named units of work.
//
// A command is a linear list of Tasks (connect, discover, filter, mutate,
// report) run by a top-level Runner over a shared RunContext. A task body
// may return Sub(runner) to expand into more work discovered at run time,
// typically one child task per entity:
//
//	mutate := tasks.New("Deleting posts", func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
//		var children []*tasks.Task
//		for _, post := range posts {
//			children = append(children, tasks.New(post.Title, tasks.Throttled(deletePost(post), delay)))
//		}
//		return tasks.Sub(tasks.NewRunner(children, tasks.Options{Concurrency: 1})), nil
//	})
//
// Failure handling:
//   - A failing task is marked failed and recorded once in RunContext.Errors
//   - Started siblings always settle; the runner reports a *RunError after
//   - ExitOnError stops a runner from starting further tasks (used at the
//     top level so a failed discovery does not lead into a mutate phase)
//   - Nested runners choose their own concurrency; nothing is inherited
//     except the renderer
package tasks
