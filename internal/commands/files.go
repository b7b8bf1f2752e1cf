package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/ghost-admin-tools/internal/archive"
	"github.com/Sternrassler/ghost-admin-tools/internal/csvdiff"
	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/internal/export"
	"github.com/Sternrassler/ghost-admin-tools/pkg/tasks"
)

// Defaults of the local-file commands.
const (
	DefaultMaxPosts     = 500
	DefaultMaxZipSize   = "50MB"
	DefaultCombinedName = "combined.json"
	DefaultDiffName     = "members-added.csv"
)

func newJSONSplitCmd(opts *globalOptions) *cobra.Command {
	var (
		maxPosts int
		outDir   string
	)

	cmd := &cobra.Command{
		Use:   "json-split FILE",
		Short: "Split a Ghost export into files of at most --max-posts posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxPosts <= 0 {
				return toolerrors.Usage("--max-posts must be positive, got %d", maxPosts)
			}
			src := args[0]
			dir := outDir
			if dir == "" {
				dir = filepath.Dir(src)
			}
			base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))

			p := opts.local()
			var chunks []*export.Export

			list := []*tasks.Task{
				p.readExport(src),
				tasks.New("Splitting export", func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
					exp, _ := tasks.Get[*export.Export](rc, exportKey(0))
					var err error
					chunks, err = export.Split(exp, maxPosts)
					if err != nil {
						return tasks.Done(), err
					}
					t.Output("%d posts into %d files", exp.Count(export.TablePosts), len(chunks))
					return tasks.Value(len(chunks)), nil
				}),
				p.writeAll("Writing files", func() []*tasks.Task {
					children := make([]*tasks.Task, len(chunks))
					for i, chunk := range chunks {
						path := filepath.Join(dir, fmt.Sprintf("%s-%d.json", base, i+1))
						children[i] = p.writeTask(path, func() error { return export.Write(path, chunk) })
					}
					return children
				}),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: "files",
				keys: []string{keyWritten},
			})
		},
	}

	cmd.Flags().IntVar(&maxPosts, "max-posts", DefaultMaxPosts, "posts per output file")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default: next to FILE)")
	return cmd
}

func newJSONCombineCmd(opts *globalOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "json-combine FILE...",
		Short: "Merge several Ghost exports into one, dropping duplicate rows",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(out) == "" {
				return toolerrors.Usage("--out is required")
			}

			p := opts.local()
			var combined *export.Export

			reads := make([]*tasks.Task, len(args))
			for i, path := range args {
				reads[i] = p.readExportAt(i, path)
			}

			list := []*tasks.Task{
				tasks.New("Reading exports", func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
					return tasks.Sub(tasks.NewRunner(reads, tasks.Options{Concurrency: p.session.Concurrency})), nil
				}),
				tasks.New("Combining exports", func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
					exports := make([]*export.Export, len(args))
					for i := range args {
						exports[i], _ = tasks.Get[*export.Export](rc, exportKey(i))
					}
					combined = export.Combine(exports...)
					t.Output("%d posts, %d tags", combined.Count(export.TablePosts), combined.Count(export.TableTags))
					return tasks.Value(combined.Count(export.TablePosts)), nil
				}),
				p.writeTask(out, func() error { return export.Write(out, combined) }),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: "files",
				keys: []string{keyRead, keyWritten},
			})
		},
	}

	cmd.Flags().StringVar(&out, "out", DefaultCombinedName, "output file")
	return cmd
}

func newZipCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		maxSize string
		outDir  string
		prefix  string
	)

	cmd := &cobra.Command{
		Use:   "zip-create DIR",
		Short: "Pack a directory into zip files below --max-size each",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := units.FromHumanSize(maxSize)
			if err != nil || limit <= 0 {
				return toolerrors.Usage("invalid --max-size %q: expected a size like 50MB", maxSize)
			}
			root := args[0]
			name := prefix
			if name == "" {
				name = filepath.Base(filepath.Clean(root))
			}

			p := opts.local()
			var chunks []archive.Chunk

			list := []*tasks.Task{
				tasks.New("Scanning "+root, func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
					files, err := archive.Scan(root)
					if err != nil {
						return tasks.Done(), toolerrors.FileIO(root, err)
					}
					chunks, err = archive.Plan(files, limit)
					if err != nil {
						return tasks.Done(), err
					}
					for i, c := range chunks {
						if c.Oversized(limit) {
							p.logger.Warn().
								Str("file", c.Files[0].Name).
								Str("size", units.HumanSize(float64(c.Size))).
								Msg("File exceeds --max-size, archived alone")
						}
						t.Output("%s: %d files, %s", archive.Name(name, i), len(c.Files), units.HumanSize(float64(c.Size)))
					}
					return tasks.Value(len(chunks)), nil
				}),
				p.writeAll("Writing archives", func() []*tasks.Task {
					children := make([]*tasks.Task, len(chunks))
					for i, chunk := range chunks {
						path := filepath.Join(outDir, archive.Name(name, i))
						children[i] = p.writeTask(path, func() error { return archive.Write(path, chunk) })
					}
					return children
				}),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: "archives",
				keys: []string{keyWritten},
			})
		},
	}

	cmd.Flags().StringVar(&maxSize, "max-size", DefaultMaxZipSize, "largest uncompressed size per archive")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.Flags().StringVar(&prefix, "name", "", "archive name prefix (default: DIR's name)")
	return cmd
}

func newMembersDiffCmd(opts *globalOptions) *cobra.Command {
	var (
		out string
		key string
	)

	cmd := &cobra.Command{
		Use:   "members-diff OLD.csv NEW.csv",
		Short: "Write the members present in NEW but not in OLD",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(key) == "" {
				return toolerrors.Usage("--key must name a column")
			}
			oldPath, newPath := args[0], args[1]

			p := opts.local()
			var (
				before, after *csvdiff.Table
				result        *csvdiff.Result
			)

			readCSV := func(path string, dst **csvdiff.Table) *tasks.Task {
				return tasks.New("Reading "+path, func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
					table, err := csvdiff.Read(path)
					if err != nil {
						return tasks.Done(), toolerrors.FileIO(path, err)
					}
					*dst = table
					t.Output("%d rows", len(table.Rows))
					return tasks.Value(len(table.Rows)), nil
				})
			}

			list := []*tasks.Task{
				readCSV(oldPath, &before),
				readCSV(newPath, &after),
				tasks.New("Comparing members", func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
					var err error
					result, err = csvdiff.Diff(before, after, key)
					if err != nil {
						return tasks.Done(), toolerrors.WrapUsage(err, "compare")
					}
					rc.Set(tasks.KeyAdded, len(result.Added))
					rc.Set(keyRemoved, len(result.Removed))
					rc.Set(keyUnchanged, result.Unchanged)
					return tasks.Value(len(result.Added)), nil
				}),
				p.writeTask(out, func() error { return csvdiff.Write(out, result.Header, result.Added) }),
			}
			return p.run(cmd.Context(), cmd.OutOrStdout(), list, summary{
				noun: "members",
				keys: []string{tasks.KeyAdded, keyRemoved, keyUnchanged},
			})
		},
	}

	cmd.Flags().StringVar(&out, "out", DefaultDiffName, "output CSV of added members")
	cmd.Flags().StringVar(&key, "key", csvdiff.DefaultKey, "column identifying a member")
	return cmd
}

func exportKey(i int) string {
	return fmt.Sprintf("export:%d", i)
}

// readExport loads the export at path as export 0.
func (p *pipeline) readExport(path string) *tasks.Task {
	return p.readExportAt(0, path)
}

// readExportAt loads and validates the export at path and stores it under
// exportKey(i).
func (p *pipeline) readExportAt(i int, path string) *tasks.Task {
	return tasks.New("Reading "+path, func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
		exp, err := export.Read(path)
		if err != nil {
			return tasks.Done(), toolerrors.FileIO(path, err)
		}
		rc.Set(exportKey(i), exp)
		rc.Append(keyRead, path)
		t.Output("%d posts, %d tables", exp.Count(export.TablePosts), len(exp.Tables()))
		return tasks.Value(exp), nil
	})
}

// writeTask runs write and records path as written.
func (p *pipeline) writeTask(path string, write func() error) *tasks.Task {
	return tasks.New("Writing "+path, func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
		if err := write(); err != nil {
			return tasks.Done(), toolerrors.FileIO(path, err)
		}
		rc.Append(keyWritten, path)
		return tasks.Value(path), nil
	})
}

// writeAll expands into the tasks build returns once the earlier steps
// have run, writing up to the session concurrency files at a time.
func (p *pipeline) writeAll(title string, build func() []*tasks.Task) *tasks.Task {
	return tasks.New(title, func(ctx context.Context, rc *tasks.RunContext, t *tasks.Task) (tasks.Outcome, error) {
		children := build()
		t.Output("%d files", len(children))
		return tasks.Sub(tasks.NewRunner(children, tasks.Options{Concurrency: p.session.Concurrency})), nil
	})
}
