// Package commands wires the ghost-tools subcommands to the task engine.
//
// Every API command runs the same linear pipeline on a top-level
// tasks.Runner: connect, discover, filter, mutate. The summary is printed
// after the runner resolves, whether or not it failed. Local-file commands
// run their read, transform and write steps through the same runner.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/ghost-admin-tools/internal/config"
	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
	"github.com/Sternrassler/ghost-admin-tools/pkg/client"
	"github.com/Sternrassler/ghost-admin-tools/pkg/logging"
	"github.com/Sternrassler/ghost-admin-tools/pkg/metrics"
)

// ErrRunFailed is returned when a run finished with recorded errors. The
// errors themselves have already been listed in the command output.
var ErrRunFailed = errors.New("run finished with errors")

// globalOptions holds the persistent flags and the session resolved from
// them before any subcommand runs.
type globalOptions struct {
	configPath string
	flags      config.Session

	session config.Session
	logger  zerolog.Logger
}

// NewRootCmd builds the ghost-tools command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalOptions{logger: zerolog.Nop()})
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "ghost-tools",
		Short: "Batch maintenance commands for Ghost sites",
		Long: `ghost-tools runs bulk maintenance against the Ghost Admin API and
prepares local Ghost export files.

API commands take the site URL and an Admin API key, either as flags,
from a --config file or as the two positional arguments.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	opts.bindFlags(root)

	root.AddCommand(
		newInfoCmd(opts),
		newDeletePostsCmd(opts),
		newDeleteUnusedTagsCmd(opts),
		newAddTagCmd(opts),
		newChangeVisibilityCmd(opts),
		newDeleteMembersCmd(opts),
		newAddMemberLabelCmd(opts),
		newJSONSplitCmd(opts),
		newJSONCombineCmd(opts),
		newZipCreateCmd(opts),
		newMembersDiffCmd(opts),
	)

	return root
}

func (o *globalOptions) bindFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVar(&o.configPath, config.FlagConfig, "", "YAML session file")
	fs.StringVar(&o.flags.URL, config.FlagURL, "", "Ghost site URL")
	fs.StringVar(&o.flags.AdminKey, config.FlagAdminKey, "", "Admin API key (<id>:<secret>)")
	fs.StringVar(&o.flags.APIVersion, config.FlagAPIVersion, client.DefaultAPIVersion, "Accept-Version header")
	fs.DurationVar(&o.flags.Delay, config.FlagDelay, config.DefaultDelay, "pause after every write call")
	fs.IntVar(&o.flags.Concurrency, config.FlagConcurrency, config.DefaultConcurrency, "parallel requests in read-only phases")
	fs.DurationVar(&o.flags.Timeout, config.FlagTimeout, config.DefaultTimeout, "timeout of a single HTTP attempt")
	fs.BoolVarP(&o.flags.Verbose, config.FlagVerbose, "v", false, "log per-page and per-entity detail")
	fs.BoolVar(&o.flags.LogJSON, config.FlagLogJSON, false, "log JSON lines instead of console output")
	fs.StringVar(&o.flags.RedisURL, config.FlagRedisURL, "", "redis URL for the browse cache and shared rate limit state")
	fs.DurationVar(&o.flags.CacheTTL, config.FlagCacheTTL, 0, "cache browse responses for this long (requires --redis-url)")
	fs.StringVar(&o.flags.MetricsFile, config.FlagMetricsFile, "", "write a Prometheus textfile snapshot here at exit")
}

// resolve builds the session from file and flags and sets up logging.
func (o *globalOptions) resolve(cmd *cobra.Command) error {
	s, err := config.Resolve(o.configPath, o.flags, cmd.Flags().Changed)
	if err != nil {
		return toolerrors.WrapUsage(err, "load session")
	}
	o.session = s

	cfg := logging.ForCLI(s.Verbose, s.LogJSON)
	cfg.Output = cmd.ErrOrStderr()
	logging.Setup(cfg)
	o.logger = logging.NewLogger("commands").With().Str("command", cmd.Name()).Logger()
	return nil
}

// Execute runs the command line args, writes the metrics snapshot if one
// was requested and prints the final error, if any, to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &globalOptions{logger: zerolog.Nop()}
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)

	if mErr := metrics.WriteTextfile(opts.session.MetricsFile); mErr != nil {
		opts.logger.Warn().Err(mErr).Str("path", opts.session.MetricsFile).Msg("Metrics snapshot failed")
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return err
}
