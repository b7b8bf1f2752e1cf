// Command ghost-tools runs bulk maintenance against a Ghost site's Admin API
// and prepares local Ghost export files.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/ghost-admin-tools/internal/commands"
	toolerrors "github.com/Sternrassler/ghost-admin-tools/internal/errors"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return toolerrors.ExitCode(commands.Execute(ctx, args, stdout, stderr))
}
