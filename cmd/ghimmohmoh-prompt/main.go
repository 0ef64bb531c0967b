// Command ghimmohmoh-prompt renders the system prompt once and prints it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghimmohmoh/ghimmohmoh/internal/bootstrap"
	"github.com/ghimmohmoh/ghimmohmoh/internal/config"
	"github.com/ghimmohmoh/ghimmohmoh/internal/observability"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute returns the process exit code so that its deferred cleanup runs
// before main exits.
func execute(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ghimmohmoh-prompt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	archive := fs.Bool("archive", false, "also store the rendered prompt in the object store archive")
	contextOnly := fs.Bool("context-only", false, "print the table context document instead of the full prompt")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		_, _ = fmt.Fprintf(stderr, "load .env: %v\n", err)
		return 1
	}
	cfg, err := config.LoadFromEnv("ghimmohmoh-prompt")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 2
	}
	logger := observability.NewLogger(cfg, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger, stdout, *archive, *contextOnly)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, stdout io.Writer, archive, contextOnly bool) int {
	rt, err := bootstrap.Open(ctx, cfg, logger, bootstrap.Options{ForceArchive: archive})
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		return 1
	}
	defer func() { _ = rt.Close() }()

	var output string
	if contextOnly {
		output, err = rt.Service.TableContext(ctx)
	} else {
		output, err = rt.Service.SystemPrompt(ctx)
	}
	if err != nil {
		logger.Error("failed to render prompt", slog.Any("error", err))
		return 1
	}
	_, _ = fmt.Fprintln(stdout, output)

	if archive {
		entry, err := rt.Service.Archive(ctx)
		if err != nil {
			logger.Error("failed to archive prompt", slog.Any("error", err))
			return 1
		}
		logger.Info("archived prompt", slog.String("key", entry.Key), slog.String("digest", entry.Digest))
	}
	return 0
}
