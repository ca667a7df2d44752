// Command localturk serves the rows of a CSV file one at a time through an
// HTML template and appends every answer to an outputs CSV file.
//
// Usage:
//
//	localturk [flags] template.html tasks.csv outputs.csv
//	localturk --write-template tasks.csv > template.html
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/pkg/browser"

	"github.com/oleg578/localturk"
	"github.com/oleg578/localturk/internal/config"
	"github.com/oleg578/localturk/internal/logging"
	"github.com/oleg578/localturk/internal/render"
	"github.com/oleg578/localturk/internal/server"
)

func main() {
	if err := mainImpl(os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "localturk: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("localturk", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: localturk [flags] template.html tasks.csv outputs.csv\n")
		fmt.Fprintf(fs.Output(), "       localturk --write-template tasks.csv\n\n")
		fs.PrintDefaults()
	}
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}

	if cfg.Version {
		_, err := fmt.Fprintf(stdout, "localturk %s\n", version())
		return err
	}

	logger, _, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.WriteTemplate {
		columns, err := localturk.ReadHeaders(cfg.TasksFile)
		if err != nil {
			return fmt.Errorf("failed to read tasks: %w", err)
		}
		_, err = io.WriteString(stdout, render.StubTemplate(columns))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	return serve(ctx, stop, cfg, nil)
}

// serve runs the task server until ctx is canceled or every task is done.
// listening, when not nil, receives the bound address.
func serve(ctx context.Context, stop context.CancelFunc, cfg *config.Config, listening func(net.Addr)) error {
	srv, err := server.New(server.Options{
		TemplateFile: cfg.TemplateFile,
		TasksFile:    cfg.TasksFile,
		OutputsFile:  cfg.OutputsFile,
		StaticDir:    cfg.StaticDir,
		OnDone: func() {
			slog.InfoContext(ctx, "All tasks completed, exiting")
			stop()
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	return srv.ListenAndServe(ctx, cfg.Addr(), func(addr net.Addr) {
		if listening != nil {
			listening(addr)
		}
		slog.InfoContext(ctx, "Running", "url", cfg.URL(), "tasks", cfg.TasksFile, "outputs", cfg.OutputsFile)
		if cfg.NoBrowser {
			return
		}
		if err := browser.OpenURL(cfg.URL()); err != nil {
			slog.WarnContext(ctx, "Failed to open browser", "err", err)
		}
	})
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
