// Command classify-images labels images in the browser without a hand-written
// tasks file or template.
//
// Usage:
//
//	classify-images -o labels.csv --labels Yes,No,Maybe *.jpg
//	classify-images -o labels.csv images.txt
//
// Each image is shown with one button per label. Answers are appended to the
// output CSV with the image path and the chosen label.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/browser"

	"github.com/oleg578/localturk"
	"github.com/oleg578/localturk/internal/config"
	"github.com/oleg578/localturk/internal/logging"
	"github.com/oleg578/localturk/internal/render"
	"github.com/oleg578/localturk/internal/server"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "classify-images: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	fs := flag.NewFlagSet("classify-images", flag.ContinueOnError)
	output := fs.String("output", "output.csv", "Path to the output CSV file")
	fs.StringVar(output, "o", "output.csv", "Shorthand for --output")
	labels := fs.String("labels", "Yes,No", "Comma-separated list of labels")
	fs.StringVar(labels, "l", "Yes,No", "Shorthand for --labels")
	maxWidth := fs.Int("max-width", 0, "Display images at most this many pixels wide")
	fs.IntVar(maxWidth, "w", 0, "Shorthand for --max-width")
	port := fs.Int("port", config.DefaultPort, "Run on this port")
	host := fs.String("host", config.DefaultHost, "Interface to listen on")
	noBrowser := fs.Bool("no-browser", false, "Do not open a browser")
	logLevel := fs.String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: classify-images [flags] /path/to/images/*.jpg | images.txt\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("at least one image is required")
	}
	cfg := &config.Config{Port: *port, Host: *host, LogLevel: *logLevel, NoBrowser: *noBrowser}
	if err := cfg.Validate(); err != nil {
		return err
	}
	choices := splitLabels(*labels)
	if len(choices) == 0 {
		return errors.New("at least one label is required")
	}

	logger, _, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if _, err := os.Stat(*output); err == nil {
		slog.Warn("Output file already exists; its rows are treated as previous labels. Delete or rename it, or pass a different --output, to start over", "path", *output)
	}

	images, err := imageList(fs.Args())
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "classify-images")
	if err != nil {
		return fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	cfg.TasksFile = filepath.Join(dir, "tasks.csv")
	cfg.TemplateFile = filepath.Join(dir, "template.html")
	cfg.OutputsFile = *output

	if err := writeTasks(cfg.TasksFile, images); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.TemplateFile, []byte(render.ClassifyTemplate(choices, *maxWidth)), 0o600); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	slog.Debug("Generated inputs", "tasks", cfg.TasksFile, "template", cfg.TemplateFile, "images", len(images), "labels", choices)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	srv, err := server.New(server.Options{
		TemplateFile: cfg.TemplateFile,
		TasksFile:    cfg.TasksFile,
		OutputsFile:  cfg.OutputsFile,
		StaticDir:    ".",
		OnDone: func() {
			slog.InfoContext(ctx, "All images labeled, exiting")
			stop()
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	return srv.ListenAndServe(ctx, cfg.Addr(), func(net.Addr) {
		slog.InfoContext(ctx, "Running", "url", cfg.URL(), "images", len(images), "output", cfg.OutputsFile)
		if cfg.NoBrowser {
			return
		}
		if err := browser.OpenURL(cfg.URL()); err != nil {
			slog.WarnContext(ctx, "Failed to open browser", "err", err)
		}
	})
}

func splitLabels(s string) []string {
	var out []string
	for label := range strings.SplitSeq(s, ",") {
		if label = strings.TrimSpace(label); label != "" {
			out = append(out, label)
		}
	}
	return out
}

// imageList returns the image paths named by args. A single .txt argument is
// read as a list, one path per line.
func imageList(args []string) ([]string, error) {
	if len(args) != 1 || !strings.HasSuffix(args[0], ".txt") {
		return args, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open image list: %w", err)
	}
	defer func() { _ = f.Close() }()
	var images []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			images = append(images, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image list: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images listed in %s", args[0])
	}
	return images, nil
}

// writeTasks writes the tasks file: a path column with one image per row.
func writeTasks(path string, images []string) error {
	rows := make([]localturk.Record, 0, len(images)+1)
	rows = append(rows, localturk.Record{"path"})
	for _, img := range images {
		rows = append(rows, localturk.Record{img})
	}
	if err := localturk.WriteCSV(path, rows); err != nil {
		return fmt.Errorf("failed to write tasks: %w", err)
	}
	return nil
}
