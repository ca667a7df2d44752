package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// templateCache holds the template file's contents. Until watch succeeds the
// file is read on every call; afterwards the cached copy is dropped whenever
// the file changes.
type templateCache struct {
	path string

	mu       sync.Mutex
	text     string
	valid    bool
	watching bool
}

func newTemplateCache(path string) *templateCache {
	return &templateCache{path: filepath.Clean(path)}
}

func (c *templateCache) get() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid {
		return c.text, nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	if c.watching {
		c.text, c.valid = string(data), true
	}
	return string(data), nil
}

func (c *templateCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.text = ""
	c.mu.Unlock()
}

// watch observes the template's directory, so that editors replacing the file
// through a rename are noticed too. It returns once the watcher is set up and
// stops watching when ctx is done.
func (c *templateCache) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		_ = w.Close()
		return err
	}
	c.mu.Lock()
	c.watching = true
	c.mu.Unlock()

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != c.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					slog.DebugContext(ctx, "Template changed", "path", c.path, "op", event.Op.String())
					c.invalidate()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching template", "err", err)
			}
		}
	}()
	return nil
}
