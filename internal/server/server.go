// Package server serves tasks one at a time and records the answers.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oleg578/localturk"
	"github.com/oleg578/localturk/internal/render"
	"github.com/oleg578/localturk/internal/task"
)

// maxFormSize bounds the body of a submitted answer.
const maxFormSize = 10 << 20

// Options configures a Server.
type Options struct {
	TemplateFile string
	TasksFile    string
	OutputsFile  string
	// StaticDir is served for every path other than the routes. Defaults to
	// the template's directory.
	StaticDir string
	// OnDone is called once, the first time every task has an answer.
	OnDone func()
}

// Server is the localturk HTTP handler.
type Server struct {
	opts      Options
	templates *templateCache
	mux       *http.ServeMux
	cancel    context.CancelFunc
	doneOnce  sync.Once

	// mu serializes every access to the outputs file.
	mu sync.Mutex
}

// New returns a Server for opts. The template is watched for changes until
// Close is called.
func New(opts Options) (*Server, error) {
	if opts.TemplateFile == "" || opts.TasksFile == "" || opts.OutputsFile == "" {
		return nil, errors.New("server: template, tasks and outputs files are required")
	}
	if _, err := localturk.ReadHeaders(opts.TasksFile); err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	if opts.StaticDir == "" {
		opts.StaticDir = filepath.Dir(opts.TemplateFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:      opts,
		templates: newTemplateCache(opts.TemplateFile),
		mux:       http.NewServeMux(),
		cancel:    cancel,
	}
	if err := s.templates.watch(ctx); err != nil {
		// Serving still works, reading the template on every request.
		slog.Warn("Not watching template", "path", opts.TemplateFile, "err", err)
	}

	s.mux.Handle("GET /{$}", wrap(s.index))
	s.mux.Handle("POST /submit", wrap(s.submit))
	s.mux.Handle("POST /delete-last", wrap(s.deleteLast))
	s.mux.Handle("GET /", http.FileServer(http.Dir(opts.StaticDir)))
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Close stops watching the template.
func (s *Server) Close() error {
	s.cancel()
	return nil
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully. ready, when not nil, is called with the bound address once the
// listener is open.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Serve(ln)
	}()
	slog.InfoContext(ctx, "Starting server", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// statusError carries the HTTP status a handler failure maps to.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &statusError{code: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// wrap adapts fn to an http.Handler, logging errors and answering with their
// status, 500 by default.
func wrap(fn func(http.ResponseWriter, *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		code := http.StatusInternalServerError
		var se *statusError
		if errors.As(err, &se) {
			code = se.code
		}
		slog.ErrorContext(r.Context(), "Handler error", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
		msg := http.StatusText(code)
		if code < http.StatusInternalServerError {
			msg = err.Error()
		}
		http.Error(w, msg, code)
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) error {
	s.mu.Lock()
	stats, err := task.Next(s.opts.TasksFile, s.opts.OutputsFile)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if stats.Done() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "DONE")
		slog.InfoContext(r.Context(), "All tasks done", "total", stats.NumTotal)
		if s.opts.OnDone != nil {
			s.doneOnce.Do(s.opts.OnDone)
		}
		return nil
	}

	tmpl, err := s.templates.get()
	if err != nil {
		return err
	}
	page, err := render.TaskPage(tmpl, stats.Task, stats.NumCompleted, stats.NumTotal, r.URL.Query().Get("notice"))
	if err != nil {
		return err
	}
	slog.DebugContext(r.Context(), "Serving task", "completed", stats.NumCompleted, "total", stats.NumTotal)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = io.WriteString(w, page)
	return err
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/x-www-form-urlencoded" {
		return &statusError{code: http.StatusUnsupportedMediaType, err: fmt.Errorf("unsupported content type %q", ct)}
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormSize))
	if err != nil {
		return badRequest("failed to read form: %w", err)
	}
	row, err := ParseForm(string(body))
	if err != nil {
		return badRequest("invalid form: %w", err)
	}
	if row.Len() == 0 {
		return badRequest("empty form")
	}

	s.mu.Lock()
	err = localturk.AppendRow(s.opts.OutputsFile, row)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	slog.InfoContext(r.Context(), "Saved row", "path", s.opts.OutputsFile, "columns", row.Len())
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}

func (s *Server) deleteLast(w http.ResponseWriter, r *http.Request) error {
	s.mu.Lock()
	rec, err := localturk.DeleteLastRow(s.opts.OutputsFile)
	s.mu.Unlock()

	var notice string
	switch {
	case errors.Is(err, localturk.ErrNoRows), errors.Is(err, localturk.ErrEmptyFile), errors.Is(err, fs.ErrNotExist):
		notice = "Nothing to delete."
	case err != nil:
		return err
	default:
		slog.InfoContext(r.Context(), "Deleted row", "path", s.opts.OutputsFile, "fields", len(rec))
		notice = "Deleted: " + strings.Join(rec, ", ")
	}
	http.Redirect(w, r, "/?notice="+url.QueryEscape(notice), http.StatusSeeOther)
	return nil
}

// ParseForm decodes an application/x-www-form-urlencoded body into a row,
// keeping the order in which fields appear. A repeated field keeps its first
// position and its last value.
func ParseForm(body string) (localturk.RowObject, error) {
	row := localturk.NewRowObject()
	for pair := range strings.SplitSeq(body, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return localturk.RowObject{}, err
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return localturk.RowObject{}, err
		}
		row.Set(key, value)
	}
	return row, nil
}
