// Package server provides the local docs server: static site files plus
// health and metrics endpoints, with optional rebuild-on-change watching and
// periodic stats refresh.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docsmith/internal/logfields"
	"git.home.luguber.info/inful/docsmith/internal/metrics"
)

// debounceWindow coalesces bursts of filesystem events into one rebuild.
const debounceWindow = 500 * time.Millisecond

// Options configures the server.
type Options struct {
	Addr     string
	Dir      string // directory of static files to serve
	Recorder *metrics.PrometheusRecorder

	// WatchRoot, when set, is watched recursively; OnChange runs after each
	// debounced burst of changes.
	WatchRoot string
	OnChange  func()

	// RefreshInterval, when positive, schedules RefreshTask periodically.
	RefreshInterval time.Duration
	RefreshTask     func()
}

// Server serves the built documentation site locally.
type Server struct {
	opts Options
}

// New builds a Server.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	return &Server{opts: opts}
}

// Run blocks until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.opts.Dir)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.opts.Recorder != nil {
		mux.Handle("/metrics", s.opts.Recorder.Handler())
	}

	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.opts.WatchRoot != "" && s.opts.OnChange != nil {
		stop, err := s.startWatcher(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	if s.opts.RefreshInterval > 0 && s.opts.RefreshTask != nil {
		stop, err := s.startRefresh()
		if err != nil {
			return err
		}
		defer stop()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving docs", slog.String("addr", s.opts.Addr), logfields.Path(s.opts.Dir))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// startWatcher watches the docs tree and triggers OnChange after a debounced
// burst of events. New subdirectories are added to the watch as they appear.
func (s *Server) startWatcher(ctx context.Context) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := addRecursive(watcher, s.opts.WatchRoot); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Create) {
					// Best effort; the path may already be gone.
					_ = addRecursive(watcher, ev.Name)
				}
				if timer == nil {
					timer = time.AfterFunc(debounceWindow, func() { fire <- struct{}{} })
				} else {
					timer.Reset(debounceWindow)
				}
			case <-fire:
				timer = nil
				slog.Debug("docs tree changed, rebuilding", logfields.Path(s.opts.WatchRoot))
				s.opts.OnChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("filesystem watcher error", logfields.Error(err))
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil
	}
	return walkDirs(root, func(dir string) error {
		return watcher.Add(dir)
	})
}

// startRefresh schedules the periodic stats refresh via gocron.
func (s *Server) startRefresh() (func(), error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.opts.RefreshInterval),
		gocron.NewTask(s.opts.RefreshTask),
		gocron.WithName("stats-refresh"),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule stats refresh: %w", err)
	}
	scheduler.Start()
	slog.Info("periodic stats refresh scheduled", slog.Duration("interval", s.opts.RefreshInterval))
	return func() { _ = scheduler.Shutdown() }, nil
}
