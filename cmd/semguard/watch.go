package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/semguard/engine"
	"github.com/c360studio/semguard/registry"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-validate on source and registry changes",
		Long: `Watch the repository and the registry.

A source change re-validates the changed files and their dependents.
A registry change re-validates every file against the new snapshot.
A registry edit that fails to load keeps the previous snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var reg *prometheus.Registry
			if metricsAddr != "" {
				reg = prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			}

			var metrics prometheus.Registerer
			if reg != nil {
				metrics = reg
			}
			a, err := newApp(ctx, flags, metrics)
			if err != nil {
				return err
			}
			defer a.Close()

			if reg != nil {
				srv := serveMetrics(metricsAddr, reg, a.logger)
				defer func() {
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					defer stop()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			w := &watcher{
				app:      a,
				out:      cmd.OutOrStdout(),
				format:   flags.format,
				verbose:  verbose,
				debounce: debounce,
			}
			return w.run(ctx)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "Wait this long for more changes before re-validating")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List passing and skipped files too")
	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

type watcher struct {
	app      *app
	out      io.Writer
	format   string
	verbose  bool
	debounce time.Duration

	mu      sync.Mutex
	changed map[string]bool
}

func (w *watcher) run(ctx context.Context) error {
	regWatcher, err := registry.NewWatcher(registry.WatcherConfig{
		Path:          w.app.cfg.Registry.Path,
		DebounceDelay: w.debounce,
		Logger:        w.app.logger,
	}, w.app.holder)
	if err != nil {
		return fmt.Errorf("watch registry: %w", err)
	}
	if err := regWatcher.Start(ctx); err != nil {
		return fmt.Errorf("watch registry: %w", err)
	}
	defer regWatcher.Stop()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch sources: %w", err)
	}
	defer fsw.Close()

	if err := w.addSourceDirs(fsw); err != nil {
		return err
	}

	// Initial full pass
	w.report(w.app.check(ctx, nil, nil))

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-regWatcher.Events():
			if !ok {
				return nil
			}
			if ev.Err != nil {
				fmt.Fprintf(w.out, "registry reload failed, keeping previous rules:\n%v\n", ev.Err)
				continue
			}
			if ev.Changed {
				w.report(w.app.check(ctx, nil, nil))
			}

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleSourceEvent(event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.app.logger.Error("Source watcher error", "error", err)

		case <-ticker.C:
			if changed := w.drain(); len(changed) > 0 {
				w.app.logger.Debug("Re-validating", "changed", changed)
				w.report(w.app.check(ctx, nil, changed))
			}
		}
	}
}

// addSourceDirs watches every directory holding a discovered file.
func (w *watcher) addSourceDirs(fsw *fsnotify.Watcher) error {
	root := w.app.cfg.Repo.Path
	files, err := w.app.files(nil)
	if err != nil {
		return err
	}

	dirs := map[string]bool{".": true}
	for _, f := range files {
		dirs[path.Dir(f.Path)] = true
	}
	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	for _, d := range sorted {
		if err := fsw.Add(filepath.Join(root, filepath.FromSlash(d))); err != nil {
			w.app.logger.Warn("Failed to watch directory", "path", d, "error", err)
		}
	}
	w.app.logger.Info("Watching sources", "root", root, "dirs", len(sorted))
	return nil
}

func (w *watcher) handleSourceEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	rel, err := filepath.Rel(w.app.cfg.Repo.Path, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !w.app.cfg.Matches(rel) {
		return
	}

	w.mu.Lock()
	if w.changed == nil {
		w.changed = make(map[string]bool)
	}
	w.changed[rel] = true
	w.mu.Unlock()
}

func (w *watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.changed) == 0 {
		return nil
	}
	out := make([]string, 0, len(w.changed))
	for p := range w.changed {
		out = append(out, filepath.Join(w.app.cfg.Repo.Path, filepath.FromSlash(p)))
	}
	w.changed = nil
	sort.Strings(out)
	return out
}

func (w *watcher) report(batch *engine.BatchResult, err error) {
	if batch != nil {
		if werr := writeBatch(w.out, batch, w.format, w.verbose); werr != nil {
			w.app.logger.Warn("Failed to write report", "error", werr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(w.out, "validation error: %v\n", err)
	}
}
