package registry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the registry watcher
type WatcherConfig struct {
	// Path is the registry document or directory to watch
	Path string

	// DebounceDelay is how long to wait for more changes before reloading
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// ReloadEvent reports the outcome of one reload attempt
type ReloadEvent struct {
	// Checksum of the snapshot now published
	Checksum string

	// Changed is false when the documents were touched but their content
	// produced the same checksum
	Changed bool

	// Err is set when the reload failed; the previous snapshot stays published
	Err error
}

// Watcher reloads the registry into a Holder when its documents change.
type Watcher struct {
	config  WatcherConfig
	holder  *Holder
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	isDir   bool

	// Debouncing: collect changes before reloading
	pendingMu sync.Mutex
	pending   bool

	events chan ReloadEvent
}

// NewWatcher creates a watcher that publishes reloaded snapshots to holder.
func NewWatcher(config WatcherConfig, holder *Holder) (*Watcher, error) {
	info, err := os.Stat(config.Path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceDelay == 0 {
		config.DebounceDelay = 100 * time.Millisecond
	}

	return &Watcher{
		config:  config,
		holder:  holder,
		watcher: fsw,
		logger:  logger,
		isDir:   info.IsDir(),
		events:  make(chan ReloadEvent, 16),
	}, nil
}

// Events returns the channel of reload events
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching. Single documents are watched through their parent
// directory so editors that replace files on save are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	if w.isDir {
		if err := w.addWatchesRecursive(w.config.Path); err != nil {
			return err
		}
	} else if err := w.watcher.Add(filepath.Dir(w.config.Path)); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Registry watcher started",
		"path", w.config.Path,
		"debounce", w.config.DebounceDelay)

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		}
		return nil
	})
}

// processEvents handles fsnotify events with debouncing
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)

	ticker := time.NewTicker(w.config.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Registry watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if w.isDir {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				if err := w.watcher.Add(path); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
				return
			}
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return
		}
	} else if filepath.Clean(path) != filepath.Clean(w.config.Path) {
		return
	}

	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()

	w.logger.Debug("Registry change detected",
		"path", path,
		"op", event.Op.String())
}

// flushPending reloads once per burst of changes
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if !w.pending {
		w.pendingMu.Unlock()
		return
	}
	w.pending = false
	w.pendingMu.Unlock()

	w.sendEvent(w.Reload())
}

// Reload loads the registry and publishes it when its checksum differs
// from the current snapshot. A failed load keeps the current snapshot.
func (w *Watcher) Reload() ReloadEvent {
	current := w.holder.Load()

	next, err := Load(w.config.Path)
	if err != nil {
		w.logger.Error("Registry reload failed, keeping previous snapshot",
			"path", w.config.Path,
			"error", err)
		ev := ReloadEvent{Err: err}
		if current != nil {
			ev.Checksum = current.Checksum()
		}
		return ev
	}

	if current != nil && current.Checksum() == next.Checksum() {
		return ReloadEvent{Checksum: current.Checksum()}
	}

	w.holder.Swap(next)
	w.logger.Info("Registry reloaded",
		"path", w.config.Path,
		"checksum", shortSum(next.Checksum()),
		"nodes", len(next.nodes),
		"mixins", len(next.mixins))

	return ReloadEvent{Checksum: next.Checksum(), Changed: true}
}

func (w *Watcher) sendEvent(event ReloadEvent) {
	select {
	case w.events <- event:
	default:
		w.logger.Warn("Reload event channel full, dropping event")
	}
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
