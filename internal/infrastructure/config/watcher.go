package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jbctechsolutions/tokenpad/internal/infrastructure/logging"
)

// WatchEventType represents the type of file system event.
type WatchEventType string

// Watch event types.
const (
	WatchEventCreate WatchEventType = "create"
	WatchEventWrite  WatchEventType = "write"
	WatchEventRemove WatchEventType = "remove"
	WatchEventRename WatchEventType = "rename"
)

// WatchEvent represents a change to a watched config file.
type WatchEvent struct {
	Path      string
	Type      WatchEventType
	Timestamp time.Time
}

// WatcherConfig holds configuration for the file watcher.
type WatcherConfig struct {
	DebounceDuration time.Duration
	BufferSize       int
}

// DefaultWatcherConfig returns sensible default configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DebounceDuration: 200 * time.Millisecond,
		BufferSize:       16,
	}
}

// Watcher monitors config files for changes. It watches the parent
// directories, since editors usually replace files rather than write them
// in place, and debounces bursts of events per file.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    WatcherConfig
	events    chan WatchEvent
	errors    chan error

	files map[string]bool

	pending   map[string]pendingEvent
	pendingMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

type pendingEvent struct {
	eventType WatchEventType
	timestamp time.Time
}

// NewWatcher creates a new file watcher with the given configuration.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	def := DefaultWatcherConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = def.DebounceDuration
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		events:    make(chan WatchEvent, cfg.BufferSize),
		errors:    make(chan error, cfg.BufferSize),
		files:     make(map[string]bool),
		pending:   make(map[string]pendingEvent),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Watch starts watching the given config files. Files whose directory does
// not exist are skipped without error.
func (w *Watcher) Watch(files ...string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.mu.Unlock()
			return err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	w.mu.Unlock()

	for dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			return err
		}
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.debounceProcessor()

	return nil
}

// Events returns the channel for receiving watch events.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Errors returns the channel for receiving watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	close(w.events)
	close(w.errors)

	return err
}

func (w *Watcher) watched(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.watched(event.Name) {
				continue
			}

			eventType := convertEventType(event.Op)
			if eventType == "" {
				continue
			}

			w.pendingMu.Lock()
			w.pending[event.Name] = pendingEvent{
				eventType: eventType,
				timestamp: time.Now(),
			}
			w.pendingMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) debounceProcessor() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceDuration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.emitStableEvents()
		}
	}
}

// emitStableEvents emits events that have been quiet for the debounce period.
func (w *Watcher) emitStableEvents() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	for path, pending := range w.pending {
		if now.Sub(pending.timestamp) < w.config.DebounceDuration {
			continue
		}
		delete(w.pending, path)

		select {
		case w.events <- WatchEvent{Path: path, Type: pending.eventType, Timestamp: pending.timestamp}:
		default:
			// Drop event if channel is full
		}
	}
}

func convertEventType(op fsnotify.Op) WatchEventType {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return WatchEventCreate
	case op&fsnotify.Write == fsnotify.Write:
		return WatchEventWrite
	case op&fsnotify.Remove == fsnotify.Remove:
		return WatchEventRemove
	case op&fsnotify.Rename == fsnotify.Rename:
		return WatchEventRename
	default:
		return ""
	}
}

// Reload blocks until ctx is done, reloading configPath after every change
// and passing valid configurations to apply. Invalid files are logged and
// ignored so a half-written edit never replaces a working config.
func Reload(ctx context.Context, w *Watcher, loader *Loader, configPath string, apply func(*Config), logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if ev.Type == WatchEventRemove || ev.Type == WatchEventRename {
				logger.Warn("config file removed, keeping current settings", "path", ev.Path)
				continue
			}

			cfg, err := loader.Load(configPath)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				logger.Warn("config reload rejected", "path", ev.Path, "error", err.Error())
				continue
			}

			logger.Info("config reloaded", "path", ev.Path)
			apply(cfg)

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err.Error())
		}
	}
}
