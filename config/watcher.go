package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of filesystem events editors emit when
// saving a file.
const debounceDelay = 100 * time.Millisecond

// ChangeFunc is called with the previous and freshly loaded config after a
// successful reload.
type ChangeFunc func(old, updated *Config)

// Watcher reloads a config file whenever it changes on disk. Reloads that
// fail to parse or validate are logged and discarded, keeping the last good
// config in place.
type Watcher struct {
	path string
	log  *slog.Logger

	mu        sync.RWMutex
	current   *Config
	callbacks []ChangeFunc

	fsw  *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

// NewWatcher loads the file once and prepares a watcher on its directory.
// Watching the directory rather than the file survives rename-based saves.
func NewWatcher(path string, log *slog.Logger) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		path:    path,
		log:     log,
		current: cfg,
		fsw:     fsw,
		done:    make(chan struct{}),
	}, nil
}

// Config returns the last successfully loaded config.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after each successful reload.
// Callbacks run on the watcher goroutine.
func (w *Watcher) OnChange(fn ChangeFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop ends watching and releases the filesystem watcher.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

func (w *Watcher) run() {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
			} else {
				timer.Reset(debounceDelay)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	updated, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed, keeping previous", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = updated
	callbacks := make([]ChangeFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path, "version", updated.Version)
	for _, fn := range callbacks {
		fn(old, updated)
	}
}
