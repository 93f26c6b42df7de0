package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on change and notifies a callback with
// the gadget allow-list and hook bundle list — the two fields spec.md §6
// calls out as hot-reloadable, since changing either never invalidates an
// in-flight run's provider connection or media store. Grounded on the
// teacher's internal/skills.Manager watch loop (debounced fsnotify.Watcher
// with a reload timer), generalized from skill directories to one config
// file.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onReload func(GadgetsConfig, HooksConfig)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewWatcher creates a config-file watcher. debounce defaults to 250ms if
// zero.
func NewWatcher(path string, debounce time.Duration, onReload func(GadgetsConfig, HooksConfig), logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, debounce: debounce, onReload: onReload, logger: logger}
}

// Start begins watching the config file until ctx is canceled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.watcher = watcher
	w.cancel = cancel
	w.mu.Unlock()

	go w.loop(watchCtx, watcher)
	return nil
}

// Stop halts the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, w.reload)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous values", "error", err)
		return
	}
	w.logger.Info("config reloaded", "allow_list_size", len(cfg.Gadgets.AllowList), "hook_bundles", len(cfg.Hooks.Bundles))
	if w.onReload != nil {
		w.onReload(cfg.Gadgets, cfg.Hooks)
	}
}
