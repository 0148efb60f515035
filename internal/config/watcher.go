package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// ConfigWatcher reloads a config file when it changes on disk and publishes
// the result on Changes.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	onChange chan *Config
	logger   logger.ILogger

	mu         sync.Mutex
	lastConfig *Config
	lastErr    error
}

// WatcherOption configures a ConfigWatcher.
type WatcherOption func(*ConfigWatcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *ConfigWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewConfigWatcher creates a watcher for path.
func NewConfigWatcher(path string, log logger.ILogger, opts ...WatcherOption) *ConfigWatcher {
	w := &ConfigWatcher{
		path:     filepath.Clean(path),
		debounce: defaultDebounce,
		onChange: make(chan *Config, 1),
		logger:   log.SubLogger("ConfigWatcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Changes returns the channel receiving reloaded configs. Only the newest
// pending config is kept.
func (w *ConfigWatcher) Changes() <-chan *Config {
	return w.onChange
}

// Run watches the file's directory until ctx is cancelled. Watching the
// directory keeps the watch alive across editors that save by rename.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", w.path, err)
	}

	w.logger.Debugf("started watching config file: %s", w.path)

	var debounceTimer *time.Timer
	var debounceChan <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			w.logger.Debug("config watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debugf("config file change detected: op=%s", event.Op)

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			debounceChan = debounceTimer.C

		case <-debounceChan:
			debounceChan = nil
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("fsnotify error: %v", err)
		}
	}
}

// reload loads the file and publishes it, replacing any unread config.
func (w *ConfigWatcher) reload() {
	cfg, err := Load(w.path)
	if err == nil {
		err = cfg.Validate()
	}

	w.mu.Lock()
	w.lastErr = err
	if err == nil {
		w.lastConfig = cfg
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Errorf("failed to reload config: %v", err)
		return
	}

	w.logger.Infof("config reloaded: path=%s", w.path)

	select {
	case <-w.onChange:
		w.logger.Warning("unread config change replaced by newer one")
	default:
	}
	select {
	case w.onChange <- cfg:
	default:
	}
}

// LastConfig returns the last successfully loaded config.
func (w *ConfigWatcher) LastConfig() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastConfig
}

// LastError returns the error of the most recent reload, nil if it succeeded.
func (w *ConfigWatcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}
