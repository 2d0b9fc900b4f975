package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceDelay = 500 * time.Millisecond

// ConfigWatcher reloads the configuration when files under the loader's
// directory change. File watching only runs in development; elsewhere the
// watcher just holds the initial configuration.
type ConfigWatcher struct {
	config    *Config
	loader    *Loader
	callbacks []func(*Config)
	mu        sync.RWMutex
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewConfigWatcher creates a watcher that reloads through loader.
func NewConfigWatcher(initial *Config, loader *Loader, logger *zap.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &ConfigWatcher{
		config: initial,
		loader: loader,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if !initial.IsDevelopment() || loader == nil {
		logger.Info("Configuration hot reloading disabled",
			zap.String("environment", string(initial.Environment)),
		)
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fsWatcher

	if err := w.watchConfigFiles(); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config files: %w", err)
	}

	go w.watchLoop()

	logger.Info("Configuration hot reloading enabled",
		zap.String("environment", string(initial.Environment)),
		zap.String("dir", loader.basePath),
	)
	return w, nil
}

func (w *ConfigWatcher) watchConfigFiles() error {
	dir := w.loader.basePath
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			w.logger.Warn("Config directory missing; nothing to watch", zap.String("dir", dir))
			return nil
		}
		return err
	}
	// Watching the directory sees editors that replace files by rename.
	return w.watcher.Add(dir)
}

func (w *ConfigWatcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !isConfigFile(event.Name) {
				continue
			}
			w.logger.Info("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, w.Reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			w.logger.Info("Stopping configuration watcher")
			return
		}
	}
}

// Reload loads the configuration again and notifies callbacks when it
// changed. An invalid result keeps the current configuration.
func (w *ConfigWatcher) Reload() {
	if w.loader == nil {
		return
	}
	newConfig, err := w.loader.Load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload", zap.Error(err))
		return
	}

	w.mu.Lock()
	oldConfig := w.config
	if configsEqual(oldConfig, newConfig) {
		w.mu.Unlock()
		w.logger.Debug("Configuration unchanged after reload")
		return
	}
	w.config = newConfig
	w.mu.Unlock()

	w.logConfigChanges(oldConfig, newConfig)
	n := w.notifyCallbacks(newConfig)
	w.logger.Info("Configuration reloaded", zap.Int("callbacks_notified", n))
}

// OnChange registers a callback run after each effective reload.
func (w *ConfigWatcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// GetConfig returns the current configuration.
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop ends file watching. Safe to call more than once.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *ConfigWatcher) notifyCallbacks(newConfig *Config) int {
	w.mu.RLock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for i, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Callback panicked",
						zap.Int("callback_index", i),
						zap.Any("panic", r),
					)
				}
			}()
			callback(newConfig)
		}()
	}
	return len(callbacks)
}

func configsEqual(a, b *Config) bool {
	ac, bc := *a, *b
	ac.LoadedFrom, bc.LoadedFrom = nil, nil
	return reflect.DeepEqual(ac, bc)
}

func (w *ConfigWatcher) logConfigChanges(old, new *Config) {
	var changes []string
	if old.Logging.Level != new.Logging.Level {
		changes = append(changes, fmt.Sprintf("log level: %s -> %s", old.Logging.Level, new.Logging.Level))
	}
	if old.Server.Port != new.Server.Port {
		changes = append(changes, fmt.Sprintf("port: %d -> %d (restart required)", old.Server.Port, new.Server.Port))
	}
	if old.Store.Backend != new.Store.Backend {
		changes = append(changes, fmt.Sprintf("store: %s -> %s (restart required)", old.Store.Backend, new.Store.Backend))
	}
	if old.Security.AllowAnonymous != new.Security.AllowAnonymous {
		changes = append(changes, fmt.Sprintf("allow_anonymous: %v -> %v (restart required)", old.Security.AllowAnonymous, new.Security.AllowAnonymous))
	}
	if old.Draft.TTL != new.Draft.TTL {
		changes = append(changes, fmt.Sprintf("draft ttl: %s -> %s (restart required)", old.Draft.TTL, new.Draft.TTL))
	}
	if len(changes) > 0 {
		w.logger.Info("Configuration changes detected", zap.Strings("changes", changes))
	}
}

func isConfigFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
