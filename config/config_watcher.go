package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Verify at compile time that ConfigWatcher implements Watcher
var _ Watcher = (*ConfigWatcher)(nil)

// reloadDebounce collapses the burst of events an editor produces on save.
const reloadDebounce = 100 * time.Millisecond

// ConfigWatcher reloads the configuration when the config file or the
// system prompt file changes on disk.
type ConfigWatcher struct {
	currentConfig atomic.Value
	configPath    string
	watcher       *fsnotify.Watcher
	logger        *zap.Logger

	mu          sync.Mutex
	subscribers []chan *Config
	watched     map[string]bool
	closed      chan struct{}
	closeOnce   sync.Once
}

// NewConfigWatcher loads configPath and starts watching it.
func NewConfigWatcher(configPath string, logger *zap.Logger) (*ConfigWatcher, error) {
	initialConfig, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	cw := &ConfigWatcher{
		configPath: configPath,
		watcher:    watcher,
		logger:     logger,
		watched:    make(map[string]bool),
		closed:     make(chan struct{}),
	}
	cw.currentConfig.Store(initialConfig)

	// Directories are watched rather than files so atomic saves
	// (write temp file, rename over) keep being observed.
	if err := cw.watchFile(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}
	if err := cw.watchFile(initialConfig.Prompt.SystemFile); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch system prompt file: %w", err)
	}

	go cw.watchConfig()
	return cw, nil
}

func (cw *ConfigWatcher) watchFile(path string) error {
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.watched[abs] {
		return nil
	}
	dir := filepath.Dir(abs)
	alreadyDir := false
	for f := range cw.watched {
		if filepath.Dir(f) == dir {
			alreadyDir = true
			break
		}
	}
	if !alreadyDir {
		if err := cw.watcher.Add(dir); err != nil {
			return err
		}
	}
	cw.watched[abs] = true
	return nil
}

func (cw *ConfigWatcher) isWatched(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.watched[abs]
}

// Subscribe returns a channel receiving every successfully reloaded config.
// A subscriber that has not drained the previous value only sees the latest.
func (cw *ConfigWatcher) Subscribe() <-chan *Config {
	ch := make(chan *Config, 1)
	cw.mu.Lock()
	cw.subscribers = append(cw.subscribers, ch)
	cw.mu.Unlock()
	return ch
}

// GetCurrentConfig returns the current configuration thread-safely
func (cw *ConfigWatcher) GetCurrentConfig() *Config {
	return cw.currentConfig.Load().(*Config)
}

func (cw *ConfigWatcher) watchConfig() {
	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-cw.closed:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !cw.isWatched(event.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			trigger = timer.C
		case <-trigger:
			trigger = nil
			cw.handleConfigChange()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("config watcher error", zap.Error(err))
		}
	}
}

func (cw *ConfigWatcher) handleConfigChange() {
	cw.logger.Info("detected config change, reloading", zap.String("path", cw.configPath))

	newConfig, err := LoadFile(cw.configPath)
	if err != nil {
		cw.logger.Error("failed to reload config, keeping previous", zap.Error(err))
		return
	}

	if err := cw.watchFile(newConfig.Prompt.SystemFile); err != nil {
		cw.logger.Warn("failed to watch system prompt file",
			zap.String("path", newConfig.Prompt.SystemFile),
			zap.Error(err))
	}

	cw.currentConfig.Store(newConfig)

	cw.mu.Lock()
	subs := cw.subscribers
	cw.mu.Unlock()
	for _, sub := range subs {
		// Replace a stale pending value so the subscriber sees the newest one.
		select {
		case <-sub:
		default:
		}
		select {
		case sub <- newConfig:
		default:
		}
	}

	cw.logger.Info("configuration reloaded")
}

// Close stops watching. It is safe to call more than once.
func (cw *ConfigWatcher) Close() error {
	var err error
	cw.closeOnce.Do(func() {
		close(cw.closed)
		err = cw.watcher.Close()
	})
	return err
}
