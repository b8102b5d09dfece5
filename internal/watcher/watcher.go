// Package watcher watches the configuration file and reports material changes so the
// running session can pick up new presence content and log settings without a restart.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/CLIPresence/internal/config"
	"gopkg.in/yaml.v3"
)

// ReloadFunc receives the previous and the freshly loaded configuration.
type ReloadFunc func(oldCfg, newCfg *config.Config)

// OverrideFunc reapplies values that do not come from the file, such as flags and
// environment variables, to a freshly loaded configuration.
type OverrideFunc func(cfg *config.Config) error

// Watcher manages file watching for the configuration file.
type Watcher struct {
	configPath        string
	configMu          sync.RWMutex
	config            *config.Config
	oldConfigYaml     []byte
	lastConfigHash    string
	configReloadMu    sync.Mutex
	configReloadTimer *time.Timer
	reloadCallback    ReloadFunc
	overrides         OverrideFunc
	watcher           *fsnotify.Watcher
}

const configReloadDebounce = 150 * time.Millisecond

// NewWatcher creates a watcher for configPath. reloadCallback runs after every successful reload
// that changed the file content.
func NewWatcher(configPath string, reloadCallback ReloadFunc) (*Watcher, error) {
	watcher, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	abs, errAbs := filepath.Abs(configPath)
	if errAbs != nil {
		abs = configPath
	}
	return &Watcher{
		configPath:     abs,
		reloadCallback: reloadCallback,
		watcher:        watcher,
	}, nil
}

// SetConfig records the configuration currently in effect.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.configMu.Lock()
	defer w.configMu.Unlock()
	w.config = cfg
	w.oldConfigYaml, _ = yaml.Marshal(cfg)
}

// SetOverrides installs fn to run on every reloaded configuration before it is compared.
func (w *Watcher) SetOverrides(fn OverrideFunc) {
	w.configMu.Lock()
	defer w.configMu.Unlock()
	w.overrides = fn
}

// Config returns the configuration currently in effect.
func (w *Watcher) Config() *config.Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// Start begins watching and processes events until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	return w.start(ctx)
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	w.stopConfigReloadTimer()
	return w.watcher.Close()
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		_ = w.watcher.Close()
		return err
	}
	<-ctx.Done()
	return w.Stop()
}
