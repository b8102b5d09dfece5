// config_reload.go implements debounced configuration hot reload.
package watcher

import (
	"os"
	"time"

	"github.com/router-for-me/CLIPresence/internal/config"
	"gopkg.in/yaml.v3"

	log "github.com/sirupsen/logrus"
)

func (w *Watcher) stopConfigReloadTimer() {
	w.configReloadMu.Lock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
		w.configReloadTimer = nil
	}
	w.configReloadMu.Unlock()
}

func (w *Watcher) scheduleConfigReload() {
	w.configReloadMu.Lock()
	defer w.configReloadMu.Unlock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
	}
	w.configReloadTimer = time.AfterFunc(configReloadDebounce, func() {
		w.configReloadMu.Lock()
		w.configReloadTimer = nil
		w.configReloadMu.Unlock()
		w.reloadConfigIfChanged()
	})
}

func (w *Watcher) reloadConfigIfChanged() {
	data, err := os.ReadFile(w.configPath)
	if err != nil {
		log.Errorf("failed to read config file for hash check: %v", err)
		return
	}
	if len(data) == 0 {
		log.Debugf("ignoring empty config file write event")
		return
	}
	newHash := hashOf(data)

	w.configMu.RLock()
	currentHash := w.lastConfigHash
	w.configMu.RUnlock()

	if currentHash != "" && currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}
	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.configMu.Lock()
		w.lastConfigHash = newHash
		w.configMu.Unlock()
	}
}

func (w *Watcher) reloadConfig() bool {
	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}

	w.configMu.RLock()
	overrides := w.overrides
	w.configMu.RUnlock()
	if overrides != nil {
		if errOverride := overrides(newConfig); errOverride != nil {
			log.Errorf("failed to apply overrides to reloaded config: %v", errOverride)
			return false
		}
	}

	w.configMu.Lock()
	var oldConfig *config.Config
	_ = yaml.Unmarshal(w.oldConfigYaml, &oldConfig)
	if current := w.config; current != nil {
		// The application id is fixed for the lifetime of the process.
		newConfig.ClientID = current.ClientID
	}
	w.oldConfigYaml, _ = yaml.Marshal(newConfig)
	w.config = newConfig
	w.configMu.Unlock()

	if oldConfig != nil {
		details := ChangeDetails(oldConfig, newConfig)
		if len(details) == 0 {
			log.Debugf("no material config field changes detected")
		}
		for _, d := range details {
			log.Infof("config change: %s", d)
		}
	}

	if w.reloadCallback != nil {
		w.reloadCallback(oldConfig, newConfig)
	}
	return true
}
