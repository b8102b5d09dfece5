// events.go implements fsnotify event handling for the config file.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

func (w *Watcher) start(ctx context.Context) error {
	// Editors often replace the file atomically, which drops a watch on the file itself.
	dir := filepath.Dir(w.configPath)
	if errAddDir := w.watcher.Add(dir); errAddDir != nil {
		log.Errorf("failed to watch config directory %s: %v", dir, errAddDir)
		return errAddDir
	}
	log.Debugf("watching config file: %s", w.configPath)

	if data, errRead := os.ReadFile(w.configPath); errRead == nil && len(data) > 0 {
		w.configMu.Lock()
		w.lastConfigHash = hashOf(data)
		w.configMu.Unlock()
	}

	go w.processEvents(ctx)
	return nil
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	configOps := fsnotify.Write | fsnotify.Create | fsnotify.Rename
	if normalizePath(event.Name) != normalizePath(w.configPath) || event.Op&configOps == 0 {
		return
	}
	log.Debugf("config file event detected: %s %s", event.Op.String(), event.Name)
	w.scheduleConfigReload()
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	cleaned := filepath.Clean(trimmed)
	if runtime.GOOS == "windows" {
		cleaned = strings.TrimPrefix(cleaned, `\\?\`)
		cleaned = strings.ToLower(cleaned)
	}
	return cleaned
}
