package tui

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// logLine is one formatted entry captured from logrus.
type logLine struct {
	level log.Level
	text  string
}

// LogHook captures logrus entries for the log pane while the terminal is owned by the TUI.
type LogHook struct {
	ch        chan logLine
	formatter log.Formatter
	mu        sync.Mutex
}

// NewLogHook creates a hook buffering up to bufSize lines.
func NewLogHook(bufSize int) *LogHook {
	return &LogHook{
		ch:        make(chan logLine, bufSize),
		formatter: &log.TextFormatter{DisableColors: true, FullTimestamp: true},
	}
}

// SetFormatter sets the formatter used to render captured entries.
func (h *LogHook) SetFormatter(f log.Formatter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.formatter = f
}

func (h *LogHook) Levels() []log.Level {
	return log.AllLevels
}

// Fire formats entry and queues it. When the buffer is full the oldest line is dropped.
func (h *LogHook) Fire(entry *log.Entry) error {
	h.mu.Lock()
	f := h.formatter
	h.mu.Unlock()

	text := fmt.Sprintf("[%s] %s", entry.Level, entry.Message)
	if f != nil {
		if b, err := f.Format(entry); err == nil {
			text = strings.TrimRight(string(b), "\n\r")
		}
	}
	line := logLine{level: entry.Level, text: text}

	select {
	case h.ch <- line:
	default:
		select {
		case <-h.ch:
		default:
		}
		select {
		case h.ch <- line:
		default:
		}
	}
	return nil
}
