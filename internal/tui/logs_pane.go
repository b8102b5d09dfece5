package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
)

// logsPane shows the log lines captured by a LogHook.
type logsPane struct {
	hook       *LogHook
	viewport   viewport.Model
	lines      []logLine
	maxLines   int
	autoScroll bool
	minLevel   log.Level
	width      int
	height     int
	ready      bool
}

type logLineMsg logLine

func newLogsPane(hook *LogHook) logsPane {
	return logsPane{
		hook:       hook,
		maxLines:   2000,
		autoScroll: true,
		minLevel:   log.TraceLevel,
	}
}

func (m logsPane) Init() tea.Cmd {
	if m.hook == nil {
		return nil
	}
	return m.waitForLog
}

func (m logsPane) waitForLog() tea.Msg {
	line, ok := <-m.hook.ch
	if !ok {
		return nil
	}
	return logLineMsg(line)
}

func (m logsPane) Update(msg tea.Msg) (logsPane, tea.Cmd) {
	switch msg := msg.(type) {
	case logLineMsg:
		m.lines = append(m.lines, logLine(msg))
		if len(m.lines) > m.maxLines {
			m.lines = m.lines[len(m.lines)-m.maxLines:]
		}
		m.refresh()
		return m, m.waitForLog

	case tea.KeyMsg:
		switch msg.String() {
		case "a":
			m.autoScroll = !m.autoScroll
			m.refresh()
			return m, nil
		case "x":
			m.lines = nil
			m.refresh()
			return m, nil
		case "1":
			m.setFilter(log.TraceLevel)
			return m, nil
		case "2":
			m.setFilter(log.InfoLevel)
			return m, nil
		case "3":
			m.setFilter(log.WarnLevel)
			return m, nil
		case "4":
			m.setFilter(log.ErrorLevel)
			return m, nil
		}
		wasAtBottom := m.viewport.AtBottom()
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		if wasAtBottom && !m.viewport.AtBottom() {
			m.autoScroll = false
		}
		if m.viewport.AtBottom() {
			m.autoScroll = true
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *logsPane) setFilter(level log.Level) {
	m.minLevel = level
	m.refresh()
}

func (m *logsPane) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.render())
	if m.autoScroll {
		m.viewport.GotoBottom()
	}
}

func (m *logsPane) SetSize(w, h int) {
	m.width = w
	m.height = h
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
		m.refresh()
		return
	}
	m.viewport.Width = w
	m.viewport.Height = h
}

func (m logsPane) View() string {
	if !m.ready {
		return ""
	}
	return m.viewport.View()
}

// visible returns the lines at or above the current filter.
func (m logsPane) visible() []logLine {
	out := make([]logLine, 0, len(m.lines))
	for _, line := range m.lines {
		// logrus levels grow towards verbosity.
		if line.level <= m.minLevel {
			out = append(out, line)
		}
	}
	return out
}

func (m logsPane) render() string {
	var sb strings.Builder

	scroll := successStyle.Render("auto-scroll")
	if !m.autoScroll {
		scroll = warningStyle.Render("paused")
	}
	filter := "ALL"
	if m.minLevel < log.TraceLevel {
		filter = strings.ToUpper(m.minLevel.String()) + "+"
	}
	sb.WriteString(titleStyle.Render(fmt.Sprintf(" Logs  %s  filter: %s  lines: %d", scroll, filter, len(m.lines))))
	sb.WriteString("\n")

	lines := m.visible()
	if len(lines) == 0 {
		sb.WriteString(subtitleStyle.Render("Waiting for log output..."))
		return sb.String()
	}
	for _, line := range lines {
		sb.WriteString(logLevelStyle(line.level).Render(line.text))
		sb.WriteString("\n")
	}
	return sb.String()
}
