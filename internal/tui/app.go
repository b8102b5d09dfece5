package tui

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/router-for-me/CLIPresence/internal/browser"
	"github.com/router-for-me/CLIPresence/internal/session"
)

// Replaced in tests.
var (
	writeClipboard = clipboard.WriteAll
	openURL        = browser.OpenURL
)

// transitional statuses show the spinner.
var transitional = map[string]bool{
	"Connecting":    true,
	"Connected":     true,
	"Reconnecting":  true,
	"Disconnecting": true,
	"HttpWait":      true,
}

func isFailureStatus(status string) bool {
	return strings.HasSuffix(status, "failed")
}

// snapshotMsg carries what the presenter received before the program was attached.
type snapshotMsg struct {
	status  string
	authURL string
}

type noticeMsg struct {
	text string
	err  bool
}

// loginDoneMsg reports whether a login is underway once the request has been handled.
type loginDoneMsg struct {
	inFlight bool
	notice   noticeMsg
}

// App is the root bubbletea model.
type App struct {
	presenter *Presenter
	appName   string

	status  string
	authURL string
	waiting bool
	notice  noticeMsg

	spinner spinner.Model
	logs    logsPane

	width  int
	height int
	ready  bool
}

// NewApp creates the root model. hook may be nil, in which case no log pane is shown.
func NewApp(appName string, presenter *Presenter, hook *LogHook) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPrimary)
	status, authURL := presenter.snapshot()
	return App{
		presenter: presenter,
		appName:   appName,
		status:    status,
		authURL:   authURL,
		spinner:   sp,
		logs:      newLogsPane(hook),
	}
}

func (a App) Init() tea.Cmd {
	presenter := a.presenter
	replay := func() tea.Msg {
		status, authURL := presenter.snapshot()
		return snapshotMsg{status: status, authURL: authURL}
	}
	return tea.Batch(replay, a.spinner.Tick, a.logs.Init())
}

func (a App) busy() bool {
	return a.waiting || transitional[a.status]
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		logsH := a.height - 10
		if logsH < 1 {
			logsH = 1
		}
		a.logs.SetSize(a.width, logsH)
		return a, nil

	case statusMsg:
		a.status = string(msg)
		if isFailureStatus(a.status) {
			a.waiting = false
		}
		if a.status == "Ready" {
			a.authURL = ""
		}
		return a, nil

	case snapshotMsg:
		if msg.status != "" {
			a.status = msg.status
		}
		if msg.authURL != "" {
			a.authURL = msg.authURL
		}
		return a, nil

	case authURLMsg:
		a.authURL = string(msg)
		return a, nil

	case phaseMsg:
		a.waiting = session.Phase(msg).InFlight()
		return a, nil

	case loginDoneMsg:
		a.waiting = msg.inFlight
		if msg.notice.text != "" {
			a.notice = msg.notice
		}
		return a, nil

	case noticeMsg:
		a.notice = msg
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case logLineMsg:
		var cmd tea.Cmd
		a.logs, cmd = a.logs.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "l", "enter":
			if transitional[a.status] {
				return a, nil
			}
			a.waiting = true
			a.notice = noticeMsg{}
			return a, a.login()
		case "c":
			if a.authURL == "" {
				return a, nil
			}
			if err := writeClipboard(a.authURL); err != nil {
				a.notice = noticeMsg{text: "Copy failed: " + err.Error(), err: true}
			} else {
				a.notice = noticeMsg{text: "Authorization URL copied to clipboard"}
			}
			return a, nil
		case "o":
			if a.authURL == "" {
				return a, nil
			}
			return a, a.openAuthURL()
		}
		var cmd tea.Cmd
		a.logs, cmd = a.logs.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.logs, cmd = a.logs.Update(msg)
	return a, cmd
}

// login runs the controller's StartLogin outside the event loop, since it may call back
// into the presenter.
func (a App) login() tea.Cmd {
	presenter := a.presenter
	return func() tea.Msg {
		if !presenter.requestLogin() {
			return loginDoneMsg{notice: noticeMsg{text: "Login is not available yet", err: true}}
		}
		return loginDoneMsg{inFlight: presenter.currentPhase().InFlight()}
	}
}

func (a App) openAuthURL() tea.Cmd {
	authURL := a.authURL
	return func() tea.Msg {
		if err := openURL(authURL); err != nil {
			return noticeMsg{text: "Could not open browser: " + err.Error(), err: true}
		}
		return noticeMsg{text: "Opened authorization page"}
	}
}

func (a App) View() string {
	if !a.ready {
		return "Initializing..."
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Width(a.width).Render(a.appName))
	sb.WriteString("\n")
	sb.WriteString(a.renderSession())
	sb.WriteString("\n")
	if a.logs.hook != nil {
		sb.WriteString(a.logs.View())
		sb.WriteString("\n")
	}
	sb.WriteString(a.renderStatusBar())
	return sb.String()
}

func (a App) renderSession() string {
	var sb strings.Builder

	status := a.status
	if status == "" {
		status = "-"
	}
	sb.WriteString(labelStyle.Render("Status"))
	if a.busy() {
		sb.WriteString(a.spinner.View())
		sb.WriteString(" ")
	}
	sb.WriteString(statusStyle(a.status).Render(status))

	if a.authURL != "" {
		sb.WriteString("\n")
		sb.WriteString(labelStyle.Render("Authorize"))
		sb.WriteString(valueStyle.Render(fitStringWidth(a.authURL, max(a.width-16, 16))))
		sb.WriteString("\n")
		sb.WriteString(subtitleStyle.Render("Finish the login in your browser. Press c to copy the URL or o to open it."))
	}
	if a.notice.text != "" {
		sb.WriteString("\n")
		if a.notice.err {
			sb.WriteString(errorStyle.Render(a.notice.text))
		} else {
			sb.WriteString(successStyle.Render(a.notice.text))
		}
	}
	return sectionStyle.Width(max(a.width-2, 1)).Render(sb.String())
}

func (a App) renderStatusBar() string {
	help := "l: log in • c: copy URL • o: open URL • a: auto-scroll • 1-4: filter • q: quit"
	width := max(a.width, 1)
	return statusBarStyle.Width(width).Render(fitStringWidth(help, max(width-2, 0)))
}

func fitStringWidth(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(text) <= maxWidth {
		return text
	}
	out := ""
	for _, r := range text {
		next := out + string(r)
		if lipgloss.Width(next) > maxWidth {
			break
		}
		out = next
	}
	return out
}

// Run drives the TUI until the user quits or ctx is cancelled.
// output specifies where bubbletea renders. If nil, defaults to os.Stdout.
func Run(ctx context.Context, appName string, presenter *Presenter, hook *LogHook, output io.Writer) error {
	if output == nil {
		output = os.Stdout
	}
	app := NewApp(appName, presenter, hook)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithOutput(output), tea.WithContext(ctx))
	presenter.attach(p)
	defer presenter.detach()
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
