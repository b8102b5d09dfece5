package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/router-for-me/CLIPresence/internal/session"
)

// consolePresenter prints status changes as plain lines for headless runs.
type consolePresenter struct {
	out   io.Writer
	mu    sync.Mutex
	login func()

	// active is set while a login or a connected session is underway.
	active     bool
	lastStatus string
	ended      chan string
}

func newConsolePresenter(out io.Writer) *consolePresenter {
	return &consolePresenter{out: out, ended: make(chan string, 1)}
}

func (p *consolePresenter) SetStatus(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastStatus = text
	_, _ = fmt.Fprintf(p.out, "Status: %s\n", text)
}

func (p *consolePresenter) OnLoginRequested(fn func()) {
	p.mu.Lock()
	p.login = fn
	p.mu.Unlock()
}

func (p *consolePresenter) ShowAuthorizeURL(authURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, "Visit the following URL to continue authentication:\n%s\n", authURL)
}

// OnPhaseChanged reports on ended when a started session falls back to idle. A headless run
// has no way to start another login, so that is the end of the session.
func (p *consolePresenter) OnPhaseChanged(phase session.Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if phase != session.PhaseIdle {
		if !p.active {
			p.active = true
			p.lastStatus = ""
		}
		return
	}
	if !p.active {
		return
	}
	p.active = false
	reason := p.lastStatus
	if reason == "" {
		reason = "authorization did not complete"
	}
	select {
	case p.ended <- reason:
	default:
	}
}

// requestLogin starts a login as if the user had asked for one.
func (p *consolePresenter) requestLogin() bool {
	p.mu.Lock()
	fn := p.login
	p.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}
