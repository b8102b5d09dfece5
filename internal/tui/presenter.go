package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/router-for-me/CLIPresence/internal/session"
)

type statusMsg string

type authURLMsg string

type phaseMsg session.Phase

// Presenter bridges the session controller to a running bubbletea program.
// Calls made before the program is attached are remembered and replayed by App.Init.
type Presenter struct {
	mu      sync.Mutex
	program *tea.Program
	status  string
	authURL string
	phase   session.Phase
	login   func()
}

// NewPresenter returns a presenter with no program attached.
func NewPresenter() *Presenter {
	return &Presenter{}
}

// SetStatus replaces the status line.
func (p *Presenter) SetStatus(text string) {
	p.mu.Lock()
	p.status = text
	program := p.program
	p.mu.Unlock()
	if program != nil {
		program.Send(statusMsg(text))
	}
}

// OnLoginRequested registers the function run when the user presses the login key.
func (p *Presenter) OnLoginRequested(fn func()) {
	p.mu.Lock()
	p.login = fn
	p.mu.Unlock()
}

// ShowAuthorizeURL displays the URL the user must visit to grant access.
func (p *Presenter) ShowAuthorizeURL(authURL string) {
	p.mu.Lock()
	p.authURL = authURL
	program := p.program
	p.mu.Unlock()
	if program != nil {
		program.Send(authURLMsg(authURL))
	}
}

// OnPhaseChanged tracks the login phase so progress is shown while a login is underway.
func (p *Presenter) OnPhaseChanged(phase session.Phase) {
	p.mu.Lock()
	p.phase = phase
	program := p.program
	p.mu.Unlock()
	if program != nil {
		program.Send(phaseMsg(phase))
	}
}

func (p *Presenter) currentPhase() session.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Status returns the last status set.
func (p *Presenter) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Presenter) attach(program *tea.Program) {
	p.mu.Lock()
	p.program = program
	p.mu.Unlock()
}

func (p *Presenter) detach() {
	p.attach(nil)
}

func (p *Presenter) snapshot() (status, authURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.authURL
}

// requestLogin runs the registered login function. It reports false when none is bound.
func (p *Presenter) requestLogin() bool {
	p.mu.Lock()
	fn := p.login
	p.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}
