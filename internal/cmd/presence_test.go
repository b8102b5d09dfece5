package cmd

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/CLIPresence/internal/config"
	"github.com/router-for-me/CLIPresence/internal/session"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestConsolePresenter(t *testing.T) {
	var out bytes.Buffer
	p := newConsolePresenter(&out)
	if p.requestLogin() {
		t.Fatalf("requestLogin succeeded without a bound login")
	}

	calls := 0
	p.OnLoginRequested(func() { calls++ })
	p.SetStatus("Ready to log in")
	p.SetStatus("Ready to log in")
	p.ShowAuthorizeURL("https://example.com/auth")
	if !p.requestLogin() || calls != 1 {
		t.Fatalf("login calls = %d, want 1", calls)
	}

	want := "Status: Ready to log in\nStatus: Ready to log in\nVisit the following URL to continue authentication:\nhttps://example.com/auth\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestRunPresenceRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	if err := RunPresence(context.Background(), cfg, &LoginOptions{Output: &bytes.Buffer{}}); err == nil {
		t.Fatalf("expected error for missing client id")
	}
}

func TestRunPresenceHeadlessStartsLogin(t *testing.T) {
	cfg := config.Default()
	cfg.ClientID = 1234
	out := &syncBuffer{}
	options := &LoginOptions{
		NoBrowser:    true,
		CallbackPort: freePort(t),
		Prompt:       func(string) (string, error) { return "", errors.New("no input") },
		Output:       out,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunPresence(ctx, cfg, options) }()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "client_id=1234") {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("authorization URL not printed; output:\n%s", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunPresence() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("RunPresence did not return after cancel")
	}
	if !strings.HasPrefix(out.String(), "Status: Ready to log in\n") {
		t.Fatalf("output = %q", out.String())
	}
	if !cfg.NoBrowser {
		t.Fatalf("NoBrowser option not applied to config")
	}
}

func TestReloadOverridesKeepFlagValues(t *testing.T) {
	options := &LoginOptions{
		NoBrowser:    true,
		CallbackPort: 6000,
		Overrides: func(cfg *config.Config) error {
			cfg.Debug = true
			return nil
		},
	}
	cfg := config.Default()
	if err := reloadOverrides(options)(cfg); err != nil {
		t.Fatalf("reloadOverrides() error = %v", err)
	}
	if !cfg.Debug || !cfg.NoBrowser || cfg.CallbackPort != 6000 {
		t.Fatalf("overrides not applied: debug=%v no-browser=%v port=%d", cfg.Debug, cfg.NoBrowser, cfg.CallbackPort)
	}

	options.Overrides = func(*config.Config) error { return errors.New("invalid environment") }
	if err := reloadOverrides(options)(config.Default()); err == nil {
		t.Fatalf("expected override error to be returned")
	}
}

func TestConsolePresenterReportsEndedSession(t *testing.T) {
	p := newConsolePresenter(&bytes.Buffer{})
	p.OnPhaseChanged(session.PhaseIdle)
	select {
	case reason := <-p.ended:
		t.Fatalf("idle before any login reported an end: %q", reason)
	default:
	}

	p.OnPhaseChanged(session.PhaseAuthorizing)
	p.OnPhaseChanged(session.PhaseExchanging)
	p.SetStatus(session.StatusTokenRetrievalFailed)
	p.OnPhaseChanged(session.PhaseIdle)

	select {
	case reason := <-p.ended:
		if reason != session.StatusTokenRetrievalFailed {
			t.Fatalf("reason = %q", reason)
		}
	default:
		t.Fatalf("expected the failed login to end the session")
	}
}

func TestRunPresenceHeadlessExitsWhenLoginFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	cfg := config.Default()
	cfg.ClientID = 1234
	options := &LoginOptions{
		NoBrowser:    true,
		CallbackPort: ln.Addr().(*net.TCPAddr).Port,
		Prompt:       func(string) (string, error) { return "", errors.New("no input") },
		Output:       &syncBuffer{},
	}

	done := make(chan error, 1)
	go func() { done <- RunPresence(context.Background(), cfg, options) }()

	select {
	case err = <-done:
		if !errors.Is(err, ErrSessionEnded) {
			t.Fatalf("RunPresence() error = %v, want ErrSessionEnded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("RunPresence kept running after the login failed")
	}
}
