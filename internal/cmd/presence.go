// Package cmd wires the platform client, the session controller, the config watcher and a
// presenter into a runnable login session.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/router-for-me/CLIPresence/internal/config"
	"github.com/router-for-me/CLIPresence/internal/logging"
	"github.com/router-for-me/CLIPresence/internal/session"
	"github.com/router-for-me/CLIPresence/internal/social"
	"github.com/router-for-me/CLIPresence/internal/tui"
	"github.com/router-for-me/CLIPresence/internal/watcher"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LoginOptions contains options for a presence session.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// CallbackPort overrides the local OAuth callback port when set (>0).
	CallbackPort int

	// Prompt allows the caller to provide interactive input when needed.
	// Headless runs read stdin when it is nil; the TUI never prompts.
	Prompt func(prompt string) (string, error)

	// ConfigPath enables hot reload of the presence section when set.
	ConfigPath string

	// Overrides reapplies environment and flag values to a reloaded config file, so that
	// editing the file does not undo them.
	Overrides func(cfg *config.Config) error

	// TUI runs the interactive terminal presenter instead of printing status lines.
	TUI bool

	// LogHook feeds the TUI log pane. Ignored without TUI.
	LogHook *tui.LogHook

	// Output is where status lines or the TUI are written. Defaults to os.Stdout.
	Output io.Writer
}

// ErrSessionEnded is returned by a headless run once its login fails or its connection is
// lost. Restart the process to log in again.
var ErrSessionEnded = errors.New("presence session ended")

// presenter is what the runner needs from either front end.
type presenter interface {
	session.Presenter
	ShowAuthorizeURL(authURL string)
}

// RunPresence logs in and keeps the presence session alive until ctx is done or,
// in TUI mode, the user quits.
func RunPresence(ctx context.Context, cfg *config.Config, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	if cfg == nil {
		cfg = config.Default()
	}
	applyLaunchOptions(cfg, options)
	if err := cfg.Validate(); err != nil {
		return err
	}
	output := options.Output
	if output == nil {
		output = os.Stdout
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		front        presenter
		console      *consolePresenter
		tuiPresenter *tui.Presenter
		promptFn     = options.Prompt
	)
	if options.TUI {
		tuiPresenter = tui.NewPresenter()
		front = tuiPresenter
		promptFn = nil
	} else {
		console = newConsolePresenter(output)
		front = console
		if promptFn == nil {
			promptFn = stdinPrompt(output)
		}
	}

	client := social.NewClient(cfg, social.Options{
		Prompt:         promptFn,
		OnAuthorizeURL: front.ShowAuthorizeURL,
	})
	defer func() { _ = client.Close() }()

	controller := session.New(cfg.ClientID, client,
		session.WithLogSeverity(social.ParseSeverity(cfg.PlatformLogLevel)),
		session.WithActivity(session.ActivityFromConfig(cfg.Presence)),
	)
	if err := controller.Initialize(front); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if options.ConfigPath != "" {
		w, errWatcher := watcher.NewWatcher(options.ConfigPath, func(oldCfg, newCfg *config.Config) {
			logging.SetLogLevel(newCfg)
			applyPresenceChange(controller, oldCfg, newCfg)
		})
		if errWatcher != nil {
			log.Warnf("config hot reload disabled: %v", errWatcher)
		} else {
			w.SetConfig(cfg)
			w.SetOverrides(reloadOverrides(options))
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	if options.TUI {
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx, cfg.ApplicationName, tuiPresenter, options.LogHook, output)
		})
	} else {
		console.requestLogin()
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case reason := <-console.ended:
				return fmt.Errorf("%w: %s", ErrSessionEnded, reason)
			}
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func applyLaunchOptions(cfg *config.Config, options *LoginOptions) {
	if options.NoBrowser {
		cfg.NoBrowser = true
	}
	if options.CallbackPort > 0 {
		cfg.CallbackPort = options.CallbackPort
	}
}

// reloadOverrides keeps flag and environment values in effect across config reloads.
func reloadOverrides(options *LoginOptions) watcher.OverrideFunc {
	return func(cfg *config.Config) error {
		if options.Overrides != nil {
			if err := options.Overrides(cfg); err != nil {
				return err
			}
		}
		applyLaunchOptions(cfg, options)
		return nil
	}
}

// applyPresenceChange republishes presence when the presence section of the config changed.
func applyPresenceChange(controller *session.Controller, oldCfg, newCfg *config.Config) {
	if !watcher.PresenceChanged(oldCfg, newCfg) {
		return
	}
	controller.SetActivity(session.ActivityFromConfig(newCfg.Presence))
	if controller.RefreshPresence() {
		log.Info("presence updated from config")
	} else {
		log.Debug("presence change stored; it will be published once connected")
	}
}

func stdinPrompt(out io.Writer) func(string) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	return func(prompt string) (string, error) {
		_, _ = fmt.Fprint(out, prompt)
		value, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}
