// Package main provides the entry point for the presence login client.
// It logs the user in through the platform's PKCE flow, connects to the gateway and
// publishes the configured rich presence once the connection is ready.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/CLIPresence/internal/buildinfo"
	"github.com/router-for-me/CLIPresence/internal/cmd"
	"github.com/router-for-me/CLIPresence/internal/config"
	"github.com/router-for-me/CLIPresence/internal/logging"
	"github.com/router-for-me/CLIPresence/internal/tui"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var configPath string
	var clientID uint64
	var noBrowser bool
	var oauthCallbackPort int
	var tuiMode bool
	var debug bool
	var showVersion bool

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.Uint64Var(&clientID, "client-id", 0, "Application client id (overrides config)")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.IntVar(&oauthCallbackPort, "oauth-callback-port", 0, "Override OAuth callback port (defaults to config callback-port)")
	flag.BoolVar(&tuiMode, "tui", false, "Start with terminal UI")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")

	flag.CommandLine.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "Usage of %s\n", os.Args[0])
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			s := fmt.Sprintf("  -%s", f.Name)
			name, unquoteUsage := flag.UnquoteUsage(f)
			if name != "" {
				s += " " + name
			}
			if len(s) <= 4 {
				s += "	"
			} else {
				s += "\n    "
			}
			if unquoteUsage != "" {
				s += unquoteUsage
			}
			if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
				s += fmt.Sprintf(" (default %s)", f.DefValue)
			}
			_, _ = fmt.Fprint(out, s+"\n")
		})
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("CLIPresence Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	lookupEnv := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if value, ok := os.LookupEnv(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed, true
				}
			}
		}
		return "", false
	}

	if configPath == "" {
		if value, ok := lookupEnv("PRESENCE_CONFIG", "presence_config"); ok {
			configPath = value
		} else {
			configPath = filepath.Join(wd, "config.yaml")
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}
	overrides := func(c *config.Config) error {
		if errEnv := c.ApplyEnv(lookupEnv); errEnv != nil {
			return fmt.Errorf("invalid environment: %w", errEnv)
		}
		if clientID != 0 {
			c.ClientID = clientID
		}
		if debug {
			c.Debug = true
		}
		return nil
	}
	if err = overrides(cfg); err != nil {
		log.Error(err)
		os.Exit(1)
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	logging.SetLogLevel(cfg)
	log.Infof("CLIPresence Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	options := &cmd.LoginOptions{
		NoBrowser:    noBrowser,
		CallbackPort: oauthCallbackPort,
		TUI:          tuiMode,
		Overrides:    overrides,
	}
	if _, errStat := os.Stat(configPath); errStat == nil {
		options.ConfigPath = configPath
	}

	if !tuiMode {
		if errRun := cmd.RunPresence(ctx, cfg, options); errRun != nil {
			log.Errorf("presence session failed: %v", errRun)
			os.Exit(1)
		}
		return
	}

	hook := tui.NewLogHook(2000)
	hook.SetFormatter(&logging.LogFormatter{})
	log.AddHook(hook)

	origStdout := os.Stdout
	origStderr := os.Stderr
	if !cfg.LoggingToFile {
		logging.RedirectOutput(io.Discard)
	}
	devNull, errOpenDevNull := os.Open(os.DevNull)
	if errOpenDevNull == nil {
		os.Stdout = devNull
		os.Stderr = devNull
	}
	restoreIO := func() {
		os.Stdout = origStdout
		os.Stderr = origStderr
		if errConfigure := logging.ConfigureLogOutput(cfg); errConfigure != nil {
			fmt.Fprintf(origStderr, "failed to restore log output: %v\n", errConfigure)
		}
		if devNull != nil {
			_ = devNull.Close()
		}
	}

	options.LogHook = hook
	options.Output = origStdout
	errRun := cmd.RunPresence(ctx, cfg, options)
	restoreIO()
	if errRun != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", errRun)
		os.Exit(1)
	}
}
