// Package browser opens the authorization URL in the user's default web browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// OpenURL opens url with open-golang, falling back to a platform-specific command.
func OpenURL(url string) error {
	err := open.Run(url)
	if err == nil {
		log.Debug("opened authorization URL with open-golang")
		return nil
	}
	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)

	cmd, errCmd := platformCommand(url)
	if errCmd != nil {
		return errCmd
	}
	if err = cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	log.Debugf("opened authorization URL with %s", cmd.Path)
	return nil
}

// IsAvailable reports whether a command capable of opening a browser exists.
func IsAvailable() bool {
	_, err := platformCommand("about:blank")
	return err == nil
}

func platformCommand(url string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("open"); err != nil {
			return nil, fmt.Errorf("open command not found: %w", err)
		}
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	case "linux", "freebsd", "openbsd":
		for _, candidate := range linuxBrowsers {
			if _, err := exec.LookPath(candidate); err == nil {
				return exec.Command(candidate, url), nil
			}
		}
		return nil, fmt.Errorf("no suitable browser found on %s", runtime.GOOS)
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}
