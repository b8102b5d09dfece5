package watcher

import (
	"fmt"
	"slices"

	"github.com/router-for-me/CLIPresence/internal/config"
)

// PresenceChanged reports whether the published activity differs between the two configs.
func PresenceChanged(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return oldCfg.Presence != newCfg.Presence
}

// ChangeDetails describes the fields that differ, one line per field.
// Fields that only take effect on the next login or restart are marked as such.
func ChangeDetails(oldCfg, newCfg *config.Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var changes []string
	add := func(name string, from, to any, note string) {
		line := fmt.Sprintf("%s: %v -> %v", name, from, to)
		if note != "" {
			line += " (" + note + ")"
		}
		changes = append(changes, line)
	}

	if oldCfg.Debug != newCfg.Debug {
		add("debug", oldCfg.Debug, newCfg.Debug, "")
	}
	if oldCfg.PlatformLogLevel != newCfg.PlatformLogLevel {
		add("platform-log-level", oldCfg.PlatformLogLevel, newCfg.PlatformLogLevel, "applies after restart")
	}
	if oldCfg.Presence.Type != newCfg.Presence.Type {
		add("presence.type", oldCfg.Presence.Type, newCfg.Presence.Type, "")
	}
	if oldCfg.Presence.State != newCfg.Presence.State {
		add("presence.state", oldCfg.Presence.State, newCfg.Presence.State, "")
	}
	if oldCfg.Presence.Details != newCfg.Presence.Details {
		add("presence.details", oldCfg.Presence.Details, newCfg.Presence.Details, "")
	}
	if oldCfg.APIBaseURL != newCfg.APIBaseURL {
		add("api-base-url", oldCfg.APIBaseURL, newCfg.APIBaseURL, "applies after restart")
	}
	if oldCfg.GatewayURL != newCfg.GatewayURL {
		add("gateway-url", oldCfg.GatewayURL, newCfg.GatewayURL, "applies after restart")
	}
	if oldCfg.ProxyURL != newCfg.ProxyURL {
		add("proxy-url", redactProxy(oldCfg.ProxyURL), redactProxy(newCfg.ProxyURL), "applies after restart")
	}
	if !slices.Equal(oldCfg.Scopes, newCfg.Scopes) {
		add("scopes", oldCfg.Scopes, newCfg.Scopes, "applies to the next login")
	}
	return changes
}

func redactProxy(raw string) string {
	if raw == "" {
		return "<none>"
	}
	return "<set>"
}
