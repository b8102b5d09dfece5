package session

import (
	"github.com/router-for-me/CLIPresence/internal/config"
	"github.com/router-for-me/CLIPresence/internal/social"
)

// ActivityFromConfig builds the presence payload from the presence section of the config file.
func ActivityFromConfig(p config.PresenceConfig) social.Activity {
	return social.Activity{
		Type:    social.ParseActivityType(p.Type),
		State:   p.State,
		Details: p.Details,
	}
}
