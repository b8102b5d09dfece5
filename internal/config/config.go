package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL   = "https://discord.com/api/v10"
	DefaultAuthorizeURL = "https://discord.com/oauth2/authorize"
	DefaultTokenURL     = "https://discord.com/api/v10/oauth2/token"
	DefaultGatewayURL   = "wss://gateway.discord.gg/?v=10&encoding=json"
	DefaultCallbackPort = 53134
	DefaultAppName      = "CLIPresence"

	DefaultPresenceState   = "In Competitive Match"
	DefaultPresenceDetails = "Rank: Diamond II"
)

// Config is the root of the YAML configuration file.
type Config struct {
	SDKConfig `yaml:",inline"`

	// ClientID is the numeric application identifier.
	ClientID uint64 `yaml:"client-id" json:"client-id"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile writes logs to a rotating file instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is where rotating log files are written. Defaults to "logs".
	LogDir string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`

	// PlatformLogLevel is the minimum severity forwarded from the platform client.
	PlatformLogLevel string `yaml:"platform-log-level" json:"platform-log-level"`

	// Presence is the rich presence published once the connection is ready.
	Presence PresenceConfig `yaml:"presence" json:"presence"`
}

// PresenceConfig is the activity content pushed after the connection becomes ready.
type PresenceConfig struct {
	Type    string `yaml:"type" json:"type"`
	State   string `yaml:"state" json:"state"`
	Details string `yaml:"details" json:"details"`
}

// Default returns a configuration with every endpoint and presence field populated.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the YAML file at configFile and applies defaults for missing fields.
// A missing file yields the default configuration.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		data = nil
	}
	if len(data) > 0 {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up through lookup.
func (c *Config) ApplyEnv(lookup func(keys ...string) (string, bool)) error {
	if value, ok := lookup("PRESENCE_CLIENT_ID", "presence_client_id"); ok {
		id, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid PRESENCE_CLIENT_ID %q: %w", value, err)
		}
		c.ClientID = id
	}
	if value, ok := lookup("PRESENCE_PROXY_URL", "presence_proxy_url"); ok {
		c.ProxyURL = value
	}
	if value, ok := lookup("PRESENCE_GATEWAY_URL", "presence_gateway_url"); ok {
		c.GatewayURL = value
	}
	return nil
}

// Validate reports configuration that cannot produce a working login.
func (c *Config) Validate() error {
	if c.ClientID == 0 {
		return fmt.Errorf("config: client-id is required")
	}
	if c.CallbackPort <= 0 || c.CallbackPort > 65535 {
		return fmt.Errorf("config: callback-port %d is out of range", c.CallbackPort)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if strings.TrimSpace(c.AuthorizeURL) == "" {
		c.AuthorizeURL = DefaultAuthorizeURL
	}
	if strings.TrimSpace(c.TokenURL) == "" {
		c.TokenURL = DefaultTokenURL
	}
	if strings.TrimSpace(c.GatewayURL) == "" {
		c.GatewayURL = DefaultGatewayURL
	}
	if strings.TrimSpace(c.ApplicationName) == "" {
		c.ApplicationName = DefaultAppName
	}
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if strings.TrimSpace(c.LogDir) == "" {
		c.LogDir = "logs"
	}
	if strings.TrimSpace(c.PlatformLogLevel) == "" {
		c.PlatformLogLevel = "error"
	}
	c.PlatformLogLevel = strings.ToLower(strings.TrimSpace(c.PlatformLogLevel))
	if strings.TrimSpace(c.Presence.Type) == "" {
		c.Presence.Type = "playing"
	}
	c.Presence.Type = strings.ToLower(strings.TrimSpace(c.Presence.Type))
	if c.Presence.State == "" {
		c.Presence.State = DefaultPresenceState
	}
	if c.Presence.Details == "" {
		c.Presence.Details = DefaultPresenceDetails
	}
}
