// Package config provides configuration management for the presence login client.
// It handles loading and parsing the YAML configuration file and provides structured
// access to the platform endpoints, callback settings, logging and presence content.
package config

// SDKConfig holds the settings consumed by the platform client.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// APIBaseURL is the REST API root, e.g. "https://discord.com/api/v10".
	APIBaseURL string `yaml:"api-base-url" json:"api-base-url"`

	// AuthorizeURL is the OAuth2 authorization endpoint opened in the browser.
	AuthorizeURL string `yaml:"authorize-url" json:"authorize-url"`

	// TokenURL is the OAuth2 token endpoint used for the code exchange.
	TokenURL string `yaml:"token-url" json:"token-url"`

	// GatewayURL is the websocket endpoint of the live connection.
	GatewayURL string `yaml:"gateway-url" json:"gateway-url"`

	// ApplicationName is the activity name shown alongside rich presence.
	ApplicationName string `yaml:"application-name" json:"application-name"`

	// Scopes overrides the default presence scopes when non-empty.
	Scopes []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`

	// CallbackPort is the local port of the OAuth redirect listener.
	CallbackPort int `yaml:"callback-port" json:"callback-port"`

	// CallbackTimeoutSeconds bounds how long the redirect listener waits. <= 0 uses the default.
	CallbackTimeoutSeconds int `yaml:"callback-timeout-seconds,omitempty" json:"callback-timeout-seconds,omitempty"`

	// HTTPTimeoutSeconds bounds REST and token requests. <= 0 uses the default.
	HTTPTimeoutSeconds int `yaml:"http-timeout-seconds,omitempty" json:"http-timeout-seconds,omitempty"`

	// NoBrowser disables opening the authorization URL automatically.
	NoBrowser bool `yaml:"no-browser" json:"no-browser"`
}
