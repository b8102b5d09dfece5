// Package social implements the platform client the session controller drives: PKCE
// authorization through the system browser, the authorization-code exchange, bearer token
// validation, the gateway websocket and rich presence updates.
//
// Every callback registered with or passed to a Client is invoked from a single dispatch
// goroutine, one at a time, in the order the events occurred.
package social

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/CLIPresence/internal/config"
	log "github.com/sirupsen/logrus"
)

const (
	defaultHTTPTimeout     = 30 * time.Second
	defaultCallbackTimeout = 5 * time.Minute
	manualPromptDelay      = 15 * time.Second
)

// defaultPresenceScopes is what a presence-only application asks for.
var defaultPresenceScopes = []string{"openid", "sdk.social_layer_presence"}

// PromptFunc reads one line of user input, used for pasting the redirect URL manually.
type PromptFunc func(prompt string) (string, error)

// Options customise a Client beyond what the configuration file carries.
type Options struct {
	// HTTPClient overrides the client used for token and REST requests.
	HTTPClient *http.Client
	// Prompt enables pasting the redirect URL when the browser callback does not arrive.
	Prompt PromptFunc
	// OnAuthorizeURL receives every authorization URL before the browser is opened.
	OnAuthorizeURL func(authURL string)
}

// Client is the concrete platform client.
type Client struct {
	cfg        config.SDKConfig
	httpClient *http.Client
	logger     *log.Logger
	opts       Options

	ctx    context.Context
	cancel context.CancelFunc

	queueMu   sync.Mutex
	queue     []func()
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	statusCB      StatusChangedCallback
	status        Status
	token         string
	tokenType     AuthorizationTokenType
	user          RelationshipUser
	relationships []Relationship
	gateway       *gatewaySession
	authCancel    context.CancelFunc
	authDone      chan struct{}
}

// NewClient builds a Client from the SDK section of cfg and starts its dispatch goroutine.
func NewClient(cfg *config.Config, opts Options) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.TraceLevel)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(&cfg.SDKConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg.SDKConfig,
		httpClient: httpClient,
		logger:     logger,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		status:     StatusDisconnected,
	}
	go c.runDispatcher()
	return c
}

func newHTTPClient(cfg *config.SDKConfig) *http.Client {
	timeout := defaultHTTPTimeout
	if cfg.HTTPTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	settings, err := proxySettingsFor(cfg.ProxyURL)
	if err != nil {
		log.Warnf("ignoring proxy-url: %v", err)
	}
	if settings.proxy != nil {
		transport.Proxy = settings.proxy
	}
	if settings.dial != nil {
		transport.Proxy = nil
		transport.DialContext = settings.dial
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Close disconnects the gateway, cancels pending work and stops the dispatcher.
// Callbacks queued before Close may still run; nothing is delivered afterwards.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.Disconnect()
		c.cancel()
		close(c.done)
	})
	return nil
}

// dispatch queues fn for the dispatch goroutine. It never blocks.
func (c *Client) dispatch(fn func()) {
	if fn == nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	c.queueMu.Lock()
	c.queue = append(c.queue, fn)
	c.queueMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) runDispatcher() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			c.queueMu.Lock()
			if len(c.queue) == 0 {
				c.queueMu.Unlock()
				break
			}
			fn := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.queueMu.Unlock()
			c.invoke(fn)
		}
	}
}

func (c *Client) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("callback panicked: %v", r)
		}
	}()
	fn()
}

// AddLogCallback forwards the client's own diagnostics at or above minSeverity to cb.
func (c *Client) AddLogCallback(cb LogCallback, minSeverity LoggingSeverity) {
	if cb == nil {
		return
	}
	c.logger.AddHook(&logCallbackHook{client: c, cb: cb, levels: levelsFor(minSeverity)})
}

// SetStatusChangedCallback replaces the status sink.
func (c *Client) SetStatusChangedCallback(cb StatusChangedCallback) {
	c.mu.Lock()
	c.statusCB = cb
	c.mu.Unlock()
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(status Status, errKind ErrorKind, errorCode int) {
	c.mu.Lock()
	c.status = status
	cb := c.statusCB
	c.mu.Unlock()

	entry := c.logger.WithField("status", status.String())
	if errKind != ErrorNone {
		entry.WithField("error_kind", errKind.String()).Warnf("connection status changed (code %d)", errorCode)
	} else {
		entry.Info("connection status changed")
	}
	if cb != nil {
		c.dispatch(func() { cb(status, errKind, errorCode) })
	}
}

// DefaultPresenceScopes returns the scopes requested for a presence login.
func (c *Client) DefaultPresenceScopes() []string {
	if len(c.cfg.Scopes) > 0 {
		return append([]string(nil), c.cfg.Scopes...)
	}
	return append([]string(nil), defaultPresenceScopes...)
}

// CreateAuthorizationCodeVerifier returns a fresh PKCE pair.
func (c *Client) CreateAuthorizationCodeVerifier() (AuthorizationVerifier, error) {
	v, err := GenerateVerifier()
	if err != nil {
		c.logger.Errorf("PKCE generation failed: %v", err)
	}
	return v, err
}

// GetRelationships returns a snapshot of the relationships received on the gateway.
func (c *Client) GetRelationships() []Relationship {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Relationship(nil), c.relationships...)
}

// CurrentUser returns the user the bearer token belongs to, once UpdateToken has succeeded.
func (c *Client) CurrentUser() RelationshipUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.APIBaseURL, "/"), strings.TrimLeft(path, "/"))
}

// logCallbackHook turns entries of the client's private logger into LogCallback invocations.
type logCallbackHook struct {
	client *Client
	cb     LogCallback
	levels []log.Level
}

func (h *logCallbackHook) Levels() []log.Level {
	return h.levels
}

func (h *logCallbackHook) Fire(entry *log.Entry) error {
	message := strings.TrimRight(entry.Message, "\r\n")
	if status, ok := entry.Data["status"]; ok {
		message = fmt.Sprintf("%s status=%v", message, status)
	}
	if kind, ok := entry.Data["error_kind"]; ok {
		message = fmt.Sprintf("%s error_kind=%v", message, kind)
	}
	severity := severityOf(entry.Level)
	cb := h.cb
	h.client.dispatch(func() { cb(message, severity) })
	return nil
}

func severityOf(level log.Level) LoggingSeverity {
	switch level {
	case log.TraceLevel, log.DebugLevel:
		return SeverityVerbose
	case log.InfoLevel:
		return SeverityInfo
	case log.WarnLevel:
		return SeverityWarning
	default:
		return SeverityError
	}
}

func levelsFor(minSeverity LoggingSeverity) []log.Level {
	var levels []log.Level
	for _, level := range log.AllLevels {
		if minSeverity != SeverityNone && severityOf(level) >= minSeverity {
			levels = append(levels, level)
		}
	}
	return levels
}
