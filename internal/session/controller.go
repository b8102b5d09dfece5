// Package session implements the login lifecycle: PKCE authorization, code exchange, bearer
// registration, connection and the rich presence push that follows readiness.
//
// The controller owns no goroutines. Every exported method is a reaction to one inbound event
// (a user action or a platform callback) and returns without blocking.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/router-for-me/CLIPresence/internal/logging"
	"github.com/router-for-me/CLIPresence/internal/social"
	log "github.com/sirupsen/logrus"
)

// Presenter status lines produced by the controller itself.
const (
	StatusReadyToLogin         = "Ready to log in"
	StatusTokenRetrievalFailed = "token retrieval failed"
	StatusTokenUpdateFailed    = "token update failed"
)

// ErrAlreadyInitialized is returned by a second Initialize call.
var ErrAlreadyInitialized = errors.New("session: controller already initialized")

// attempt is one login round-trip. The verifier never leaves the attempt that created it.
type attempt struct {
	id       string
	verifier social.AuthorizationVerifier
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogSeverity sets the minimum platform log severity forwarded to the application log.
func WithLogSeverity(severity social.LoggingSeverity) Option {
	return func(c *Controller) { c.logSeverity = severity }
}

// WithActivity sets the presence published once the connection is ready.
func WithActivity(activity social.Activity) Option {
	return func(c *Controller) { c.activity = activity }
}

// Controller is the session state machine.
type Controller struct {
	clientID    uint64
	platform    PlatformClient
	logSeverity social.LoggingSeverity

	mu          sync.Mutex
	presenter   Presenter
	initialized bool
	phase       Phase
	current     *attempt
	activity    social.Activity
}

// New creates a controller for clientID. Call Initialize before use.
func New(clientID uint64, platform PlatformClient, opts ...Option) *Controller {
	c := &Controller{
		clientID:    clientID,
		platform:    platform,
		logSeverity: social.SeverityError,
		phase:       PhaseIdle,
		activity: social.Activity{
			Type:    social.ActivityPlaying,
			State:   "In Competitive Match",
			Details: "Rank: Diamond II",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize registers the platform sinks and binds the presenter's login trigger.
func (c *Controller) Initialize(presenter Presenter) error {
	if c.platform == nil {
		log.Error("session: platform client is required")
		return errors.New("session: platform client is required")
	}
	if presenter == nil {
		log.Error("session: presenter is required to show status and receive login requests")
		return errors.New("session: presenter is required")
	}

	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.presenter = presenter
	c.mu.Unlock()

	c.platform.AddLogCallback(c.onLog, c.logSeverity)
	c.platform.SetStatusChangedCallback(c.OnStatusChanged)
	presenter.OnLoginRequested(c.StartLogin)
	presenter.SetStatus(StatusReadyToLogin)
	return nil
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// StartLogin begins a new authorization attempt.
//
// While idle or still authorizing, the new attempt supersedes the previous one and late
// results for the old attempt are ignored. Once the code has been exchanged the request is
// rejected until the session returns to idle.
func (c *Controller) StartLogin() {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		log.Warn("login requested before the session was initialized")
		return
	}
	switch c.phase {
	case PhaseExchanging, PhaseTokenUpdating, PhaseConnecting, PhaseReady:
		phase := c.phase
		c.mu.Unlock()
		log.WithField("phase", phase).Warn("login already in progress; ignoring request")
		return
	}

	verifier, err := c.platform.CreateAuthorizationCodeVerifier()
	if err != nil {
		changed := c.phase != PhaseIdle
		c.phase = PhaseIdle
		c.current = nil
		c.mu.Unlock()
		log.WithError(err).Error("failed to create authorization verifier")
		if changed {
			c.notifyPhase(PhaseIdle)
		}
		return
	}
	if c.current != nil {
		log.WithField("attempt", c.current.id).Info("superseding previous login attempt")
	}
	a := &attempt{id: uuid.NewString(), verifier: verifier}
	c.current = a
	c.phase = PhaseAuthorizing
	c.mu.Unlock()
	c.notifyPhase(PhaseAuthorizing)

	args := social.AuthorizationArgs{
		ClientID:      c.clientID,
		Scopes:        c.platform.DefaultPresenceScopes(),
		CodeChallenge: verifier.Challenge,
	}
	log.WithFields(log.Fields{"attempt": a.id, "phase": PhaseAuthorizing}).Info("starting authorization")
	c.platform.Authorize(args, func(outcome social.AuthorizationOutcome) {
		c.onAuthorizeResult(a, outcome)
	})
}

// advance moves from one phase to the next if a is still the current attempt in phase from.
func (c *Controller) advance(a *attempt, from, to Phase) bool {
	c.mu.Lock()
	if c.current != a || c.phase != from {
		c.mu.Unlock()
		return false
	}
	c.phase = to
	c.mu.Unlock()
	c.notifyPhase(to)
	return true
}

// abandon returns a to idle when it is still current.
func (c *Controller) abandon(a *attempt) {
	c.mu.Lock()
	if c.current != a {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.phase = PhaseIdle
	c.mu.Unlock()
	c.notifyPhase(PhaseIdle)
}

func (c *Controller) onAuthorizeResult(a *attempt, outcome social.AuthorizationOutcome) {
	entry := log.WithField("attempt", a.id)
	entry.Infof("Authorization Result: [%s] [%s] [%s]", outcome.Result.Error, logging.Redact(outcome.Code), outcome.RedirectURI)

	if !outcome.Result.Successful {
		c.mu.Lock()
		stale := c.current != a
		c.mu.Unlock()
		if stale {
			entry.Debug("ignoring failed result of a superseded attempt")
			return
		}
		entry.WithField("error", outcome.Result.Error).Warnf("authorization failed: %s", outcome.Result.Message)
		c.abandon(a)
		return
	}

	if !c.advance(a, PhaseAuthorizing, PhaseExchanging) {
		entry.Debug("ignoring authorization result of a superseded attempt")
		return
	}
	c.exchangeToken(a, outcome.Code, outcome.RedirectURI)
}

func (c *Controller) exchangeToken(a *attempt, code, redirectURI string) {
	log.WithFields(log.Fields{"attempt": a.id, "phase": PhaseExchanging}).Debug("exchanging authorization code")
	c.platform.GetToken(c.clientID, code, a.verifier.Verifier, redirectURI, func(result social.ClientResult, token social.TokenBundle) {
		entry := log.WithField("attempt", a.id)
		if token.AccessToken == "" {
			c.mu.Lock()
			stale := c.current != a || c.phase != PhaseExchanging
			c.mu.Unlock()
			if stale {
				entry.Debug("ignoring token result of a superseded attempt")
				return
			}
			entry.WithField("error", result.Error).Error("token retrieval failed")
			c.setStatus(StatusTokenRetrievalFailed)
			c.abandon(a)
			return
		}
		if !c.advance(a, PhaseExchanging, PhaseTokenUpdating) {
			entry.Debug("ignoring token of a superseded attempt")
			return
		}
		c.onTokenReceived(a, token.AccessToken)
	})
}

func (c *Controller) onTokenReceived(a *attempt, token string) {
	entry := log.WithFields(log.Fields{"attempt": a.id, "phase": PhaseTokenUpdating})
	entry.Infof("Received token: %s", logging.Redact(token))

	c.platform.UpdateToken(social.TokenTypeBearer, token, func(result social.ClientResult) {
		if !result.Successful {
			c.mu.Lock()
			stale := c.current != a || c.phase != PhaseTokenUpdating
			c.mu.Unlock()
			if stale {
				return
			}
			entry.WithField("error", result.Error).Errorf("token update failed: %s", result.Message)
			c.setStatus(StatusTokenUpdateFailed)
			c.abandon(a)
			return
		}
		if !c.advance(a, PhaseTokenUpdating, PhaseConnecting) {
			return
		}
		entry.Debug("token accepted; connecting")
		c.platform.Connect()
	})
}

// OnStatusChanged reacts to the platform's connection status.
func (c *Controller) OnStatusChanged(status social.Status, errKind social.ErrorKind, errorCode int) {
	log.WithField("status", status.String()).Info("Status Changed")
	c.setStatus(status.String())
	if errKind != social.ErrorNone {
		log.WithFields(log.Fields{"error_kind": errKind.String(), "error_code": errorCode}).Error("platform reported an error")
	}

	c.mu.Lock()
	before := c.phase
	enterReady := false
	switch {
	case status == social.StatusReady:
		enterReady = c.phase != PhaseReady
		c.phase = PhaseReady
	case status == social.StatusDisconnected:
		if c.phase == PhaseConnecting || c.phase == PhaseReady {
			c.phase = PhaseIdle
			c.current = nil
		}
	case c.phase == PhaseReady:
		// Reconnecting and similar: presence is pushed again once Ready returns.
		c.phase = PhaseConnecting
	}
	after := c.phase
	c.mu.Unlock()

	if after != before {
		c.notifyPhase(after)
	}
	if enterReady {
		c.onReady()
	}
}

func (c *Controller) onReady() {
	relationships := c.platform.GetRelationships()
	log.Infof("Friend Count: %d", len(relationships))
	c.pushPresence()
}

func (c *Controller) pushPresence() {
	c.mu.Lock()
	activity := c.activity
	c.mu.Unlock()

	c.platform.UpdateRichPresence(activity, func(result social.ClientResult) {
		if result.Successful {
			log.Info("Rich presence updated!")
			return
		}
		log.WithField("error", result.Error).Error("Failed to update rich presence")
	})
}

// SetActivity replaces the presence content used by future pushes.
func (c *Controller) SetActivity(activity social.Activity) {
	c.mu.Lock()
	c.activity = activity
	c.mu.Unlock()
}

// RefreshPresence re-publishes the current activity when the session is ready.
// It reports whether a push was issued.
func (c *Controller) RefreshPresence() bool {
	if c.Phase() != PhaseReady {
		return false
	}
	c.pushPresence()
	return true
}

func (c *Controller) setStatus(text string) {
	c.mu.Lock()
	presenter := c.presenter
	c.mu.Unlock()
	if presenter != nil {
		presenter.SetStatus(text)
	}
}

func (c *Controller) notifyPhase(phase Phase) {
	c.mu.Lock()
	observer, ok := c.presenter.(PhaseObserver)
	c.mu.Unlock()
	if ok {
		observer.OnPhaseChanged(phase)
	}
}

func (c *Controller) onLog(message string, severity social.LoggingSeverity) {
	entry := log.WithFields(log.Fields{"source": "platform", "severity": severity.String()})
	switch severity {
	case social.SeverityVerbose:
		entry.Debug(message)
	case social.SeverityInfo:
		entry.Info(message)
	case social.SeverityWarning:
		entry.Warn(message)
	default:
		entry.Error(message)
	}
}
