package social

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/router-for-me/CLIPresence/internal/browser"
	"github.com/router-for-me/CLIPresence/internal/logging"
	"golang.org/x/oauth2"
)

// oauthConfig describes the public PKCE client identified by clientID.
func (c *Client) oauthConfig(clientID uint64, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: strconv.FormatUint(clientID, 10),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.AuthorizeURL,
			TokenURL:  c.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      scopes,
	}
}

// AuthorizationURL builds the URL the user visits to grant access.
func (c *Client) AuthorizationURL(args AuthorizationArgs, redirectURI, state string) string {
	conf := c.oauthConfig(args.ClientID, redirectURI, args.Scopes)
	return conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", args.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Authorize runs one browser authorization round-trip and reports it to cb exactly once.
// Starting a new authorization cancels one that is still waiting for its redirect.
func (c *Client) Authorize(args AuthorizationArgs, cb AuthorizeCallback) {
	c.mu.Lock()
	prevCancel, prevDone := c.authCancel, c.authDone
	ctx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.authCancel, c.authDone = cancel, done
	c.mu.Unlock()

	if prevCancel != nil {
		c.logger.Info("superseding pending authorization")
		prevCancel()
	}

	go func() {
		defer close(done)
		defer cancel()
		if prevDone != nil {
			// The previous listener must release the callback port first.
			<-prevDone
		}
		outcome := c.runAuthorize(ctx, args)
		if cb != nil {
			c.dispatch(func() { cb(outcome) })
		}
	}()
}

func (c *Client) runAuthorize(ctx context.Context, args AuthorizationArgs) AuthorizationOutcome {
	if args.CodeChallenge == "" {
		c.logger.Error("authorization requested without a code challenge")
		return AuthorizationOutcome{Result: Failure(errors.New("code challenge is required"))}
	}

	state, err := GenerateState()
	if err != nil {
		return AuthorizationOutcome{Result: Failure(err)}
	}

	server := NewCallbackServer(c.cfg.CallbackPort)
	if err = server.Start(); err != nil {
		c.logger.Errorf("callback server: %v", err)
		return AuthorizationOutcome{Result: Failure(err)}
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if errStop := server.Stop(stopCtx); errStop != nil {
			c.logger.Warnf("callback server stop error: %v", errStop)
		}
	}()

	redirectURI := server.RedirectURI()
	authURL := c.AuthorizationURL(args, redirectURI, state)
	if c.opts.OnAuthorizeURL != nil {
		notify := c.opts.OnAuthorizeURL
		c.dispatch(func() { notify(authURL) })
	}

	manualNeeded := c.cfg.NoBrowser
	if !c.cfg.NoBrowser {
		if !browser.IsAvailable() {
			c.logger.Warn("no browser available; open the authorization URL manually")
			manualNeeded = true
		} else if errOpen := browser.OpenURL(authURL); errOpen != nil {
			c.logger.Warnf("failed to open browser automatically: %v", errOpen)
			manualNeeded = true
		}
	}
	if manualNeeded {
		c.logger.Infof("visit the following URL to continue authentication: %s", authURL)
	}

	result, err := c.waitForCallback(ctx, server)
	if err != nil {
		c.logger.Errorf("authorization did not complete: %v", err)
		return AuthorizationOutcome{Result: Failure(err), RedirectURI: redirectURI}
	}
	if result.Error != "" {
		oauthErr := NewOAuthError(result.Error, result.ErrorDescription, http.StatusBadRequest)
		c.logger.Errorf("authorization rejected: %v", oauthErr)
		return AuthorizationOutcome{Result: Failure(oauthErr), RedirectURI: redirectURI}
	}
	if result.State != state {
		c.logger.Errorf("state mismatch: expected %s, got %s", logging.Redact(state), logging.Redact(result.State))
		return AuthorizationOutcome{Result: Failure(ErrInvalidState), RedirectURI: redirectURI}
	}

	c.logger.Debugf("authorization code received: %s", logging.Redact(result.Code))
	return AuthorizationOutcome{Result: Success(), Code: result.Code, RedirectURI: redirectURI}
}

// waitForCallback waits for the browser redirect; when a Prompt is configured it also offers
// pasting the redirect URL after a short delay.
func (c *Client) waitForCallback(ctx context.Context, server *CallbackServer) (*CallbackResult, error) {
	timeout := defaultCallbackTimeout
	if c.cfg.CallbackTimeoutSeconds > 0 {
		timeout = time.Duration(c.cfg.CallbackTimeoutSeconds) * time.Second
	}

	callbackCh := make(chan *CallbackResult, 1)
	callbackErrCh := make(chan error, 1)
	go func() {
		result, errWait := server.WaitForCallback(ctx, timeout)
		if errWait != nil {
			callbackErrCh <- errWait
			return
		}
		callbackCh <- result
	}()

	var manualPromptC <-chan time.Time
	if c.opts.Prompt != nil {
		timer := time.NewTimer(manualPromptDelay)
		defer timer.Stop()
		manualPromptC = timer.C
	}
	manualCh := make(chan *CallbackResult, 1)
	manualErrCh := make(chan error, 1)

	for {
		select {
		case result := <-callbackCh:
			return result, nil
		case err := <-callbackErrCh:
			return nil, err
		case result := <-manualCh:
			return result, nil
		case err := <-manualErrCh:
			return nil, err
		case <-manualPromptC:
			manualPromptC = nil
			go c.promptForCallback(manualCh, manualErrCh)
		}
	}
}

func (c *Client) promptForCallback(resultCh chan<- *CallbackResult, errCh chan<- error) {
	for {
		input, err := c.opts.Prompt("Paste the redirect URL from your browser (or press Enter to keep waiting): ")
		if err != nil {
			errCh <- err
			return
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		parsed, errParse := ParseCallbackURL(input)
		if errParse != nil {
			c.logger.Warnf("could not parse pasted URL: %v", errParse)
			continue
		}
		resultCh <- parsed
		return
	}
}
