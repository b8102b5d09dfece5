package social

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CLIPresence/internal/logging"
	log "github.com/sirupsen/logrus"
)

const callbackPath = "/callback"

const loginSuccessHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Login complete</title></head>
<body style="font-family:sans-serif;text-align:center;margin-top:15%">
<h2>Login complete</h2><p>You can close this window and return to the application.</p>
</body></html>`

// CallbackResult holds the parameters delivered to the redirect URI.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackServer is the loopback HTTP listener that receives the OAuth redirect.
type CallbackServer struct {
	server     *http.Server
	listener   net.Listener
	port       int
	resultChan chan *CallbackResult
	errorChan  chan error
	mu         sync.Mutex
	running    bool
}

// NewCallbackServer creates a listener for port. Port 0 picks a free port on Start.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		port:       port,
		resultChan: make(chan *CallbackResult, 1),
		errorChan:  make(chan error, 1),
	}
}

// Start binds the loopback port and begins serving in the background.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use") {
			return NewAuthenticationError(ErrPortInUse, err)
		}
		return NewAuthenticationError(ErrServerStartFailed, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.GET(callbackPath, s.handleCallback)
	engine.GET("/success", s.handleSuccess)

	s.server = &http.Server{
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	go func(srv *http.Server, ln net.Listener) {
		if errServe := srv.Serve(ln); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			select {
			case s.errorChan <- fmt.Errorf("callback server failed: %w", errServe):
			default:
			}
		}
	}(s.server, listener)

	log.WithField("port", s.port).Debug("OAuth callback server listening")
	return nil
}

// Port returns the bound port once Start has succeeded.
func (s *CallbackServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// RedirectURI is the loopback URI registered with the authorization request.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.Port(), callbackPath)
}

// Stop shuts the listener down. It is a no-op when the server is not running.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}
	log.Debug("Stopping OAuth callback server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	s.listener = nil
	return err
}

// WaitForCallback blocks until a redirect arrives, the server fails, ctx ends or timeout passes.
func (s *CallbackServer) WaitForCallback(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-s.resultChan:
		return result, nil
	case err := <-s.errorChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, NewAuthenticationError(ErrCallbackTimeout, fmt.Errorf("no callback after %s", timeout))
	}
}

func (s *CallbackServer) handleCallback(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	state := strings.TrimSpace(c.Query("state"))
	errParam := strings.TrimSpace(c.Query("error"))
	errDesc := strings.TrimSpace(c.Query("error_description"))

	switch {
	case errParam != "":
		s.sendResult(&CallbackResult{State: state, Error: errParam, ErrorDescription: errDesc})
		c.String(http.StatusBadRequest, "OAuth error: %s", errParam)
		return
	case code == "":
		s.sendResult(&CallbackResult{State: state, Error: "no_code"})
		c.String(http.StatusBadRequest, "No authorization code received")
		return
	case state == "":
		s.sendResult(&CallbackResult{Code: code, Error: "no_state"})
		c.String(http.StatusBadRequest, "No state parameter received")
		return
	}

	s.sendResult(&CallbackResult{Code: code, State: state})
	c.Redirect(http.StatusFound, "/success")
}

func (s *CallbackServer) handleSuccess(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loginSuccessHTML))
}

func (s *CallbackServer) sendResult(result *CallbackResult) {
	select {
	case s.resultChan <- result:
		log.Debug("OAuth callback result queued")
	default:
		log.Warn("OAuth callback already received, dropping duplicate")
	}
}

// GenerateState returns a random hex state parameter for CSRF protection.
func GenerateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ParseCallbackURL extracts OAuth parameters from a pasted redirect URL or bare query string.
// It returns nil, nil for blank input.
func ParseCallbackURL(input string) (*CallbackResult, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		switch {
		case strings.HasPrefix(candidate, "?"):
			candidate = "http://localhost" + candidate
		case strings.ContainsAny(candidate, "/?#") || strings.Contains(candidate, ":"):
			candidate = "http://" + candidate
		case strings.Contains(candidate, "="):
			candidate = "http://localhost/?" + candidate
		default:
			return nil, fmt.Errorf("invalid callback URL")
		}
	}

	parsedURL, err := url.Parse(candidate)
	if err != nil {
		return nil, err
	}

	values := parsedURL.Query()
	if parsedURL.Fragment != "" {
		if fragment, errFrag := url.ParseQuery(parsedURL.Fragment); errFrag == nil {
			for key, v := range fragment {
				if values.Get(key) == "" && len(v) > 0 {
					values.Set(key, v[0])
				}
			}
		}
	}

	result := &CallbackResult{
		Code:             strings.TrimSpace(values.Get("code")),
		State:            strings.TrimSpace(values.Get("state")),
		Error:            strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}
	if result.Error == "" && result.ErrorDescription != "" {
		result.Error = result.ErrorDescription
		result.ErrorDescription = ""
	}
	if result.Code == "" && result.Error == "" {
		return nil, fmt.Errorf("callback URL missing code")
	}
	return result, nil
}
