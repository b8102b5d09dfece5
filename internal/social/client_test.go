package social

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/router-for-me/CLIPresence/internal/config"
)

const testTimeout = 5 * time.Second

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

// newTestClient points every endpoint of a Client at srv.
func newTestClient(t *testing.T, srv *httptest.Server, opts Options) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.ClientID = 1234
	cfg.APIBaseURL = srv.URL
	cfg.AuthorizeURL = srv.URL + "/oauth2/authorize"
	cfg.TokenURL = srv.URL + "/oauth2/token"
	cfg.GatewayURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/gateway"
	cfg.CallbackPort = 0
	cfg.CallbackTimeoutSeconds = 5
	cfg.NoBrowser = true
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: testTimeout}
	}
	client := NewClient(cfg, opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDispatcherRunsCallbacksInOrder(t *testing.T) {
	client := NewClient(config.Default(), Options{})
	defer func() { _ = client.Close() }()

	got := make(chan int, 3)
	client.dispatch(func() { got <- 1 })
	client.dispatch(func() { panic("boom") })
	client.dispatch(func() { got <- 2 })
	client.dispatch(func() { got <- 3 })

	for want := 1; want <= 3; want++ {
		if v := waitFor(t, got, "callback"); v != want {
			t.Fatalf("callback %d ran in position %d", v, want)
		}
	}
}

func TestAddLogCallbackFiltersBySeverity(t *testing.T) {
	client := NewClient(config.Default(), Options{})
	defer func() { _ = client.Close() }()

	type logged struct {
		message  string
		severity LoggingSeverity
	}
	got := make(chan logged, 4)
	client.AddLogCallback(func(message string, severity LoggingSeverity) {
		got <- logged{message, severity}
	}, SeverityWarning)

	client.logger.Debug("verbose detail")
	client.logger.Info("informational")
	client.logger.Warn("careful")
	client.logger.Error("broken")

	first := waitFor(t, got, "warning")
	second := waitFor(t, got, "error")
	if first.message != "careful" || first.severity != SeverityWarning {
		t.Fatalf("first = %+v", first)
	}
	if second.message != "broken" || second.severity != SeverityError {
		t.Fatalf("second = %+v", second)
	}
	select {
	case extra := <-got:
		t.Fatalf("unexpected log below threshold: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLevelsForNone(t *testing.T) {
	if levels := levelsFor(SeverityNone); len(levels) != 0 {
		t.Fatalf("levelsFor(None) = %v, want none", levels)
	}
	if levels := levelsFor(SeverityVerbose); len(levels) != 7 {
		t.Fatalf("levelsFor(Verbose) = %d levels, want 7", len(levels))
	}
}

func TestDefaultPresenceScopes(t *testing.T) {
	client := NewClient(config.Default(), Options{})
	defer func() { _ = client.Close() }()

	scopes := client.DefaultPresenceScopes()
	if strings.Join(scopes, " ") != "openid sdk.social_layer_presence" {
		t.Fatalf("scopes = %v", scopes)
	}
	scopes[0] = "mutated"
	if client.DefaultPresenceScopes()[0] != "openid" {
		t.Fatalf("DefaultPresenceScopes returned shared storage")
	}
}

func TestFailureMapsTypedErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantError  string
		wantStatus int
	}{
		{"nil", nil, "unknown_error", 0},
		{"oauth", NewOAuthError("invalid_grant", "bad code", 400), "invalid_grant", 400},
		{"auth", NewAuthenticationError(ErrTokenRejected, nil), "token_rejected", 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Failure(tt.err)
			if res.Successful || res.Error != tt.wantError || res.StatusCode != tt.wantStatus {
				t.Fatalf("Failure() = %+v", res)
			}
		})
	}
}
