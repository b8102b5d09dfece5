package session

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/router-for-me/CLIPresence/internal/config"
	"github.com/router-for-me/CLIPresence/internal/social"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type getTokenCall struct {
	clientID    uint64
	code        string
	verifier    string
	redirectURI string
	cb          social.TokenCallback
}

type updateTokenCall struct {
	tokenType social.AuthorizationTokenType
	token     string
	cb        social.UpdateTokenCallback
}

type authorizeCall struct {
	args social.AuthorizationArgs
	cb   social.AuthorizeCallback
}

// fakePlatform records every call and keeps continuations so tests decide when they fire.
type fakePlatform struct {
	verifiers     int
	verifierErr   error
	logSeverity   social.LoggingSeverity
	logCB         social.LogCallback
	statusCB      social.StatusChangedCallback
	authorizes    []authorizeCall
	getTokens     []getTokenCall
	updateTokens  []updateTokenCall
	connects      int
	presences     []social.Activity
	presenceCBs   []social.UpdatePresenceCallback
	relationships []social.Relationship
	// calls is the order in which platform operations were invoked.
	calls []string
}

func (f *fakePlatform) AddLogCallback(cb social.LogCallback, minSeverity social.LoggingSeverity) {
	f.logCB = cb
	f.logSeverity = minSeverity
}

func (f *fakePlatform) SetStatusChangedCallback(cb social.StatusChangedCallback) {
	f.statusCB = cb
}

func (f *fakePlatform) CreateAuthorizationCodeVerifier() (social.AuthorizationVerifier, error) {
	if f.verifierErr != nil {
		return social.AuthorizationVerifier{}, f.verifierErr
	}
	f.calls = append(f.calls, "verifier")
	f.verifiers++
	n := strconv.Itoa(f.verifiers)
	return social.AuthorizationVerifier{Verifier: "verifier-" + n, Challenge: "challenge-" + n}, nil
}

func (f *fakePlatform) Authorize(args social.AuthorizationArgs, cb social.AuthorizeCallback) {
	f.calls = append(f.calls, "authorize")
	f.authorizes = append(f.authorizes, authorizeCall{args: args, cb: cb})
}

func (f *fakePlatform) GetToken(clientID uint64, code, verifier, redirectURI string, cb social.TokenCallback) {
	f.calls = append(f.calls, "getToken")
	f.getTokens = append(f.getTokens, getTokenCall{clientID, code, verifier, redirectURI, cb})
}

func (f *fakePlatform) UpdateToken(tokenType social.AuthorizationTokenType, token string, cb social.UpdateTokenCallback) {
	f.calls = append(f.calls, "updateToken")
	f.updateTokens = append(f.updateTokens, updateTokenCall{tokenType, token, cb})
}

func (f *fakePlatform) Connect() {
	f.calls = append(f.calls, "connect")
	f.connects++
}

func (f *fakePlatform) GetRelationships() []social.Relationship {
	f.calls = append(f.calls, "relationships")
	return f.relationships
}

func (f *fakePlatform) UpdateRichPresence(activity social.Activity, cb social.UpdatePresenceCallback) {
	f.calls = append(f.calls, "presence")
	f.presences = append(f.presences, activity)
	f.presenceCBs = append(f.presenceCBs, cb)
}

func (f *fakePlatform) DefaultPresenceScopes() []string {
	return []string{"openid", "sdk.social_layer_presence"}
}

type fakePresenter struct {
	statuses []string
	phases   []Phase
	login    func()
}

func (p *fakePresenter) OnPhaseChanged(phase Phase) { p.phases = append(p.phases, phase) }

func (p *fakePresenter) SetStatus(text string) { p.statuses = append(p.statuses, text) }

func (p *fakePresenter) OnLoginRequested(fn func()) { p.login = fn }

func (p *fakePresenter) last() string {
	if len(p.statuses) == 0 {
		return ""
	}
	return p.statuses[len(p.statuses)-1]
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakePlatform, *fakePresenter) {
	t.Helper()
	platform := &fakePlatform{}
	presenter := &fakePresenter{}
	c := New(1234, platform, opts...)
	if err := c.Initialize(presenter); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return c, platform, presenter
}

// captureLogs records standard logger entries for the duration of the test.
func captureLogs(t *testing.T) *test.Hook {
	t.Helper()
	hook := new(test.Hook)
	previous := log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	log.AddHook(hook)
	t.Cleanup(func() { log.StandardLogger().ReplaceHooks(previous) })
	return hook
}

func authorized(code, redirectURI string) social.AuthorizationOutcome {
	return social.AuthorizationOutcome{Result: social.Success(), Code: code, RedirectURI: redirectURI}
}

// driveToConnecting runs one successful attempt up to the Connect call.
func driveToConnecting(t *testing.T, c *Controller, platform *fakePlatform, presenter *fakePresenter) {
	t.Helper()
	presenter.login()
	platform.authorizes[len(platform.authorizes)-1].cb(authorized("abc", "https://x"))
	platform.getTokens[len(platform.getTokens)-1].cb(social.Success(), social.TokenBundle{AccessToken: "tok123"})
	platform.updateTokens[len(platform.updateTokens)-1].cb(social.Success())
	if c.Phase() != PhaseConnecting {
		t.Fatalf("phase = %s, want connecting", c.Phase())
	}
}

func TestInitializeRegistersSinksAndInitialStatus(t *testing.T) {
	c, platform, presenter := newTestController(t, WithLogSeverity(social.SeverityWarning))

	if platform.logCB == nil || platform.statusCB == nil {
		t.Fatalf("expected log and status sinks to be registered")
	}
	if platform.logSeverity != social.SeverityWarning {
		t.Fatalf("log severity = %s, want Warning", platform.logSeverity)
	}
	if presenter.login == nil {
		t.Fatalf("expected login trigger to be bound")
	}
	if presenter.last() != StatusReadyToLogin {
		t.Fatalf("initial status = %q, want %q", presenter.last(), StatusReadyToLogin)
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
	if err := c.Initialize(presenter); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Initialize() error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestInitializeRequiresPresenter(t *testing.T) {
	c := New(1, &fakePlatform{})
	if err := c.Initialize(nil); err == nil {
		t.Fatalf("Initialize(nil) returned nil error")
	}
	if err := New(1, nil).Initialize(&fakePresenter{}); err == nil {
		t.Fatalf("Initialize without platform returned nil error")
	}
}

func TestStartLoginBuildsAuthorizationArgs(t *testing.T) {
	c, platform, presenter := newTestController(t)
	presenter.login()

	if len(platform.authorizes) != 1 {
		t.Fatalf("authorize calls = %d, want 1", len(platform.authorizes))
	}
	args := platform.authorizes[0].args
	if args.ClientID != 1234 {
		t.Fatalf("client id = %d, want 1234", args.ClientID)
	}
	if args.CodeChallenge != "challenge-1" {
		t.Fatalf("code challenge = %q, want challenge-1", args.CodeChallenge)
	}
	if strings.Join(args.Scopes, " ") != "openid sdk.social_layer_presence" {
		t.Fatalf("scopes = %v", args.Scopes)
	}
	if c.Phase() != PhaseAuthorizing {
		t.Fatalf("phase = %s, want authorizing", c.Phase())
	}
}

func TestVerifierErrorLeavesIdle(t *testing.T) {
	c, platform, presenter := newTestController(t)
	platform.verifierErr = errors.New("entropy exhausted")
	presenter.login()

	if len(platform.authorizes) != 0 {
		t.Fatalf("authorize called despite verifier failure")
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
}

func TestExchangeUsesVerifierOfSameAttempt(t *testing.T) {
	_, platform, presenter := newTestController(t)
	presenter.login()
	platform.authorizes[0].cb(authorized("abc", "https://x"))

	if len(platform.getTokens) != 1 {
		t.Fatalf("GetToken calls = %d, want 1", len(platform.getTokens))
	}
	got := platform.getTokens[0]
	if got.clientID != 1234 || got.code != "abc" || got.redirectURI != "https://x" {
		t.Fatalf("GetToken args = %+v", got)
	}
	if got.verifier != "verifier-1" {
		t.Fatalf("verifier = %q, want verifier-1", got.verifier)
	}
}

func TestAuthorizationFailureIsSilent(t *testing.T) {
	c, platform, presenter := newTestController(t)
	presenter.login()
	before := len(presenter.statuses)
	platform.authorizes[0].cb(social.AuthorizationOutcome{Result: social.ClientResult{Error: "access_denied"}})

	if len(platform.getTokens) != 0 {
		t.Fatalf("GetToken called after failed authorization")
	}
	if len(presenter.statuses) != before {
		t.Fatalf("presenter notified on authorization failure: %v", presenter.statuses[before:])
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
}

func TestEmptyTokenReportsRetrievalFailure(t *testing.T) {
	c, platform, presenter := newTestController(t)
	presenter.login()
	platform.authorizes[0].cb(authorized("abc", "https://x"))
	platform.getTokens[0].cb(social.ClientResult{Error: "invalid_grant"}, social.TokenBundle{})

	if presenter.last() != StatusTokenRetrievalFailed {
		t.Fatalf("status = %q, want %q", presenter.last(), StatusTokenRetrievalFailed)
	}
	if len(platform.updateTokens) != 0 || platform.connects != 0 {
		t.Fatalf("flow continued after empty token")
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
}

func TestConnectOnlyAfterTokenUpdateSucceeds(t *testing.T) {
	_, platform, presenter := newTestController(t)
	presenter.login()
	platform.authorizes[0].cb(authorized("abc", "https://x"))
	platform.getTokens[0].cb(social.Success(), social.TokenBundle{AccessToken: "tok123"})

	if len(platform.updateTokens) != 1 {
		t.Fatalf("UpdateToken calls = %d, want 1", len(platform.updateTokens))
	}
	if platform.updateTokens[0].tokenType != social.TokenTypeBearer || platform.updateTokens[0].token != "tok123" {
		t.Fatalf("UpdateToken args = %+v", platform.updateTokens[0])
	}
	if platform.connects != 0 {
		t.Fatalf("Connect called before UpdateToken completed")
	}
	platform.updateTokens[0].cb(social.Success())
	if platform.connects != 1 {
		t.Fatalf("Connect calls = %d, want 1", platform.connects)
	}
}

func TestTokenUpdateFailureAborts(t *testing.T) {
	c, platform, presenter := newTestController(t)
	presenter.login()
	platform.authorizes[0].cb(authorized("abc", "https://x"))
	platform.getTokens[0].cb(social.Success(), social.TokenBundle{AccessToken: "tok123"})
	platform.updateTokens[0].cb(social.ClientResult{Error: "token_rejected", StatusCode: 401})

	if platform.connects != 0 {
		t.Fatalf("Connect called after UpdateToken failure")
	}
	if presenter.last() != StatusTokenUpdateFailed {
		t.Fatalf("status = %q, want %q", presenter.last(), StatusTokenUpdateFailed)
	}
	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
}

func TestStatusForwardedToPresenter(t *testing.T) {
	_, platform, presenter := newTestController(t)
	tests := []struct {
		status social.Status
		want   string
	}{
		{social.StatusConnecting, "Connecting"},
		{social.StatusConnected, "Connected"},
		{social.StatusReconnecting, "Reconnecting"},
		{social.StatusHTTPWait, "HttpWait"},
		{social.StatusDisconnected, "Disconnected"},
	}
	for _, tt := range tests {
		platform.statusCB(tt.status, social.ErrorNone, 0)
		if presenter.last() != tt.want {
			t.Fatalf("status %d: presenter = %q, want %q", tt.status, presenter.last(), tt.want)
		}
	}
	if len(platform.presences) != 0 {
		t.Fatalf("presence pushed without Ready")
	}
}

func TestErrorStatusDoesNotHalt(t *testing.T) {
	_, platform, presenter := newTestController(t)
	platform.statusCB(social.StatusDisconnected, social.ErrorConnectionFailed, 401)
	if presenter.last() != "Disconnected" {
		t.Fatalf("status = %q, want Disconnected", presenter.last())
	}
	platform.statusCB(social.StatusConnecting, social.ErrorNone, 0)
	if presenter.last() != "Connecting" {
		t.Fatalf("status = %q, want Connecting", presenter.last())
	}
}

func TestReadyPushesPresenceOncePerTransition(t *testing.T) {
	c, platform, presenter := newTestController(t)
	driveToConnecting(t, c, platform, presenter)

	platform.statusCB(social.StatusReady, social.ErrorNone, 0)
	platform.statusCB(social.StatusReady, social.ErrorNone, 0)
	if len(platform.presences) != 1 {
		t.Fatalf("presence pushes = %d, want 1", len(platform.presences))
	}

	platform.statusCB(social.StatusReconnecting, social.ErrorUnexpectedClose, 4000)
	platform.statusCB(social.StatusReady, social.ErrorNone, 0)
	if len(platform.presences) != 2 {
		t.Fatalf("presence pushes after reconnect = %d, want 2", len(platform.presences))
	}
}

func TestRepeatedStatusIsIdempotent(t *testing.T) {
	c, platform, presenter := newTestController(t)
	before := len(presenter.statuses)
	for range 3 {
		platform.statusCB(social.StatusConnecting, social.ErrorNone, 0)
	}
	if got := len(presenter.statuses) - before; got != 3 {
		t.Fatalf("presenter updates = %d, want 3", got)
	}
	if c.Phase() != PhaseIdle || len(platform.presences) != 0 {
		t.Fatalf("repeated non-ready status changed state: phase=%s presences=%d", c.Phase(), len(platform.presences))
	}
}

func TestDisconnectedReturnsToIdle(t *testing.T) {
	c, platform, presenter := newTestController(t)
	driveToConnecting(t, c, platform, presenter)
	platform.statusCB(social.StatusReady, social.ErrorNone, 0)
	platform.statusCB(social.StatusDisconnected, social.ErrorUnexpectedClose, 1006)

	if c.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", c.Phase())
	}
	presenter.login()
	if len(platform.authorizes) != 2 {
		t.Fatalf("authorize calls = %d, want 2 after reconnect login", len(platform.authorizes))
	}
}

func TestStartLoginSupersedesPendingAuthorization(t *testing.T) {
	c, platform, presenter := newTestController(t)
	presenter.login()
	presenter.login()
	if len(platform.authorizes) != 2 {
		t.Fatalf("authorize calls = %d, want 2", len(platform.authorizes))
	}

	platform.authorizes[0].cb(authorized("stale", "https://x"))
	if len(platform.getTokens) != 0 {
		t.Fatalf("superseded attempt reached GetToken")
	}
	if c.Phase() != PhaseAuthorizing {
		t.Fatalf("phase = %s, want authorizing", c.Phase())
	}

	platform.authorizes[1].cb(authorized("fresh", "https://x"))
	if len(platform.getTokens) != 1 {
		t.Fatalf("GetToken calls = %d, want 1", len(platform.getTokens))
	}
	if got := platform.getTokens[0]; got.code != "fresh" || got.verifier != "verifier-2" {
		t.Fatalf("GetToken args = %+v, want code fresh with verifier-2", got)
	}
}

func TestStaleFailureDoesNotResetNewerAttempt(t *testing.T) {
	c, platform, presenter := newTestController(t)
	presenter.login()
	presenter.login()
	platform.authorizes[0].cb(social.AuthorizationOutcome{Result: social.ClientResult{Error: "canceled"}})
	if c.Phase() != PhaseAuthorizing {
		t.Fatalf("phase = %s, want authorizing", c.Phase())
	}
}

func TestStartLoginRejectedAfterAuthorization(t *testing.T) {
	c, platform, presenter := newTestController(t)
	presenter.login()
	platform.authorizes[0].cb(authorized("abc", "https://x"))
	presenter.login()

	if len(platform.authorizes) != 1 {
		t.Fatalf("authorize calls = %d, want 1", len(platform.authorizes))
	}
	if c.Phase() != PhaseExchanging {
		t.Fatalf("phase = %s, want exchanging", c.Phase())
	}
}

func TestTokenNeverLoggedInFull(t *testing.T) {
	hook := captureLogs(t)
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() { log.SetLevel(level) })

	c, platform, presenter := newTestController(t)
	driveToConnecting(t, c, platform, presenter)

	for _, entry := range hook.AllEntries() {
		if strings.Contains(entry.Message, "tok123") {
			t.Fatalf("token leaked in log message %q", entry.Message)
		}
		if strings.Contains(entry.Message, "Authorization Result") && strings.Contains(entry.Message, "[abc]") {
			t.Fatalf("authorization code leaked in log message %q", entry.Message)
		}
	}
}

func TestPlatformLogsForwarded(t *testing.T) {
	hook := captureLogs(t)

	_, platform, _ := newTestController(t)
	platform.logCB("gateway closed", social.SeverityError)

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "gateway closed" {
		t.Fatalf("platform log not forwarded: %+v", entry)
	}
	if entry.Level != log.ErrorLevel || entry.Data["source"] != "platform" {
		t.Fatalf("entry level=%s source=%v", entry.Level, entry.Data["source"])
	}
}

func TestRefreshPresenceOnlyWhenReady(t *testing.T) {
	c, platform, presenter := newTestController(t)
	c.SetActivity(social.Activity{Type: social.ActivityWatching, State: "Replays"})
	if c.RefreshPresence() {
		t.Fatalf("RefreshPresence pushed while idle")
	}
	driveToConnecting(t, c, platform, presenter)
	platform.statusCB(social.StatusReady, social.ErrorNone, 0)
	if !c.RefreshPresence() {
		t.Fatalf("RefreshPresence did not push while ready")
	}
	if len(platform.presences) != 2 || platform.presences[1].State != "Replays" {
		t.Fatalf("presences = %+v", platform.presences)
	}
}

func TestEndToEndLogin(t *testing.T) {
	c, platform, presenter := newTestController(t, WithActivity(ActivityFromConfig(config.Default().Presence)))
	platform.relationships = []social.Relationship{
		{ID: "1", Type: social.RelationshipFriend, User: social.RelationshipUser{ID: "1", Username: "ana"}},
		{ID: "2", Type: social.RelationshipFriend, User: social.RelationshipUser{ID: "2", Username: "bo"}},
	}
	driveToConnecting(t, c, platform, presenter)

	if got := platform.getTokens[0]; got.code != "abc" || got.redirectURI != "https://x" {
		t.Fatalf("GetToken args = %+v", got)
	}
	if got := platform.updateTokens[0]; got.token != "tok123" || got.tokenType != social.TokenTypeBearer {
		t.Fatalf("UpdateToken args = %+v", got)
	}

	platform.statusCB(social.StatusConnecting, social.ErrorNone, 0)
	platform.statusCB(social.StatusConnected, social.ErrorNone, 0)
	platform.statusCB(social.StatusReady, social.ErrorNone, 0)

	if len(platform.presences) != 1 {
		t.Fatalf("presence pushes = %d, want 1", len(platform.presences))
	}
	got := platform.presences[0]
	if got.Type != social.ActivityPlaying || got.State != "In Competitive Match" || got.Details != "Rank: Diamond II" {
		t.Fatalf("presence = %+v", got)
	}
	platform.presenceCBs[0](social.Success())

	wantCalls := []string{"verifier", "authorize", "getToken", "updateToken", "connect", "relationships", "presence"}
	if strings.Join(platform.calls, ",") != strings.Join(wantCalls, ",") {
		t.Fatalf("platform calls = %v, want %v", platform.calls, wantCalls)
	}

	if presenter.last() != "Ready" {
		t.Fatalf("status = %q, want Ready", presenter.last())
	}
	if c.Phase() != PhaseReady {
		t.Fatalf("phase = %s, want ready", c.Phase())
	}
}

func TestReadyQueriesRelationshipsBeforePresence(t *testing.T) {
	c, platform, presenter := newTestController(t)
	driveToConnecting(t, c, platform, presenter)
	platform.calls = nil

	platform.statusCB(social.StatusReady, social.ErrorNone, 0)

	if len(platform.calls) != 2 || platform.calls[0] != "relationships" || platform.calls[1] != "presence" {
		t.Fatalf("calls on Ready = %v, want [relationships presence]", platform.calls)
	}
}

func TestPhaseObserverFollowsLogin(t *testing.T) {
	c, platform, presenter := newTestController(t)
	driveToConnecting(t, c, platform, presenter)
	platform.statusCB(social.StatusConnecting, social.ErrorNone, 0)
	platform.statusCB(social.StatusReady, social.ErrorNone, 0)

	want := []Phase{PhaseAuthorizing, PhaseExchanging, PhaseTokenUpdating, PhaseConnecting, PhaseReady}
	if len(presenter.phases) != len(want) {
		t.Fatalf("phases = %v, want %v", presenter.phases, want)
	}
	for i := range want {
		if presenter.phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", presenter.phases, want)
		}
	}
}

func TestPhaseObserverSeesSilentAuthorizationFailure(t *testing.T) {
	_, platform, presenter := newTestController(t)
	presenter.login()
	statuses := len(presenter.statuses)

	platform.authorizes[0].cb(social.AuthorizationOutcome{Result: social.ClientResult{Error: "access_denied"}})

	if len(presenter.statuses) != statuses {
		t.Fatalf("authorization failure produced a status: %v", presenter.statuses)
	}
	if got := presenter.phases[len(presenter.phases)-1]; got != PhaseIdle {
		t.Fatalf("last phase = %s, want idle", got)
	}
}

func TestRejectedLoginDoesNotChangePhase(t *testing.T) {
	c, platform, presenter := newTestController(t)
	driveToConnecting(t, c, platform, presenter)
	seen := len(presenter.phases)

	presenter.login()

	if len(presenter.phases) != seen || c.Phase() != PhaseConnecting {
		t.Fatalf("rejected login changed the phase: %v", presenter.phases)
	}
}
