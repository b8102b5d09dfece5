package session

import "github.com/router-for-me/CLIPresence/internal/social"

// PlatformClient is the capability the controller drives. *social.Client implements it.
// Implementations may invoke continuations from any goroutine, but never concurrently with
// each other for the same controller.
type PlatformClient interface {
	AddLogCallback(cb social.LogCallback, minSeverity social.LoggingSeverity)
	SetStatusChangedCallback(cb social.StatusChangedCallback)
	CreateAuthorizationCodeVerifier() (social.AuthorizationVerifier, error)
	Authorize(args social.AuthorizationArgs, cb social.AuthorizeCallback)
	GetToken(clientID uint64, code, verifier, redirectURI string, cb social.TokenCallback)
	UpdateToken(tokenType social.AuthorizationTokenType, token string, cb social.UpdateTokenCallback)
	Connect()
	GetRelationships() []social.Relationship
	UpdateRichPresence(activity social.Activity, cb social.UpdatePresenceCallback)
	DefaultPresenceScopes() []string
}

// Presenter displays status text and reports the user's login requests.
type Presenter interface {
	// SetStatus replaces the displayed status line.
	SetStatus(text string)
	// OnLoginRequested registers the function to call when the user asks to log in.
	OnLoginRequested(fn func())
}

// PhaseObserver is implemented by presenters that follow the controller's phase, for example
// to show progress while a login is underway. Failed authorizations change the phase without
// producing a status line.
type PhaseObserver interface {
	OnPhaseChanged(phase Phase)
}
