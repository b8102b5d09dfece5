package social

import (
	"errors"
	"time"
)

// Status is the connection state of the platform client.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReady
	StatusReconnecting
	StatusDisconnecting
	StatusHTTPWait
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusReady:
		return "Ready"
	case StatusReconnecting:
		return "Reconnecting"
	case StatusDisconnecting:
		return "Disconnecting"
	case StatusHTTPWait:
		return "HttpWait"
	default:
		return "Unknown"
	}
}

// ErrorKind accompanies a status change when the connection failed.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorConnectionFailed
	ErrorUnexpectedClose
	ErrorConnectionCanceled
)

func (e ErrorKind) String() string {
	switch e {
	case ErrorNone:
		return "None"
	case ErrorConnectionFailed:
		return "ConnectionFailed"
	case ErrorUnexpectedClose:
		return "UnexpectedClose"
	case ErrorConnectionCanceled:
		return "ConnectionCanceled"
	default:
		return "Unknown"
	}
}

// LoggingSeverity orders the messages delivered to log callbacks.
type LoggingSeverity int

const (
	SeverityVerbose LoggingSeverity = iota + 1
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityNone
)

func (s LoggingSeverity) String() string {
	switch s {
	case SeverityVerbose:
		return "Verbose"
	case SeverityInfo:
		return "Info"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	case SeverityNone:
		return "None"
	default:
		return "Unknown"
	}
}

// ParseSeverity maps a config value such as "warn" or "error" onto a LoggingSeverity.
// Unknown values fall back to SeverityError.
func ParseSeverity(value string) LoggingSeverity {
	switch value {
	case "verbose", "debug", "trace":
		return SeverityVerbose
	case "info":
		return SeverityInfo
	case "warn", "warning":
		return SeverityWarning
	case "none", "off":
		return SeverityNone
	default:
		return SeverityError
	}
}

// ActivityType classifies a rich presence activity.
type ActivityType int

const (
	ActivityPlaying ActivityType = iota
	ActivityStreaming
	ActivityListening
	ActivityWatching
	ActivityCustomStatus
	ActivityCompeting
)

// ParseActivityType maps a config value onto an ActivityType, defaulting to ActivityPlaying.
func ParseActivityType(value string) ActivityType {
	switch value {
	case "streaming":
		return ActivityStreaming
	case "listening":
		return ActivityListening
	case "watching":
		return ActivityWatching
	case "custom", "custom-status":
		return ActivityCustomStatus
	case "competing":
		return ActivityCompeting
	default:
		return ActivityPlaying
	}
}

// AuthorizationTokenType names the kind of token handed to UpdateToken.
type AuthorizationTokenType int

const (
	TokenTypeUser AuthorizationTokenType = iota
	TokenTypeBearer
)

func (t AuthorizationTokenType) String() string {
	if t == TokenTypeBearer {
		return "Bearer"
	}
	return "User"
}

// ClientResult is the outcome handed to every asynchronous continuation.
type ClientResult struct {
	Successful bool
	// Error is a short machine-readable reason; empty on success.
	Error string
	// StatusCode is the HTTP status of the underlying request, when there was one.
	StatusCode int
	// Message explains the failure to a person.
	Message string
}

// Success returns a successful ClientResult.
func Success() ClientResult {
	return ClientResult{Successful: true}
}

// Failure converts err into an unsuccessful ClientResult.
func Failure(err error) ClientResult {
	res := ClientResult{Successful: false, Error: "unknown_error"}
	if err == nil {
		return res
	}
	res.Error = err.Error()
	res.Message = GetUserFriendlyMessage(err)
	var oauthErr *OAuthError
	var authErr *AuthenticationError
	switch {
	case errors.As(err, &oauthErr):
		res.Error = oauthErr.Code
		res.StatusCode = oauthErr.StatusCode
	case errors.As(err, &authErr):
		res.Error = authErr.Type
		res.StatusCode = authErr.Code
	}
	return res
}

// AuthorizationVerifier is a PKCE verifier together with its S256 challenge.
type AuthorizationVerifier struct {
	Verifier  string
	Challenge string
}

// AuthorizationArgs describes one authorization request.
type AuthorizationArgs struct {
	ClientID      uint64
	Scopes        []string
	CodeChallenge string
}

// AuthorizationOutcome is delivered once per Authorize call.
type AuthorizationOutcome struct {
	Result      ClientResult
	Code        string
	RedirectURI string
}

// TokenBundle is the token endpoint response. Only AccessToken is consumed by the session.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	TokenType    AuthorizationTokenType
	ExpiresIn    time.Duration
	Scopes       []string
}

// RelationshipType is the kind of edge between the current user and another user.
type RelationshipType int

const (
	RelationshipNone RelationshipType = iota
	RelationshipFriend
	RelationshipBlocked
	RelationshipPendingIncoming
	RelationshipPendingOutgoing
	RelationshipImplicit
)

// RelationshipUser is the other side of a relationship.
type RelationshipUser struct {
	ID       string
	Username string
}

// Relationship is a single entry of the user's social graph.
type Relationship struct {
	ID   string
	Type RelationshipType
	User RelationshipUser
}

// Activity is the rich presence payload.
type Activity struct {
	Type    ActivityType
	State   string
	Details string
}

// Callback signatures used by Client.
type (
	LogCallback            func(message string, severity LoggingSeverity)
	StatusChangedCallback  func(status Status, err ErrorKind, errorCode int)
	AuthorizeCallback      func(outcome AuthorizationOutcome)
	TokenCallback          func(result ClientResult, token TokenBundle)
	UpdateTokenCallback    func(result ClientResult)
	UpdatePresenceCallback func(result ClientResult)
)
