package session

// Phase is the controller's own view of the login lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAuthorizing
	PhaseExchanging
	PhaseTokenUpdating
	PhaseConnecting
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAuthorizing:
		return "authorizing"
	case PhaseExchanging:
		return "exchanging"
	case PhaseTokenUpdating:
		return "token-updating"
	case PhaseConnecting:
		return "connecting"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// InFlight reports whether a login is underway and not yet connected.
func (p Phase) InFlight() bool {
	return p == PhaseAuthorizing || p == PhaseExchanging || p == PhaseTokenUpdating || p == PhaseConnecting
}
