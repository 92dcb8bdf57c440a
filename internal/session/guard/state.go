package guard

import "time"

// Kind is the state of a Guard.
type Kind int

const (
	Unauthenticated Kind = iota
	Authenticating
	Authenticated
	Refreshing
	// Expired is transient: a guard passes through it on a terminal refresh
	// failure and immediately lands in Unauthenticated.
	Expired
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// State is a snapshot of a Guard. Token fields are empty unless Kind is
// Authenticated or Refreshing; during Refreshing they hold the stale token.
type State struct {
	Kind              Kind
	SessionID         string
	PrincipalID       string
	AccessToken       string
	AccessTokenExpiry time.Time
}

// LoginPath is where every non-Allow decision sends the client.
const LoginPath = "/login"

// Decision is the answer to "may this navigation proceed".
type Decision struct {
	Allowed bool
	// Location is set when Allowed is false.
	Location string
}

var (
	Allow         = Decision{Allowed: true}
	RedirectLogin = Decision{Location: LoginPath}
)
