// Package route gates client navigation on the session guard.
package route

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Jaldeepsinh-Gohil/MeetMate/internal/session/guard"
)

// Decide is the pure navigation rule: Allow iff the guard holds an
// unexpired access token.
func Decide(st guard.State, now time.Time) guard.Decision {
	if st.Kind == guard.Authenticated && st.AccessToken != "" && now.Before(st.AccessTokenExpiry) {
		return guard.Allow
	}
	return guard.RedirectLogin
}

// Public and Protected are the client routes. Anything not listed as public is protected.
var (
	Public    = []string{"/login", "/register"}
	Protected = []string{"/", "/groups", "/groups/{groupID}", "/places"}
)

// Freshener is the part of the guard the authorizer needs.
type Freshener interface {
	EnsureFresh(ctx context.Context) (guard.Decision, error)
}

// Authorizer answers navigations against the route table.
type Authorizer struct {
	guard  Freshener
	public *chi.Mux
	log    logrus.FieldLogger
}

// NewAuthorizer returns an Authorizer over the given guard. A nil log uses the standard logger.
func NewAuthorizer(g Freshener, log logrus.FieldLogger) *Authorizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	public := chi.NewRouter()
	for _, p := range Public {
		public.Get(p, func(http.ResponseWriter, *http.Request) {})
	}
	return &Authorizer{guard: g, public: public, log: log}
}

// IsPublic reports whether path may be visited without a session.
func (a *Authorizer) IsPublic(path string) bool {
	return a.public.Match(chi.NewRouteContext(), http.MethodGet, path)
}

// Navigate decides whether the client may open path, refreshing the session
// first when the access token has expired. The returned error, when set,
// explains a redirect; the decision is never Allow alongside an error.
func (a *Authorizer) Navigate(ctx context.Context, path string) (guard.Decision, error) {
	if a.IsPublic(path) {
		return guard.Allow, nil
	}
	d, err := a.guard.EnsureFresh(ctx)
	if err != nil {
		a.log.WithError(err).WithField("path", path).Debug("navigation redirected")
		return guard.RedirectLogin, err
	}
	return d, nil
}
