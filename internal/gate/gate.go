package gate

import (
	"net/url"

	"github.com/authgate/server/internal/model"
	"github.com/authgate/server/internal/routes"
)

// Action is the routing decision for one request.
type Action int

const (
	// ActionContinue passes the request through to downstream handling.
	ActionContinue Action = iota
	// ActionRedirectLogin sends the client to the login page.
	ActionRedirectLogin
	// ActionRedirectApp sends an authenticated client away from an
	// auth-only page to the post-login destination.
	ActionRedirectApp
)

// Decision is the outcome of classifying one request. Location is set for
// redirect actions and already carries the callbackUrl parameter when the
// original target was safe to return to.
type Decision struct {
	Action   Action
	Location string
}

// Gate decides per-request routing from the path, query and session state.
// It is stateless across requests and performs no I/O.
type Gate struct {
	table         *routes.Table
	loginPage     string
	loginRedirect string
}

// New creates a request gate over the given route table. loginPage is where
// unauthenticated requests for protected paths land, loginRedirect is where
// authenticated requests for auth-only paths land.
func New(table *routes.Table, loginPage, loginRedirect string) *Gate {
	return &Gate{
		table:         table,
		loginPage:     loginPage,
		loginRedirect: loginRedirect,
	}
}

// Decide classifies path+rawQuery against the route table and the session.
//
// A panic during classification is swallowed and treated as a protected path
// with no session: the failure mode is a login redirect, never a pass-through.
func (g *Gate) Decide(path, rawQuery string, sess model.Session) (d Decision) {
	defer func() {
		if recover() != nil {
			d = Decision{Action: ActionRedirectLogin, Location: g.loginPage}
		}
	}()

	switch g.table.Classify(path) {
	case routes.ClassAuthAPI:
		return Decision{Action: ActionContinue}
	case routes.ClassPublic:
		return Decision{Action: ActionContinue}
	case routes.ClassAuthOnly:
		if sess.Present {
			return Decision{Action: ActionRedirectApp, Location: g.loginRedirect}
		}
		return Decision{Action: ActionContinue}
	default:
		if sess.Present {
			return Decision{Action: ActionContinue}
		}
		return Decision{Action: ActionRedirectLogin, Location: g.loginURL(path, rawQuery)}
	}
}

// loginURL builds the login redirect target, attaching the originally
// requested path+query as callbackUrl only when it passes SafeCallback.
// Unsafe values are omitted entirely, never sanitized and kept.
func (g *Gate) loginURL(path, rawQuery string) string {
	callback := path
	if rawQuery != "" {
		callback += "?" + rawQuery
	}
	if !SafeCallback(callback) {
		return g.loginPage
	}
	return g.loginPage + "?callbackUrl=" + url.QueryEscape(callback)
}

// SafeCallback reports whether raw is a same-origin relative path that can be
// echoed back as a redirect target. Absolute URLs, protocol-relative URLs
// ("//host/...") and anything that does not parse are rejected.
func SafeCallback(raw string) bool {
	if raw == "" || raw[0] != '/' {
		return false
	}
	// "//host/..." is protocol-relative; browsers also normalize "/\" to it.
	if len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\') {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return !u.IsAbs() && u.Host == ""
}
