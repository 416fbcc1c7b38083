package gate

import (
	"context"
	"net/http"

	"github.com/authgate/server/internal/model"
)

// SessionResolver reads the current session off a request. It never fails:
// an absent or invalid session resolves to a zero Session.
type SessionResolver interface {
	ResolveSession(r *http.Request) model.Session
}

// Middleware intercepts every request before any application logic runs and
// translates the gate's decision into a redirect or a pass-through. Redirects
// use 307 so method and body survive.
func Middleware(g *Gate, sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessions.ResolveSession(r)
			d := g.Decide(r.URL.Path, r.URL.RawQuery, sess)
			switch d.Action {
			case ActionRedirectLogin, ActionRedirectApp:
				http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
			default:
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
			}
		})
	}
}

type sessionKey struct{}

// WithSession attaches the resolved session to the context for downstream
// handlers.
func WithSession(ctx context.Context, sess model.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFrom returns the session the gate resolved for this request. The
// zero Session means no session was present.
func SessionFrom(ctx context.Context) model.Session {
	sess, _ := ctx.Value(sessionKey{}).(model.Session)
	return sess
}
