package gate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/authgate/server/internal/model"
	"github.com/authgate/server/internal/routes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver returns a fixed session for every request.
type stubResolver struct {
	sess model.Session
}

func (s *stubResolver) ResolveSession(_ *http.Request) model.Session { return s.sess }

func newTestHandler(sess model.Session) (http.Handler, *model.Session) {
	tbl := routes.New(
		"/api/auth",
		[]string{"/", "/health"},
		[]string{"/auth/login"},
		[]string{"/settings"},
	)
	g := New(tbl, "/auth/login", "/dashboard")

	var seen model.Session
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(g, &stubResolver{sess: sess})(inner), &seen
}

func TestMiddlewareRedirectsAnonymousFromProtected(t *testing.T) {
	h, _ := newTestHandler(model.Session{})

	req := httptest.NewRequest(http.MethodGet, "/settings?tab=a", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/auth/login?callbackUrl=%2Fsettings%3Ftab%3Da", rec.Header().Get("Location"))
}

func TestMiddlewareRedirectsAuthenticatedFromAuthOnly(t *testing.T) {
	sess := model.Session{Present: true, UserID: uuid.New()}
	h, _ := newTestHandler(sess)

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestMiddlewarePassesThroughAndAttachesSession(t *testing.T) {
	sess := model.Session{Present: true, UserID: uuid.New(), Email: "user@example.com", Role: "admin"}
	h, seen := newTestHandler(sess)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sess, *seen)
}

func TestMiddlewarePublicPassesThroughAnonymous(t *testing.T) {
	h, seen := newTestHandler(model.Session{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, seen.Present)
}
