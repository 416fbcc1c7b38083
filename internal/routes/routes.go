package routes

import "strings"

// Class is the authorization category a path falls into.
type Class int

const (
	// ClassAuthAPI covers the session protocol's own internal endpoints,
	// which pass through regardless of session state.
	ClassAuthAPI Class = iota
	// ClassPublic requires no session.
	ClassPublic
	// ClassAuthOnly must not be visited while authenticated (login,
	// registration and friends).
	ClassAuthOnly
	// ClassProtected requires an authenticated session. Paths matching no
	// set classify as protected (fail-closed).
	ClassProtected
)

// Table holds the three route-pattern sets and the internal auth API prefix.
// It is built once at startup and never mutated.
//
// Patterns are literal paths whose segments may be a dynamic placeholder
// written as {name}, matching exactly one non-empty path component:
// "/settings/{section}" matches "/settings/profile" but not "/settings" or
// "/settings/a/b".
type Table struct {
	authAPIPrefix string
	public        [][]string
	authOnly      [][]string
	protected     [][]string
}

// New builds a route table. The authAPIPrefix is matched as a path-segment
// prefix, not a naive string prefix.
func New(authAPIPrefix string, public, authOnly, protected []string) *Table {
	return &Table{
		authAPIPrefix: strings.TrimSuffix(authAPIPrefix, "/"),
		public:        compile(public),
		authOnly:      compile(authOnly),
		protected:     compile(protected),
	}
}

// Default is the application's route table.
func Default() *Table {
	return New(
		"/api/auth",
		[]string{"/", "/health", "/auth/verify-email"},
		[]string{"/auth/login", "/auth/register", "/auth/two-factor", "/auth/reset", "/auth/error"},
		[]string{"/dashboard", "/settings", "/settings/{section}"},
	)
}

// Classify returns the authorization class for a request path. The path is
// normalized first; a path that matches nothing is protected.
//
// Order matters: auth API passthrough wins over everything, then public,
// then auth-only, then protected.
func (t *Table) Classify(path string) Class {
	p := Normalize(path)
	switch {
	case t.isAuthAPI(p):
		return ClassAuthAPI
	case matchAny(t.public, p):
		return ClassPublic
	case matchAny(t.authOnly, p):
		return ClassAuthOnly
	default:
		return ClassProtected
	}
}

// Normalize strips a single trailing slash so "/foo/" and "/foo" classify
// identically. The root path is preserved as-is.
func Normalize(path string) string {
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// isAuthAPI reports whether p sits under the auth API prefix by whole
// segments, so "/api/auth" covers "/api/auth/session" but never
// "/api/authentication".
func (t *Table) isAuthAPI(p string) bool {
	if t.authAPIPrefix == "" {
		return false
	}
	if p == t.authAPIPrefix {
		return true
	}
	return strings.HasPrefix(p, t.authAPIPrefix+"/")
}

func compile(patterns []string) [][]string {
	out := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, split(Normalize(p)))
	}
	return out
}

func split(p string) []string {
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

func matchAny(patterns [][]string, path string) bool {
	if !strings.HasPrefix(path, "/") {
		// Malformed paths match nothing and fall through to protected.
		return false
	}
	segs := split(path)
	for _, pat := range patterns {
		if matchSegments(pat, segs) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) != len(segs) {
		return false
	}
	for i, p := range pattern {
		if isPlaceholder(p) {
			if segs[i] == "" {
				return false
			}
			continue
		}
		if p != segs[i] {
			return false
		}
	}
	return true
}

func isPlaceholder(s string) bool {
	return len(s) > 2 && s[0] == '{' && s[len(s)-1] == '}'
}
