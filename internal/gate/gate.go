// Package gate is the request gate in front of every route: security
// headers, HTTPS redirect, session enforcement and CSRF checks.
package gate

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/security"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/session"
)

// Policy says which paths need a session.
type Policy struct {
	// Production turns on the HTTPS redirect.
	Production bool
	Protected  []string
	Public     []string
	LoginPath  string
}

func DefaultPolicy(production bool) Policy {
	return Policy{
		Production: production,
		Protected: []string{
			"/dashboard",
			"/api/users",
			"/api/help-posts",
			"/api/events",
			"/api/conversations",
			"/api/messages",
			"/api/forum-posts",
			"/api/auth/profile",
		},
		Public: []string{
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/verify-email",
			"/api/captcha",
			"/api/auth/logout",
		},
		LoginPath: "/login",
	}
}

// matchPrefix matches whole path segments: /api/users matches /api/users/7
// but not /api/usersettings.
func matchPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimRight(p, "/")+"/") {
			return true
		}
	}
	return false
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func secure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

type Gate struct {
	policy  Policy
	issuer  *session.Issuer
	cookies session.Cookies
	events  *security.Recorder
	logger  *zap.SugaredLogger
}

func New(policy Policy, issuer *session.Issuer, cookies session.Cookies, events *security.Recorder, logger *zap.SugaredLogger) *Gate {
	if policy.LoginPath == "" {
		policy.LoginPath = "/login"
	}
	return &Gate{policy: policy, issuer: issuer, cookies: cookies, events: events, logger: logger}
}

func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())

		if g.policy.Production && !secure(r) {
			target := "https://" + r.Host + r.URL.Path
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}

		path := r.URL.Path
		public := matchPrefix(path, g.policy.Public)

		if matchPrefix(path, g.policy.Protected) && !public {
			token, ok := session.TokenFromRequest(r)
			if !ok {
				g.reject(w, r)
				return
			}
			claims, err := g.issuer.Verify(token)
			if err != nil {
				g.events.Record(r, security.EventSessionRejected, zap.String("path", path))
				g.cookies.ClearAuth(w)
				g.reject(w, r)
				return
			}
			r = r.WithContext(session.WithClaims(r.Context(), claims))
		}

		if mutating(r.Method) && isAPI(path) && !public && !g.csrfValid(r) {
			g.events.Record(r, security.EventCSRFMismatch, zap.String("path", path), zap.String("method", r.Method))
			apperr.Write(w, g.logger, apperr.Authorization("CSRF token mismatch"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// csrfValid requires the header and cookie to be present and equal.
func (g *Gate) csrfValid(r *http.Request) bool {
	header := r.Header.Get(session.CSRFHeader)
	ck, err := r.Cookie(session.CSRFCookie)
	if header == "" || err != nil || ck.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(ck.Value)) == 1
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request) {
	if isAPI(r.URL.Path) {
		apperr.Write(w, g.logger, apperr.Authentication("Unauthorized"))
		return
	}
	http.Redirect(w, r, g.policy.LoginPath, http.StatusTemporaryRedirect)
}
