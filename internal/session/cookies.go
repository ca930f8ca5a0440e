package session

import (
	"context"
	"net/http"
	"time"
)

const (
	AuthCookie = "auth-token"
	CSRFCookie = "csrf-token"
	CSRFHeader = "X-CSRF-Token"
)

// Cookies writes the session cookie pair with the deployment's flags.
type Cookies struct {
	Secure bool
}

func (c Cookies) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// SetSession writes the session token and its paired anti-forgery token.
func (c Cookies) SetSession(w http.ResponseWriter, token, csrf string, ttl time.Duration) {
	http.SetCookie(w, c.cookie(AuthCookie, token, ttl))
	c.SetCSRF(w, csrf, ttl)
}

// SetCSRF writes only the anti-forgery cookie.
func (c Cookies) SetCSRF(w http.ResponseWriter, csrf string, ttl time.Duration) {
	http.SetCookie(w, c.cookie(CSRFCookie, csrf, ttl))
}

// ClearAuth expires the session cookie.
func (c Cookies) ClearAuth(w http.ResponseWriter) {
	ck := c.cookie(AuthCookie, "", 0)
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

// ClearSession expires both cookies.
func (c Cookies) ClearSession(w http.ResponseWriter) {
	c.ClearAuth(w)
	ck := c.cookie(CSRFCookie, "", 0)
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

// TokenFromRequest returns the session cookie value.
func TokenFromRequest(r *http.Request) (string, bool) {
	ck, err := r.Cookie(AuthCookie)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

type claimsKey struct{}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext returns the claims placed by the request gate.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}
