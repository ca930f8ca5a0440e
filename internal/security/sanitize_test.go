package security

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"  hello  ":                    "hello",
		"<script>alert(1)</script>":    "scriptalert(1)/script",
		"JavaScript:alert(1)":          "alert(1)",
		`<img src=x onerror=alert(1)>`: "img src=x alert(1)",
		"ONCLICK=steal()":              "steal()",
		"plain text, nothing to see":   "plain text, nothing to see",
		"":                             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "input %q", in)
	}
}

func TestSanitize_Truncates(t *testing.T) {
	out := Sanitize(strings.Repeat("é", 1500))
	assert.Equal(t, MaxInputLength, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.COM "))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("a@b.com"))
	assert.True(t, IsValidEmail("first.last+tag@sub.example.org"))
	assert.False(t, IsValidEmail("a@b"))
	assert.False(t, IsValidEmail("a b@c.com"))
	assert.False(t, IsValidEmail("@c.com"))
	assert.False(t, IsValidEmail(strings.Repeat("a", 250)+"@b.com"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", ClientIP(r))

	r.Header.Set("X-Real-IP", "172.16.0.9")
	assert.Equal(t, "172.16.0.9", ClientIP(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ""
	assert.Equal(t, "unknown", ClientIP(r))
}

func TestNewCSRFToken(t *testing.T) {
	a, err := NewCSRFToken()
	require.NoError(t, err)
	b, err := NewCSRFToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestRecorder_Record(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := NewRecorder(zap.New(core))

	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	r.Header.Set("User-Agent", "test-agent")
	rec.Record(r, EventLoginFailed, zap.String("reason", "invalid_password"))

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, EventLoginFailed, ctx["event"])
	assert.Equal(t, "198.51.100.4", ctx["ip"])
	assert.Equal(t, "test-agent", ctx["user_agent"])
	assert.Equal(t, "invalid_password", ctx["reason"])

	var nilRec *Recorder
	nilRec.Record(r, EventLoginFailed)
	NewRecorder(nil).Record(nil, EventLoginFailed)

	ctxRec := NewRecorder(zap.New(core))
	ctxRec.RecordContext(WithOrigin(r.Context(), OriginOf(r)), EventAccountLocked, zap.Int("attempts", 5))
	last := logs.All()[logs.Len()-1].ContextMap()
	assert.Equal(t, EventAccountLocked, last["event"])
	assert.Equal(t, "198.51.100.4", last["ip"])

	ctxRec.RecordContext(context.Background(), EventLoginFailed)
	last = logs.All()[logs.Len()-1].ContextMap()
	assert.Equal(t, "unknown", last["ip"])
}
