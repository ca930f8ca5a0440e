package captcha

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scripted returns an intn that replays values in order.
func scripted(vals ...int) func(int) int {
	i := 0
	return func(n int) int {
		v := vals[i%len(vals)]
		i++
		return v % n
	}
}

func fixedEngine(vals ...int) *Engine {
	e := NewEngine("secret")
	e.intn = scripted(vals...)
	e.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return e
}

func TestIssue_Operators(t *testing.T) {
	add := fixedEngine(4, 9, 0).Issue()
	assert.Equal(t, "5 + 10", add.Question)
	assert.Equal(t, 15, add.Answer)

	sub := fixedEngine(2, 11, 1).Issue()
	assert.Equal(t, "12 - 3", sub.Question)
	assert.Equal(t, 9, sub.Answer)

	mul := fixedEngine(19, 19, 2, 6, 9).Issue()
	assert.Equal(t, "7 × 10", mul.Question)
	assert.Equal(t, 70, mul.Answer)
}

func TestIssue_RandomBounds(t *testing.T) {
	e := NewEngine("secret")
	q := regexp.MustCompile(`^(\d+) ([+\-×]) (\d+)$`)
	for i := 0; i < 500; i++ {
		c := e.Issue()
		m := q.FindStringSubmatch(c.Question)
		require.NotNil(t, m, c.Question)
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[3])
		switch m[2] {
		case "+":
			assert.True(t, a >= 1 && a <= 20 && b >= 1 && b <= 20)
			assert.Equal(t, a+b, c.Answer)
		case "-":
			assert.GreaterOrEqual(t, a, b)
			assert.GreaterOrEqual(t, c.Answer, 0)
			assert.Equal(t, a-b, c.Answer)
		case "×":
			assert.True(t, a >= 1 && a <= 10 && b >= 1 && b <= 10)
			assert.Equal(t, a*b, c.Answer)
		}
		assert.Len(t, c.Token, 64)
	}
}

func TestIssue_TokenDependsOnSecret(t *testing.T) {
	a := fixedEngine(4, 9, 0)
	b := fixedEngine(4, 9, 0)
	b.secret = "other"
	assert.NotEqual(t, a.Issue().Token, b.Issue().Token)
}

func TestVerify(t *testing.T) {
	assert.True(t, Verify(15, "15", true))
	assert.False(t, Verify(15, "16", true))
	assert.False(t, Verify(15, "15", false))
	assert.False(t, Verify(0, "", true))
	assert.False(t, Verify(0, "abc", true))
}

func TestAnswer_Unmarshal(t *testing.T) {
	var body struct {
		A Answer `json:"captchaAnswer"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"captchaAnswer": 12}`), &body))
	assert.True(t, body.A.Check("12", true))

	require.NoError(t, json.Unmarshal([]byte(`{"captchaAnswer": "12"}`), &body))
	assert.True(t, body.A.Check("12", true))

	require.NoError(t, json.Unmarshal([]byte(`{"captchaAnswer": "12abc"}`), &body))
	assert.True(t, body.A.Check("12", true))

	require.NoError(t, json.Unmarshal([]byte(`{"captchaAnswer": 12.9}`), &body))
	assert.True(t, body.A.Check("12", true))

	require.NoError(t, json.Unmarshal([]byte(`{"captchaAnswer": null}`), &body))
	assert.True(t, body.A.Present())
	assert.False(t, body.A.Check("0", true))

	var empty struct {
		A Answer `json:"captchaAnswer"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.False(t, empty.A.Present())
}

func TestHandler_IssueSetsScopedCookie(t *testing.T) {
	h := NewHandler(fixedEngine(4, 9, 0), Cookies{Secure: true, TTL: 5 * time.Minute}, zap.NewNop().Sugar())
	rec := httptest.NewRecorder()
	h.Issue(rec, httptest.NewRequest(http.MethodGet, "/api/captcha", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "5 + 10", resp.Question)
	assert.NotEmpty(t, resp.Token)
	assert.NotContains(t, rec.Body.String(), `"answer"`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	ck := cookies[0]
	assert.Equal(t, CookieName, ck.Name)
	assert.Equal(t, "15", ck.Value)
	assert.Equal(t, 300, ck.MaxAge)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.Equal(t, "/", ck.Path)
}

func TestRead(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	_, ok := Read(r)
	assert.False(t, ok)

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "42"})
	v, ok := Read(r)
	assert.True(t, ok)
	assert.Equal(t, "42", v)
}
