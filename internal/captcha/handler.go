package captcha

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/apperr"
)

// CookieName holds the expected answer between issue and verification.
const CookieName = "captcha-answer"

// Cookies writes and reads the answer cookie.
type Cookies struct {
	Secure bool
	TTL    time.Duration
}

func (c Cookies) Set(w http.ResponseWriter, answer int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    strconv.Itoa(answer),
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear deletes the answer cookie so a challenge is consumed once.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Read returns the cookie-held answer, if any.
func Read(r *http.Request) (string, bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// Handler serves GET /api/captcha.
type Handler struct {
	engine  *Engine
	cookies Cookies
	logger  *zap.SugaredLogger
}

func NewHandler(engine *Engine, cookies Cookies, logger *zap.SugaredLogger) *Handler {
	return &Handler{engine: engine, cookies: cookies, logger: logger}
}

// Response is the client-visible part of a challenge.
type Response struct {
	Question string `json:"question"`
	Token    string `json:"token"`
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	c := h.engine.Issue()
	h.cookies.Set(w, c.Answer)
	h.logger.Debugw("captcha issued", "token", c.Token)
	apperr.WriteJSON(w, http.StatusOK, Response{Question: c.Question, Token: c.Token})
}
