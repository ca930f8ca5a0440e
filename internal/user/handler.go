package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/captcha"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/community"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/config"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/security"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/session"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user/entity"
)

// Limits are the per-IP attempt budgets.
type Limits struct {
	Login    config.RateRule
	Register config.RateRule
}

// Handler exposes the account endpoints under /api/auth.
type Handler struct {
	svc            *Service
	limiter        *ratelimit.Limiter
	limits         Limits
	issuer         *session.Issuer
	cookies        session.Cookies
	captchaCookies captcha.Cookies
	csrfRegTTL     time.Duration
	events         *security.Recorder
	logger         *zap.SugaredLogger
}

type HandlerDeps struct {
	Service         *Service
	Limiter         *ratelimit.Limiter
	Limits          Limits
	Issuer          *session.Issuer
	Cookies         session.Cookies
	CaptchaCookies  captcha.Cookies
	CSRFRegisterTTL time.Duration
	Events          *security.Recorder
	Logger          *zap.SugaredLogger
}

func NewHandler(d HandlerDeps) *Handler {
	ttl := d.CSRFRegisterTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{
		svc:            d.Service,
		limiter:        d.Limiter,
		limits:         d.Limits,
		issuer:         d.Issuer,
		cookies:        d.Cookies,
		captchaCookies: d.CaptchaCookies,
		csrfRegTTL:     ttl,
		events:         d.Events,
		logger:         d.Logger,
	}
}

// View is the account as returned to its owner.
type View struct {
	ID              string             `json:"id"`
	FirstName       string             `json:"firstName"`
	LastName        string             `json:"lastName"`
	Email           string             `json:"email"`
	Avatar          *string            `json:"avatar"`
	Bio             string             `json:"bio"`
	Location        string             `json:"location"`
	Phone           string             `json:"phone"`
	CommunityScore  int                `json:"communityScore"`
	JoinedAt        time.Time          `json:"joinedAt"`
	IsEmailVerified bool               `json:"isEmailVerified"`
	Preferences     entity.Preferences `json:"preferences"`
}

func NewView(u *entity.User) View {
	v := View{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		Bio:             u.Bio,
		Location:        u.Location,
		Phone:           u.Phone,
		CommunityScore:  u.CommunityScore,
		JoinedAt:        u.CreatedAt,
		IsEmailVerified: u.IsEmailVerified,
		Preferences:     entity.DefaultPreferences(),
	}
	if u.Avatar != "" {
		a := u.Avatar
		v.Avatar = &a
	}
	if u.Preferences != nil {
		v.Preferences = *u.Preferences
	}
	return v
}

// allow applies a rate rule; a failing backend lets the request through.
func (h *Handler) allow(r *http.Request, action string, rule config.RateRule) bool {
	ip := security.ClientIP(r)
	ok, err := h.limiter.Allow(r.Context(), action+"-"+ip, rule.Max, rule.Window)
	if err != nil {
		h.logger.Warnw("rate limiter unavailable, allowing request", "action", action, "err", err)
		return true
	}
	if !ok {
		h.events.Record(r, security.EventRateLimitExceeded, zap.String("action", action))
	}
	return ok
}

// proof reads the answer cookie and clears it so a challenge is never reused.
func (h *Handler) proof(w http.ResponseWriter, r *http.Request, answer captcha.Answer) CaptchaProof {
	cookie, set := captcha.Read(r)
	if set {
		h.captchaCookies.Clear(w)
	}
	return CaptchaProof{Answer: answer, Cookie: cookie, CookieSet: set}
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("Request body too large")
		}
		return apperr.Validation("Invalid request body")
	}
	return nil
}

type RegisterRequest struct {
	FirstName     string         `json:"firstName"`
	LastName      string         `json:"lastName"`
	Email         string         `json:"email"`
	Password      string         `json:"password"`
	CaptchaAnswer captcha.Answer `json:"captchaAnswer"`
	CaptchaToken  string         `json:"captchaToken"`
}

type RegisterResponse struct {
	Message   string `json:"message"`
	EmailSent bool   `json:"emailSent"`
	UserID    string `json:"userId"`
	// CSRFToken mirrors the HttpOnly csrf-token cookie for the x-csrf-token header.
	CSRFToken string `json:"csrfToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r, "register", h.limits.Register) {
		apperr.Write(w, h.logger, apperr.RateLimit("Too many registration attempts. Please try again later."))
		return
	}
	var req RegisterRequest
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	ctx := security.WithOrigin(r.Context(), security.OriginOf(r))
	res, err := h.svc.Register(ctx, RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Captcha:   h.proof(w, r, req.CaptchaAnswer),
	})
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		apperr.Write(w, h.logger, apperr.Internal(err))
		return
	}
	h.cookies.SetCSRF(w, csrf, h.csrfRegTTL)
	apperr.WriteJSON(w, http.StatusOK, RegisterResponse{
		Message:   MsgRegistered,
		EmailSent: res.EmailSent,
		UserID:    res.UserID,
		CSRFToken: csrf,
	})
}

type LoginRequest struct {
	Email         string         `json:"email"`
	Password      string         `json:"password"`
	CaptchaAnswer captcha.Answer `json:"captchaAnswer"`
}

type LoginResponse struct {
	User      View   `json:"user"`
	CSRFToken string `json:"csrfToken"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r, "login", h.limits.Login) {
		apperr.Write(w, h.logger, apperr.RateLimit("Too many login attempts. Please try again later."))
		return
	}
	var req LoginRequest
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	ctx := security.WithOrigin(r.Context(), security.OriginOf(r))
	u, err := h.svc.Login(ctx, LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Captcha:  h.proof(w, r, req.CaptchaAnswer),
	})
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	token, err := h.issuer.Issue(u.ID, u.Email)
	if err != nil {
		apperr.Write(w, h.logger, apperr.Internal(err))
		return
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		apperr.Write(w, h.logger, apperr.Internal(err))
		return
	}
	h.cookies.SetSession(w, token, csrf, h.issuer.TTL())
	apperr.WriteJSON(w, http.StatusOK, LoginResponse{User: NewView(u), CSRFToken: csrf})
}

type VerifyRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	ctx := security.WithOrigin(r.Context(), security.OriginOf(r))
	if err := h.svc.VerifyEmail(ctx, req.Email, req.Token); err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, MessageResponse{Message: MsgVerified})
}

// Logout drops both session cookies. Tokens are stateless, so nothing is revoked server side.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.ClearSession(w)
	apperr.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

type ProfileResponse struct {
	User      View              `json:"user"`
	Community community.Summary `json:"community"`
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.logger, apperr.Authentication("Unauthorized"))
		return
	}
	u, err := h.svc.Profile(r.Context(), claims.UserID)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, ProfileResponse{User: NewView(u), Community: community.Summarize(u.CommunityScore)})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.logger, apperr.Authentication("Unauthorized"))
		return
	}
	var req ProfileUpdate
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), claims.UserID, req)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, ProfileResponse{User: NewView(u), Community: community.Summarize(u.CommunityScore)})
}

// AwardScore handles POST /api/users/score for the session's own account.
func (h *Handler) AwardScore(w http.ResponseWriter, r *http.Request) {
	claims, ok := session.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.logger, apperr.Authentication("Unauthorized"))
		return
	}
	var req ScoreInput
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	res, err := h.svc.AwardScore(r.Context(), claims.UserID, req)
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, res)
}
