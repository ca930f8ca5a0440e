package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/captcha"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/community"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/password"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/security"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-community-gate/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/verification"
)

// Client-facing messages.
const (
	msgAllFieldsRequired   = "All fields are required"
	msgLoginFieldsRequired = "Email, password, and CAPTCHA are required"
	msgInvalidEmail        = "Please enter a valid email address"
	msgCaptchaFailed       = "CAPTCHA verification failed"
	msgUserExists          = "User already exists with this email"
	msgInvalidCredentials  = "Invalid credentials"
	msgAccountLocked       = "Account temporarily locked due to too many failed attempts. Please try again later."
	msgNotVerified         = "Please verify your email address before logging in."
	msgVerifyFieldsMissing = "Email and token are required"
	msgInvalidVerification = "Invalid or expired verification token"
	msgUserNotFound        = "User not found"
	msgInvalidAward        = "A known action or a positive points value is required"

	MsgRegistered = "Registration successful! Please check your email to verify your account."
	MsgVerified   = "Email verified successfully! You can now log in."
)

// Options are the account policy knobs.
type Options struct {
	// Secret feeds verification token derivation.
	Secret           string
	VerificationTTL  time.Duration
	MaxLoginAttempts int
	LockDuration     time.Duration
}

func (o Options) withDefaults() Options {
	if o.VerificationTTL <= 0 {
		o.VerificationTTL = verification.DefaultTTL
	}
	if o.MaxLoginAttempts <= 0 {
		o.MaxLoginAttempts = 5
	}
	if o.LockDuration <= 0 {
		o.LockDuration = 2 * time.Hour
	}
	return o
}

// Service runs the account flows: registration, login with lockout,
// email verification and profile maintenance.
type Service struct {
	store  userrepo.Store
	hasher password.Hasher
	mailer verification.Mailer
	events *security.Recorder
	logger *zap.SugaredLogger
	opts   Options
	now    func() time.Time
}

func NewService(store userrepo.Store, hasher password.Hasher, mailer verification.Mailer, events *security.Recorder, logger *zap.SugaredLogger, opts Options) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		mailer: mailer,
		events: events,
		logger: logger,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

// CaptchaProof pairs the submitted answer with the answer cookie.
type CaptchaProof struct {
	Answer    captcha.Answer
	Cookie    string
	CookieSet bool
}

func (p CaptchaProof) ok() bool { return p.Answer.Check(p.Cookie, p.CookieSet) }

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Captcha   CaptchaProof
}

type RegisterResult struct {
	UserID    string
	EmailSent bool
}

// Register creates an unverified account and sends the verification link.
// A failed send does not fail registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Password == "" || !in.Captcha.Answer.Present() {
		return nil, apperr.Validation(msgAllFieldsRequired)
	}
	firstName := security.Sanitize(in.FirstName)
	lastName := security.Sanitize(in.LastName)
	email := security.NormalizeEmail(in.Email)
	if !security.IsValidEmail(email) {
		return nil, apperr.Validation(msgInvalidEmail)
	}
	if res := password.Validate(in.Password); !res.IsValid {
		return nil, apperr.Validation(res.First())
	}
	if !in.Captcha.ok() {
		s.events.RecordContext(ctx, security.EventCaptchaFailed, zap.String("email", email))
		return nil, apperr.Validation(msgCaptchaFailed)
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		s.events.RecordContext(ctx, security.EventDuplicateRegister, zap.String("email", email))
		return nil, apperr.Validation(msgUserExists)
	} else if !errors.Is(err, userrepo.ErrNotFound) {
		return nil, s.registrationError(ctx, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.registrationError(ctx, fmt.Errorf("hash password: %w", err))
	}
	now := s.now()
	token := verification.NewToken(email, now, s.opts.Secret)
	expiry := now.Add(s.opts.VerificationTTL)
	prefs := entity.DefaultPreferences()
	u := &entity.User{
		Email:                   email,
		PasswordHash:            hash,
		FirstName:               firstName,
		LastName:                lastName,
		Preferences:             &prefs,
		EmailVerificationToken:  &token,
		EmailVerificationExpiry: &expiry,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	id, err := s.store.Insert(ctx, u)
	if errors.Is(err, userrepo.ErrDuplicate) {
		s.events.RecordContext(ctx, security.EventDuplicateRegister, zap.String("email", email))
		return nil, apperr.Validation(msgUserExists)
	}
	if err != nil {
		return nil, s.registrationError(ctx, fmt.Errorf("insert user: %w", err))
	}

	sent := true
	if err := s.mailer.SendVerification(ctx, email, token); err != nil {
		sent = false
		s.events.RecordContext(ctx, security.EventVerificationMailErr, zap.String("email", email), zap.Error(err))
	}
	s.events.RecordContext(ctx, security.EventUserRegistered, zap.String("userId", id), zap.String("email", email))
	return &RegisterResult{UserID: id, EmailSent: sent}, nil
}

func (s *Service) registrationError(ctx context.Context, err error) error {
	s.events.RecordContext(ctx, security.EventRegistrationError, zap.Error(err))
	return apperr.Internal(err)
}

type LoginInput struct {
	Email    string
	Password string
	Captcha  CaptchaProof
}

// Login checks credentials and lockout state. On success the attempt
// counter and lock are cleared and the refreshed account is returned.
func (s *Service) Login(ctx context.Context, in LoginInput) (*entity.User, error) {
	if in.Email == "" || in.Password == "" || !in.Captcha.Answer.Present() {
		return nil, apperr.Validation(msgLoginFieldsRequired)
	}
	email := security.NormalizeEmail(in.Email)
	if !security.IsValidEmail(email) {
		return nil, apperr.Validation(msgInvalidEmail)
	}
	if !in.Captcha.ok() {
		s.events.RecordContext(ctx, security.EventLoginCaptchaFailed, zap.String("email", email))
		return nil, apperr.Validation(msgCaptchaFailed)
	}

	u, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, userrepo.ErrNotFound) {
		s.events.RecordContext(ctx, security.EventLoginFailed, zap.String("email", email), zap.String("reason", "user_not_found"))
		return nil, apperr.Authentication(msgInvalidCredentials)
	}
	if err != nil {
		return nil, s.loginError(ctx, err)
	}

	now := s.now()
	if u.Locked(now) {
		s.events.RecordContext(ctx, security.EventLoginBlocked, zap.String("email", email), zap.String("reason", "account_locked"))
		return nil, apperr.Lockout(msgAccountLocked)
	}
	if !u.IsEmailVerified {
		s.events.RecordContext(ctx, security.EventLoginFailed, zap.String("email", email), zap.String("reason", "email_not_verified"))
		return nil, apperr.Authentication(msgNotVerified)
	}

	if !s.hasher.Verify(u.PasswordHash, in.Password) {
		attempts, locked, err := s.store.RegisterFailedLogin(ctx, u.ID, s.opts.MaxLoginAttempts, now.Add(s.opts.LockDuration), now)
		if err != nil {
			return nil, s.loginError(ctx, fmt.Errorf("register failed login: %w", err))
		}
		if locked {
			s.events.RecordContext(ctx, security.EventAccountLocked, zap.String("email", email), zap.Int("attempts", attempts))
		}
		s.events.RecordContext(ctx, security.EventLoginFailed,
			zap.String("email", email), zap.String("reason", "invalid_password"), zap.Int("attempts", attempts))
		return nil, apperr.Authentication(msgInvalidCredentials)
	}

	if err := s.store.Update(ctx, u.ID, userrepo.Patch{LastLoginAt: &now, ClearLockout: true}); err != nil {
		return nil, s.loginError(ctx, fmt.Errorf("reset lockout: %w", err))
	}
	u.LastLoginAt = &now
	u.LoginAttempts = 0
	u.LockUntil = nil
	s.events.RecordContext(ctx, security.EventLoginSuccess, zap.String("userId", u.ID), zap.String("email", email))
	return u, nil
}

func (s *Service) loginError(ctx context.Context, err error) error {
	s.events.RecordContext(ctx, security.EventLoginError, zap.Error(err))
	return apperr.Internal(err)
}

// VerifyEmail consumes a verification token. The token and its expiry are
// cleared in the same update that marks the address verified.
func (s *Service) VerifyEmail(ctx context.Context, email, token string) error {
	if email == "" || token == "" {
		return apperr.Validation(msgVerifyFieldsMissing)
	}
	email = security.NormalizeEmail(email)
	token = security.Sanitize(token)

	u, err := s.store.ConsumeVerification(ctx, email, token, s.now())
	if errors.Is(err, userrepo.ErrNotFound) {
		s.events.RecordContext(ctx, security.EventVerificationFailed, zap.String("email", email), zap.String("reason", "invalid_token"))
		return apperr.Validation(msgInvalidVerification)
	}
	if err != nil {
		s.events.RecordContext(ctx, security.EventVerificationError, zap.Error(err))
		return apperr.Internal(err)
	}
	s.events.RecordContext(ctx, security.EventEmailVerified, zap.String("userId", u.ID), zap.String("email", email))
	return nil
}

// Profile loads the account behind a session.
func (s *Service) Profile(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.store.FindByID(ctx, id)
	if errors.Is(err, userrepo.ErrNotFound) {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// ProfileUpdate lists the only fields a member may change. Nil means unchanged.
type ProfileUpdate struct {
	FirstName   *string             `json:"firstName"`
	LastName    *string             `json:"lastName"`
	Bio         *string             `json:"bio"`
	Location    *string             `json:"location"`
	Phone       *string             `json:"phone"`
	Preferences *entity.Preferences `json:"preferences"`
}

// UpdateProfile sanitizes and stores the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*entity.User, error) {
	clean := func(v *string) *string {
		if v == nil {
			return nil
		}
		c := security.Sanitize(*v)
		return &c
	}
	p := userrepo.Patch{
		FirstName:   clean(in.FirstName),
		LastName:    clean(in.LastName),
		Bio:         clean(in.Bio),
		Location:    clean(in.Location),
		Phone:       clean(in.Phone),
		Preferences: in.Preferences,
	}
	if (p.FirstName != nil && strings.TrimSpace(*p.FirstName) == "") || (p.LastName != nil && strings.TrimSpace(*p.LastName) == "") {
		return nil, apperr.Validation("First and last name cannot be empty")
	}
	if err := s.store.Update(ctx, id, p); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, apperr.NotFound(msgUserNotFound)
		}
		return nil, apperr.Internal(err)
	}
	return s.Profile(ctx, id)
}

type ScoreInput struct {
	Action string `json:"action"`
	Points int    `json:"points"`
}

type ScoreResult struct {
	NewScore    int    `json:"newScore"`
	PointsAdded int    `json:"pointsAdded"`
	Action      string `json:"action,omitempty"`
	Level       string `json:"level"`
}

// AwardScore adds community points for an action in one atomic increment.
func (s *Service) AwardScore(ctx context.Context, id string, in ScoreInput) (*ScoreResult, error) {
	points := community.Award(in.Action, in.Points)
	if points <= 0 {
		return nil, apperr.Validation(msgInvalidAward)
	}
	score, err := s.store.AddScore(ctx, id, points, s.now().UTC())
	if errors.Is(err, userrepo.ErrNotFound) {
		return nil, apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Infow("community score awarded", "userId", id, "action", in.Action, "points", points, "score", score)
	return &ScoreResult{
		NewScore:    score,
		PointsAdded: points,
		Action:      in.Action,
		Level:       community.LevelFor(score).Name,
	}, nil
}
