package security

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Security event names.
const (
	EventRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	EventCaptchaFailed       = "CAPTCHA_FAILED"
	EventLoginCaptchaFailed  = "LOGIN_CAPTCHA_FAILED"
	EventLoginFailed         = "LOGIN_FAILED"
	EventLoginBlocked        = "LOGIN_BLOCKED"
	EventAccountLocked       = "ACCOUNT_LOCKED"
	EventLoginSuccess        = "LOGIN_SUCCESS"
	EventLoginError          = "LOGIN_ERROR"
	EventDuplicateRegister   = "DUPLICATE_REGISTRATION"
	EventUserRegistered      = "USER_REGISTERED"
	EventRegistrationError   = "REGISTRATION_ERROR"
	EventVerificationFailed  = "EMAIL_VERIFICATION_FAILED"
	EventEmailVerified       = "EMAIL_VERIFIED"
	EventVerificationError   = "EMAIL_VERIFICATION_ERROR"
	EventSessionRejected     = "SESSION_REJECTED"
	EventCSRFMismatch        = "CSRF_MISMATCH"
	EventVerificationMailErr = "VERIFICATION_EMAIL_FAILED"
)

// Recorder writes security events as structured log entries. It is an
// observability sink only: it never returns an error and never panics
// into the caller.
type Recorder struct {
	logger *zap.Logger
}

func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger.Named("security")}
}

// Origin identifies where a request came from.
type Origin struct {
	IP        string
	UserAgent string
}

// OriginOf extracts the client address and user agent from r.
func OriginOf(r *http.Request) Origin {
	o := Origin{IP: "unknown", UserAgent: "unknown"}
	if r == nil {
		return o
	}
	o.IP = ClientIP(r)
	if v := r.UserAgent(); v != "" {
		o.UserAgent = v
	}
	return o
}

type originKey struct{}

// WithOrigin attaches o to ctx so layers below the handler can attribute events.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFrom returns the origin stored in ctx, or "unknown" values.
func OriginFrom(ctx context.Context) Origin {
	if o, ok := ctx.Value(originKey{}).(Origin); ok {
		return o
	}
	return Origin{IP: "unknown", UserAgent: "unknown"}
}

// Record logs event for the request r with extra key/value details.
func (rc *Recorder) Record(r *http.Request, event string, details ...zap.Field) {
	rc.emit(OriginOf(r), event, details)
}

// RecordContext logs event using the origin carried by ctx.
func (rc *Recorder) RecordContext(ctx context.Context, event string, details ...zap.Field) {
	rc.emit(OriginFrom(ctx), event, details)
}

func (rc *Recorder) emit(o Origin, event string, details []zap.Field) {
	if rc == nil {
		return
	}
	defer func() { _ = recover() }()

	fields := make([]zap.Field, 0, len(details)+3)
	fields = append(fields, zap.String("event", event), zap.String("ip", o.IP), zap.String("user_agent", o.UserAgent))
	fields = append(fields, details...)
	rc.logger.Warn("security event", fields...)
}
