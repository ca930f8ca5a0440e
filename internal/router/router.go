package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/captcha"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/gate"
	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user"
	"github.com/ovaphlow/pitchfork/service-community-gate/pkg/utilities"
)

const RequestIDHeader = "X-Request-ID"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware tags each request with a ksuid request id (unless the
// caller sent one) and logs it at debug level.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = utilities.NewKSUID()
			}
			w.Header().Set(RequestIDHeader, reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)

			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

type Deps struct {
	Logger  *zap.SugaredLogger
	Gate    *gate.Gate
	Captcha *captcha.Handler
	Users   *user.Handler
}

// New mounts every route behind the request gate.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(d.Gate.Handler)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperr.Write(w, d.Logger, apperr.NotFound("Not found"))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		apperr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/captcha", d.Captcha.Issue)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", d.Users.Register)
		r.Post("/login", d.Users.Login)
		r.Post("/verify-email", d.Users.VerifyEmail)
		r.Post("/logout", d.Users.Logout)
		r.Get("/profile", d.Users.Profile)
		r.Put("/profile", d.Users.UpdateProfile)
	})
	r.Post("/api/users/score", d.Users.AwardScore)

	return r
}
