// Package apperr carries the error taxonomy shared by every HTTP boundary
// and maps it to status codes and the {"error": "..."} response body.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Kind classifies a failure by how it is surfaced to the client.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindLockout
	KindRateLimit
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindLockout:
		return http.StatusLocked
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a client-safe message with a kind and an optional cause.
// Msg is shown to the client verbatim; Err is only ever logged.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error     { return &Error{Kind: KindValidation, Msg: msg} }
func Authentication(msg string) error { return &Error{Kind: KindAuthentication, Msg: msg} }
func Authorization(msg string) error  { return &Error{Kind: KindAuthorization, Msg: msg} }
func NotFound(msg string) error       { return &Error{Kind: KindNotFound, Msg: msg} }
func Lockout(msg string) error        { return &Error{Kind: KindLockout, Msg: msg} }
func RateLimit(msg string) error      { return &Error{Kind: KindRateLimit, Msg: msg} }

// Internal wraps an unexpected failure. The cause never reaches the client.
func Internal(err error) error {
	return &Error{Kind: KindInternal, Msg: "Internal server error", Err: err}
}

// KindOf reports the kind of err; anything unclassified is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Response is the failure body.
type Response struct {
	Error string `json:"error"`
}

// Write maps err to its status and writes the client-safe message.
// Internal failures are logged with full detail.
func Write(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindInternal, Msg: "Internal server error", Err: err}
	}
	if e.Kind == KindInternal && logger != nil {
		logger.Errorw("request failed", "err", err)
	}
	msg := e.Msg
	if e.Kind == KindInternal {
		msg = "Internal server error"
	}
	WriteJSON(w, e.Kind.Status(), Response{Error: msg})
}
