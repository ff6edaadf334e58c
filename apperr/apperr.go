// Package apperr defines the closed set of caller-facing failure kinds used by
// the linking workflow. A classified error carries a static, non-sensitive
// message for the client; the original cause stays wrapped for the audit trail
// and is never serialized into a response.
package apperr

import (
	"errors"
	"net/http"
)

// Error represents a typed, status-aware application error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap classifies err under base with a static caller-facing message. The
// original err is retained as the cause but never leaks into Message.
func Wrap(err error, base *Error, message string) *Error {
	if err == nil {
		return nil
	}
	if base == nil {
		base = ErrInternal
	}
	copy := *base
	if message != "" {
		copy.Message = message
	}
	copy.Err = err
	return &copy
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

func Status(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func Message(err error) string {
	if e, ok := As(err); ok {
		if e.Message != "" {
			return e.Message
		}
		return e.Code
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Detail returns the stringified internal cause of a classified error, for the
// audit sink only. Falls back to the safe message when no cause was attached.
func Detail(err error) string {
	if e, ok := As(err); ok && e.Err != nil {
		return e.Err.Error()
	}
	return Message(err)
}

// Payload renders the response body for a classified error.
func Payload(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	return map[string]any{
		"code":    code(err),
		"message": Message(err),
	}
}

func code(err error) string {
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	return "internal_error"
}

var (
	ErrBadRequest = New("bad_request", http.StatusBadRequest, "")
	ErrNotFound   = New("not_found", http.StatusNotFound, "")
	ErrInternal   = New("internal_error", http.StatusInternalServerError, "")
)
