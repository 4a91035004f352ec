package domain

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Kind classifies conversion failures.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTimeout    Kind = "timeout"
	KindRender     Kind = "render"
	KindTooLarge   Kind = "too_large"
)

const (
	msgRenderFailed = "Failed to generate PDF"
	msgPageTimeout  = "Failed to generate PDF: Page load timeout"
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	// This can happen during startup when the DB isn't ready.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// Error wraps a failure with its kind and a client-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the text shown to the caller. Render failures include the
// underlying engine message, timeouts do not.
func (e *Error) Message() string {
	if e.Kind == KindRender && e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// StatusCode maps the error kind onto an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new domain error.
func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ValidationError reports bad, missing or out-of-range input.
func ValidationError(msg string) *Error {
	return NewError(KindValidation, msg, nil)
}

// ClassifyRenderError turns a renderer failure into a timeout or render error.
// Errors that are already classified are returned as is.
func ClassifyRenderError(err error) *Error {
	if err == nil {
		return nil
	}

	var de *Error
	if errors.As(err, &de) {
		return de
	}

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return NewError(KindTimeout, msgPageTimeout, err)
	}
	return NewError(KindRender, msgRenderFailed, err)
}

// KindOf reports the kind of err. Unclassified errors are render errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ClassifyRenderError(err).Kind
}
