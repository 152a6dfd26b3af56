package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"vectorbid/internal/export"
	"vectorbid/internal/ingest"
	"vectorbid/internal/rulepack"
	"vectorbid/internal/storage"
)

// Error kinds. Every error that escapes the orchestrator carries one.
const (
	KindBadInput = "bad_input"
	KindNotFound = "not_found"
	KindTimeout  = "deadline_exceeded"
	KindInternal = "internal"
)

// Error is the taxonomy error surfaced at the HTTP boundary.
type Error struct {
	Kind    string `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// HTTPStatus maps the kind to its response code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindBadInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// BadInput builds a 400-class error.
func BadInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadInput, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a 404-class error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Classify maps a component error onto the taxonomy. Known sentinels keep
// their meaning; everything else is internal.
func Classify(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "request deadline exceeded", err: err}
	case errors.Is(err, ingest.ErrPackageNotFound):
		return &Error{Kind: KindNotFound, Message: "bid package not found", err: err}
	case errors.Is(err, rulepack.ErrPackNotFound):
		return &Error{Kind: KindNotFound, Message: "rule pack not found", err: err}
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: "record not found", err: err}
	case errors.Is(err, rulepack.ErrPackInvalid):
		return &Error{Kind: KindBadInput, Message: err.Error(), err: err}
	case errors.Is(err, ingest.ErrIngest):
		return &Error{Kind: KindBadInput, Message: err.Error(), err: err}
	case errors.Is(err, export.ErrNoSecret):
		return &Error{Kind: KindInternal, Message: "export signing not configured", err: err}
	}
	return &Error{Kind: KindInternal, Message: "internal error", err: err}
}
