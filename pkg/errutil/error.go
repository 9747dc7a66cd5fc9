package errutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so callers can decide whether a run, a request or
// the whole poll cycle is affected.
type Kind string

const (
	KindUnknown       Kind = "unknown"
	KindConfiguration Kind = "configuration"
	KindCapture       Kind = "capture"
	KindAnalysis      Kind = "analysis"
	KindParse         Kind = "parse"
	KindPersistence   Kind = "persistence"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
)

// HTTPStatus maps the kind to the status code used by the HTTP API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindConfiguration:
		return http.StatusUnprocessableEntity
	case KindCapture, KindAnalysis:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Kind    Kind     `json:"code"`
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
	Err     error    `json:"-"`
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.messageWithErr())
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Is lets errors.Is match two BaseErrors of the same kind and message, so
// package sentinels keep matching after being re-wrapped with a cause.
func (e BaseError) Is(target error) bool {
	var t BaseError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Kind,
			"message": e.messageWithErr(),
			"details": e.Details,
		},
	}
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func New(kind Kind, message string, err error, opts ...Option) error {
	be := BaseError{Kind: kind, Message: message, Err: err}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func Configuration(msg string, err error, options ...Option) error {
	return New(KindConfiguration, msg, err, options...)
}

func Capture(msg string, err error, options ...Option) error {
	return New(KindCapture, msg, err, options...)
}

func Analysis(msg string, err error, options ...Option) error {
	return New(KindAnalysis, msg, err, options...)
}

func Parse(msg string, err error, options ...Option) error {
	return New(KindParse, msg, err, options...)
}

func Persistence(msg string, err error, options ...Option) error {
	return New(KindPersistence, msg, err, options...)
}

func Validation(msg string, err error, options ...Option) error {
	return New(KindValidation, msg, err, options...)
}

func NotFound(msg string, err error, options ...Option) error {
	return New(KindNotFound, msg, err, options...)
}

func Conflict(msg string, err error, options ...Option) error {
	return New(KindConflict, msg, err, options...)
}

// KindOf returns the kind of the outermost BaseError in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var base BaseError
	if errors.As(err, &base) {
		return base.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain,
// including errors combined with errors.Join.
func Is(err error, kind Kind) bool {
	switch e := err.(type) {
	case nil:
		return false
	case BaseError:
		return e.Kind == kind || Is(e.Err, kind)
	case *BaseError:
		return e.Kind == kind || Is(e.Err, kind)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if Is(inner, kind) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return Is(e.Unwrap(), kind)
	default:
		return false
	}
}
