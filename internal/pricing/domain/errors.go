package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindConcurrency   ErrorKind = "concurrency"
)

var (
	ErrValidation    = errors.New("validation_error")
	ErrConfiguration = errors.New("configuration_error")
	ErrNotFound      = errors.New("not_found")
	ErrConcurrency   = errors.New("concurrency_error")
)

// Error is a pricing failure. Context carries the evaluation summary so a
// single log line is enough to reconstruct a disputed breakdown.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	RuleID  string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RuleID != "" {
		msg += " (rule " + e.RuleID + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConcurrency:
		return e.Kind == KindConcurrency
	}
	return false
}

// WithContext returns a copy of e carrying ctx.
func (e *Error) WithContext(ctx map[string]any) *Error {
	out := *e
	out.Context = ctx
	return &out
}

func NewValidationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NewConfigurationError(code, message, ruleID string, cause error) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Message: message, RuleID: ruleID, Cause: cause}
}

func NewNotFoundError(message, ruleID string) *Error {
	return &Error{Kind: KindNotFound, Code: "rule_not_found", Message: message, RuleID: ruleID}
}

// AsError extracts a pricing error from err.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
