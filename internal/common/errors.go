// Package common defines the outcome taxonomy shared by the stores, the
// membership coordinator and the transports. Callers should use errors.Is
// and errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknown means the referenced entity does not exist or its
	// identifier is malformed. Both cases are reported the same way.
	ErrUnknown = errors.New("unknown")

	// ErrConflict means a uniqueness constraint would be or was violated.
	ErrConflict = errors.New("conflict")

	// ErrWrongCredentials is returned for an absent account and for a
	// password mismatch alike.
	ErrWrongCredentials = errors.New("wrong credentials")

	// ErrValidation means the input did not satisfy its schema.
	ErrValidation = errors.New("validation failure")
)

// Violation is a single failed rule for a named input field.
type Violation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func (v Violation) String() string {
	if v.Param != "" {
		return fmt.Sprintf("%s: %s=%s", v.Field, v.Rule, v.Param)
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Rule)
}

// ValidationError carries the structured violations of a rejected input.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "validation failure: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError is a shorthand for a single-violation ValidationError.
func NewValidationError(field, rule, param string) *ValidationError {
	return &ValidationError{Violations: []Violation{{Field: field, Rule: rule, Param: param}}}
}

// ConflictError names the unique field and the value that collided.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s '%s' is taken", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnknown
	KindWrongCredentials
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnknown:
		return "unknown"
	case KindWrongCredentials:
		return "wrong"
	default:
		return "internal"
	}
}

// KindOf maps err onto the outcome taxonomy. Anything that is not a
// business outcome is an infrastructure fault.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnknown):
		return KindUnknown
	case errors.Is(err, ErrWrongCredentials):
		return KindWrongCredentials
	default:
		return KindInternal
	}
}
