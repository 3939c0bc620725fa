// Package errors provides a small, uniform error taxonomy used across both
// services instead of ad-hoc fmt.Errorf call sites.
package errors

import (
	"fmt"
	"strings"
)

// OperationError describes a failed operation with optional component,
// resource, and underlying cause context.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString("failed to ")
	b.WriteString(e.Operation)
	if e.Component != "" {
		b.WriteString(", component: ")
		b.WriteString(e.Component)
	}
	if e.Resource != "" {
		b.WriteString(", resource: ")
		b.WriteString(e.Resource)
	}
	if e.Cause != nil {
		b.WriteString(", cause: ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a simple "failed to <action>[: <cause>]" error.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds an *OperationError carrying component and
// resource context alongside the operation and cause.
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf wraps err with an additional formatted message, returning nil when
// err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}

// DatabaseError builds an *OperationError for the "database" component.
func DatabaseError(operation string, cause error) error {
	return &OperationError{Operation: operation, Component: "database", Cause: cause}
}

// NetworkError builds an *OperationError for the "network" component,
// carrying the target endpoint as the resource.
func NetworkError(operation, endpoint string, cause error) error {
	return &OperationError{Operation: operation, Component: "network", Resource: endpoint, Cause: cause}
}

// ValidationError reports a field-level validation failure.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports a configuration-setting failure.
func ConfigurationError(key, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", key, reason)
}

// TimeoutError reports an operation that exceeded its deadline.
func TimeoutError(operation, duration string) error {
	return fmt.Errorf("timeout while %s after %s", operation, duration)
}

// AuthenticationError reports a failed authentication attempt.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports insufficient permissions for an action on a resource.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failure parsing a resource in a given format.
func ParseError(resource, format string, cause error) error {
	return FailedToWithDetails(fmt.Sprintf("parse %s as %s", resource, format), "parser", resource, cause)
}

var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"unavailable",
	"temporary",
	"reset by peer",
}

// IsRetryable reports whether err looks like a transient failure worth a
// single retry, based on its message. nil is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Chain joins any number of non-nil errors into a single error, skipping nils.
// Returns nil if every error is nil, the error itself if exactly one is
// non-nil, and a "multiple errors: ..." summary otherwise.
func Chain(errs ...error) error {
	var msgs []string
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
			msgs = append(msgs, e.Error())
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
