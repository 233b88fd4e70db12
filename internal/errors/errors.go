// Package errors implements the fusion engine's wire-neutral error
// taxonomy: every error surfaced past a component boundary carries a
// Kind from a fixed vocabulary plus structured context, instead of an
// ad hoc message string.
package errors

import "fmt"

// Kind is one of the wire-neutral error codes this engine surfaces.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindAccessDenied        Kind = "ACCESS_DENIED"
	KindNotFound            Kind = "NOT_FOUND"
	KindDuplicateEntry      Kind = "DUPLICATE_ENTRY"
	KindConstraintViolation Kind = "CONSTRAINT_VIOLATION"
	KindConnectionRefused   Kind = "CONNECTION_REFUSED"
	KindConnectionTimeout   Kind = "CONNECTION_TIMEOUT"
	KindAuthenticationFailed Kind = "AUTHENTICATION_FAILED"
	KindRateLimitExceeded   Kind = "RATE_LIMIT_EXCEEDED"
	KindIntegrationError    Kind = "INTEGRATION_ERROR"
	KindCorrelationError    Kind = "CORRELATION_ERROR"
	KindDatabaseError       Kind = "DATABASE_ERROR"
	KindSyncQueueFull       Kind = "SYNC_QUEUE_FULL"
	KindUnsupportedPlatform Kind = "UNSUPPORTED_PLATFORM"
)

// secretFields are redacted anywhere an error's Detail payload is
// rendered to logs or returned to a caller.
var secretFields = map[string]bool{
	"credentials": true,
	"token":       true,
	"apiKey":      true,
	"privateKey":  true,
	"password":    true,
}

// FusionError is the concrete error type every component boundary in
// this engine returns. It carries enough context to let a caller
// decide whether to retry, surface, or ignore.
type FusionError struct {
	Kind          Kind
	IntegrationID string
	ToolType      string
	Platform      string
	Detail        string
	RetryAfter    int // seconds; set for KindRateLimitExceeded when the vendor provided a hint
	Cause         error
}

func (e *FusionError) Error() string {
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.IntegrationID != "" {
		msg += fmt.Sprintf(" integration=%s", e.IntegrationID)
	}
	if e.ToolType != "" {
		msg += fmt.Sprintf(" toolType=%s", e.ToolType)
	}
	if e.Platform != "" {
		msg += fmt.Sprintf(" platform=%s", e.Platform)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *FusionError) Unwrap() error {
	return e.Cause
}

// New builds a FusionError with no cause.
func New(kind Kind, detail string) *FusionError {
	return &FusionError{Kind: kind, Detail: detail}
}

// Wrap builds a FusionError around an existing cause.
func Wrap(kind Kind, detail string, cause error) *FusionError {
	return &FusionError{Kind: kind, Detail: detail, Cause: cause}
}

// WithIntegration annotates the error with the integration it
// occurred against, returning the same error for chaining.
func (e *FusionError) WithIntegration(integrationID string, toolType string, platform string) *FusionError {
	e.IntegrationID = integrationID
	e.ToolType = toolType
	e.Platform = platform
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// a *FusionError, defaulting to KindIntegrationError otherwise.
func KindOf(err error) Kind {
	var fe *FusionError
	if As(err, &fe) {
		return fe.Kind
	}
	return KindIntegrationError
}

// As is a small local alias so this package doesn't need to import
// the standard errors package under the same name as itself.
func As(err error, target **FusionError) bool {
	for err != nil {
		if fe, ok := err.(*FusionError); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Redact returns a shallow copy of fields with any key in
// {credentials, token, apiKey, privateKey, password} replaced by the
// literal "[REDACTED]". Used before logging or returning any payload
// that might carry secret material.
func Redact(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if secretFields[k] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}

// IsRetryable reports whether a raw transport-level classification
// (as opposed to a FusionError kind) should be retried by the
// adapter's backoff loop. Accepted values: connection-refused,
// timeout, 5xx, transient-network.
func IsRetryable(class string) bool {
	switch class {
	case "connection-refused", "timeout", "5xx", "transient-network":
		return true
	default:
		return false
	}
}
