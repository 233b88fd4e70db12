package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	fusionerrors "github.com/iff-guardian/fusion/internal/errors"
)

func TestFusionError_Error(t *testing.T) {
	err := fusionerrors.New(fusionerrors.KindRateLimitExceeded, "too many requests").
		WithIntegration("int-1", "siem", "splunk")

	msg := err.Error()
	assert.Contains(t, msg, "RATE_LIMIT_EXCEEDED")
	assert.Contains(t, msg, "int-1")
	assert.Contains(t, msg, "splunk")
	assert.Contains(t, msg, "too many requests")
}

func TestFusionError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := fusionerrors.Wrap(fusionerrors.KindConnectionRefused, "connect failed", cause)

	assert.Equal(t, cause, err.Unwrap())
}

func TestKindOf(t *testing.T) {
	wrapped := fusionerrors.Wrap(fusionerrors.KindSyncQueueFull, "queue full", nil)
	assert.Equal(t, fusionerrors.KindSyncQueueFull, fusionerrors.KindOf(wrapped))
	assert.Equal(t, fusionerrors.KindIntegrationError, fusionerrors.KindOf(fmt.Errorf("plain error")))
}

func TestRedact(t *testing.T) {
	in := map[string]any{
		"name":     "splunk-prod",
		"password": "hunter2",
		"endpoint": "https://splunk.example.com",
	}
	out := fusionerrors.Redact(in)

	assert.Equal(t, "[REDACTED]", out["password"])
	assert.Equal(t, "splunk-prod", out["name"])
	assert.Equal(t, "https://splunk.example.com", out["endpoint"])
	// Original map must be untouched.
	assert.Equal(t, "hunter2", in["password"])
}

func TestRedact_CredentialsBlob(t *testing.T) {
	in := map[string]any{
		"credentials": map[string]string{"apiKey": "secret-value", "username": "svc-account"},
		"endpoint":    "https://example.com",
	}
	out := fusionerrors.Redact(in)

	assert.Equal(t, "[REDACTED]", out["credentials"])
	assert.Equal(t, "https://example.com", out["endpoint"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, fusionerrors.IsRetryable("timeout"))
	assert.True(t, fusionerrors.IsRetryable("5xx"))
	assert.False(t, fusionerrors.IsRetryable("401"))
}
