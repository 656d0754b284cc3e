package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ErrorString(t *testing.T) {
	e := New(KindValidation, "missing field")
	assert.Equal(t, "validation_error: missing field", e.Error())

	wrapped := Wrap(KindTimeout, true, errors.New("dial tcp: timeout"))
	assert.Contains(t, wrapped.Error(), "timeout")
	assert.Contains(t, wrapped.Error(), "dial tcp: timeout")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindConnectionError, false, cause)
	require.ErrorIs(t, e, cause)
}

func TestIsRetryable(t *testing.T) {
	retryable := Wrap(KindRateLimit, true, errors.New("429"))
	nonRetryable := Wrap(KindBadRequest, false, errors.New("400"))

	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsRetryable(nonRetryable))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestIsRetryable_WrappedThroughFmtErrorf(t *testing.T) {
	retryable := Wrap(KindQdrantTimeout, true, errors.New("context deadline exceeded"))
	outer := fmt.Errorf("calling vector store: %w", retryable)

	assert.True(t, IsRetryable(outer))
}
