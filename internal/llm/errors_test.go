package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"ragqa/internal/errs"
)

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status    int
		wantKind  errs.Kind
		retryable bool
	}{
		{401, errs.KindAuthError, false},
		{403, errs.KindAuthError, false},
		{429, errs.KindRateLimit, true},
		{400, errs.KindBadRequest, false},
		{422, errs.KindBadRequest, false},
		{404, errs.KindBadRequest, false},
		{500, errs.KindProviderError, true},
		{503, errs.KindProviderError, true},
		{200, errs.KindProviderError, true},
	}
	for _, c := range cases {
		got := ClassifyHTTPStatus(c.status, "body")
		assert.Equal(t, c.wantKind, got.Kind, "status %d", c.status)
		assert.Equal(t, c.retryable, got.Retryable, "status %d", c.status)
	}
}

func TestClassifyTransportError(t *testing.T) {
	assert.Nil(t, ClassifyTransportError(nil))

	deadline := ClassifyTransportError(context.DeadlineExceeded)
	assert.Equal(t, errs.KindTimeout, deadline.Kind)
	assert.True(t, deadline.Retryable)

	canceled := ClassifyTransportError(context.Canceled)
	assert.Equal(t, errs.KindConnectionError, canceled.Kind)
	assert.False(t, canceled.Retryable)

	generic := ClassifyTransportError(errors.New("connection refused"))
	assert.Equal(t, errs.KindConnectionError, generic.Kind)
	assert.True(t, generic.Retryable)
}

func TestClassifyEmptyResponseAndMissingAnswer(t *testing.T) {
	assert.Equal(t, errs.KindEmptyResponse, ClassifyEmptyResponse().Kind)
	assert.Equal(t, errs.KindMissingAnswerField, ClassifyMissingAnswerField().Kind)
}
