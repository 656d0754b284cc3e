package llm

import (
	"context"
	"errors"
	"net/http"

	"ragqa/internal/errs"
)

// ClassifyHTTPStatus maps a provider HTTP response status to the fixed
// error taxonomy, deciding retryability the same way across providers.
func ClassifyHTTPStatus(status int, body string) *errs.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.Wrap(errs.KindAuthError, false, errors.New(body))
	case status == http.StatusTooManyRequests:
		return errs.Wrap(errs.KindRateLimit, true, errors.New(body))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return errs.Wrap(errs.KindBadRequest, false, errors.New(body))
	case status >= 500:
		return errs.Wrap(errs.KindProviderError, true, errors.New(body))
	case status >= 400:
		return errs.Wrap(errs.KindBadRequest, false, errors.New(body))
	default:
		return errs.Wrap(errs.KindProviderError, true, errors.New(body))
	}
}

// ClassifyTransportError maps a transport-level failure (dial/read/timeout)
// from the standard http.Client into the taxonomy. Context cancellation is
// not retryable since the caller already gave up.
func ClassifyTransportError(err error) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, true, err)
	}
	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindConnectionError, false, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Wrap(errs.KindTimeout, true, err)
	}
	return errs.Wrap(errs.KindConnectionError, true, err)
}

// ClassifyEmptyResponse reports the empty_response kind used when a
// provider returns 200 with no usable choice.
func ClassifyEmptyResponse() *errs.Error {
	return errs.New(errs.KindEmptyResponse, "provider returned no completion choices")
}

// ClassifyMissingAnswerField reports the missing_answer_field kind used when
// a structured response parses but lacks the required answer field, once the
// single-shot path's llm.max_retry_count attempts are used up.
func ClassifyMissingAnswerField() *errs.Error {
	return errs.New(errs.KindMissingAnswerField, "structured response missing required answer field")
}
