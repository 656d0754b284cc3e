// Package errs collects the component-boundary error taxonomy and the
// result-type helpers that replace exception-based control flow.
package errs

import "fmt"

// Kind is one of the fixed error taxonomy values surfaced through
// responses and internal handling.
type Kind string

const (
	// Input
	KindValidation           Kind = "validation_error"
	KindMissingCurrentMsg    Kind = "missing_current_message"
	KindInvalidAction        Kind = "invalid_action"
	KindMissingCollection    Kind = "missing_collection_name"
	KindMissingVDBURL        Kind = "missing_vdb_url"
	KindEmptyEmbedAPIKey     Kind = "empty_embed_api_key"
	KindMissingEmbedAPIKey   Kind = "missing_embed_api_key"
	KindMissingMessages      Kind = "missing_messages"

	// Auth
	KindLLMAuthError      Kind = "llm_auth_error"
	KindMissingJSessionID Kind = "missing_jsessionid"
	KindMissingReferer    Kind = "missing_referer"

	// Upstream (LLM)
	KindRateLimit         Kind = "rate_limit"
	KindBadRequest        Kind = "bad_request"
	KindConnectionError   Kind = "connection_error"
	KindTimeout           Kind = "timeout"
	KindLLMAPIError       Kind = "llm_api_error"
	KindEmptyResponse     Kind = "empty_response"
	KindMissingAnswerField Kind = "missing_answer_field"
	KindProviderError     Kind = "provider_error"
	KindAuthError         Kind = "auth_error"

	// Vector store
	KindQdrantConnectionError Kind = "qdrant_connection_error"
	KindQdrantTimeout         Kind = "qdrant_timeout"
	KindQdrantError           Kind = "qdrant_error"

	// Embedding
	KindEmbeddingError Kind = "embedding_error"

	// Agent
	KindAgentCreationError  Kind = "agent_creation_error"
	KindAgentExecutionError Kind = "agent_execution_error"
	KindAgentFailed         Kind = "agent_failed"
	KindAgentIncomplete     Kind = "agent_incomplete"

	// Retrieval
	KindRAGProcessingError Kind = "rag_processing_error"

	// Internal
	KindInternalError Kind = "internal_error"
)

// Error is the sum-type error carried across every component boundary. It
// tags whether the caller's retry policy should attempt the call again.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a non-retryable error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an error of the given kind, carrying a cause and a retry flag.
func Wrap(kind Kind, retryable bool, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Message: msg, Retryable: retryable, Cause: cause}
}

// IsRetryable reports whether err (assumed to be, or wrap, an *Error) should
// be retried by a bounded-retry caller. Non-*Error values default to
// retryable=false, since unknown errors should surface rather than loop.
func IsRetryable(err error) bool {
	var e *Error
	if asErr(err, &e) {
		return e.Retryable
	}
	return false
}

func asErr(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
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
