package domain

import "fmt"

// ErrorKind identifies the category of a CoreError. Callers switch on Kind
// rather than comparing error strings, and adapters map it back onto the
// host's own error surface (blocked/rate-limited/etc.).
type ErrorKind string

const (
	// Authentication and callback errors.

	// ErrAuthCallbackTimedOut indicates no callback arrived before the pending flow's deadline.
	ErrAuthCallbackTimedOut ErrorKind = "auth_callback_timed_out"
	// ErrAuthServerReturnedError indicates the identity provider redirected back with an error parameter.
	ErrAuthServerReturnedError ErrorKind = "auth_server_returned_error"
	// ErrMalformedCallback indicates a callback URI missing a required parameter.
	ErrMalformedCallback ErrorKind = "malformed_callback"
	// ErrCannotOpenBrowser indicates the host or OS could not launch the authorization page.
	ErrCannotOpenBrowser ErrorKind = "cannot_open_browser"
	// ErrOAuthFlowStateLost indicates sign-in state could not be established or no longer
	// matches: the flow's state nonce could not be generated, or a token source's session
	// id no longer matches the active session.
	ErrOAuthFlowStateLost ErrorKind = "oauth_flow_state_lost"
	// ErrTokenExchangeFailed indicates the token endpoint rejected an authorization code.
	ErrTokenExchangeFailed ErrorKind = "token_exchange_failed"
	// ErrTokenRefreshFailed indicates the token endpoint rejected a refresh token.
	ErrTokenRefreshFailed ErrorKind = "token_refresh_failed"
	// ErrStoredTokenCorrupted indicates the persisted session blob could not be decoded.
	ErrStoredTokenCorrupted ErrorKind = "stored_token_corrupted"

	// Model catalog errors.

	// ErrModelCatalogFetchFailed indicates the models endpoint could not be reached or parsed.
	ErrModelCatalogFetchFailed ErrorKind = "model_catalog_fetch_failed"
	// ErrModelNotFound indicates a request referenced an unknown model id.
	ErrModelNotFound ErrorKind = "model_not_found"

	// Chat request validation errors.

	// ErrInvalidRequest indicates a chat request failed structural validation.
	ErrInvalidRequest ErrorKind = "invalid_request"
	// ErrInvalidToolName indicates a tool name did not match the allowed character set.
	ErrInvalidToolName ErrorKind = "invalid_tool_name"
	// ErrTooManyTools indicates more than the maximum number of tools were supplied.
	ErrTooManyTools ErrorKind = "too_many_tools"
	// ErrToolModeRequiredWithMultipleTools indicates required tool mode was requested with more than one tool declared.
	ErrToolModeRequiredWithMultipleTools ErrorKind = "tool_mode_required_with_multiple_tools"
	// ErrUnmatchedToolCall indicates an assistant message's tool calls were not each answered
	// exactly once by the immediately following user message of tool results.
	ErrUnmatchedToolCall ErrorKind = "unmatched_tool_call"
	// ErrInvalidToolCallArguments indicates a streamed tool call's arguments did not parse as JSON.
	ErrInvalidToolCallArguments ErrorKind = "invalid_tool_call_arguments"

	// Gateway response errors.

	// ErrRequestBlocked indicates the gateway refused the request (HTTP 403).
	ErrRequestBlocked ErrorKind = "request_blocked"
	// ErrRateLimited indicates the gateway asked the caller to slow down.
	ErrRateLimited ErrorKind = "rate_limited"
	// ErrQuotaExceeded indicates the caller's account quota is exhausted.
	ErrQuotaExceeded ErrorKind = "quota_exceeded"
	// ErrTransportError indicates a network or unexpected HTTP failure.
	ErrTransportError ErrorKind = "transport_error"
)

// CoreError is the error envelope returned by every service in this module.
// Adapters classify failures by Kind instead of inspecting HTTP status codes
// or matching on message text.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewError builds a CoreError with a message and no underlying cause.
func NewError(kind ErrorKind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// WrapError builds a CoreError that carries an underlying cause.
func WrapError(kind ErrorKind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a CoreError of the same Kind, so callers can
// use errors.Is(err, &CoreError{Kind: ErrModelNotFound}) style checks.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
