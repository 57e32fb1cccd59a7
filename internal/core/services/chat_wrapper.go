package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
	"github.com/feima-labs/feima-bridge/internal/logger"
)

// ChatWrapper drives a single chat request against an endpoint, owning the
// per-request emitted-tool-call-id set and translating raw streamed deltas
// into host-visible domain.MessagePart values.
type ChatWrapper struct {
	endpoint *ChatEndpoint
}

// NewChatWrapper wraps an endpoint for a single request's lifetime. Callers
// construct one per ProvideLanguageModelChatResponse call.
func NewChatWrapper(endpoint *ChatEndpoint) *ChatWrapper {
	return &ChatWrapper{endpoint: endpoint}
}

// Run drives the request, invoking progress for every part as it becomes
// available, and returns an error describing why the request failed, if it
// did. Both validation/programmer errors and gateway-classified failures
// (blocked, quota exceeded, rate limited) come back as a single *domain.CoreError.
func (w *ChatWrapper) Run(ctx context.Context, request domain.ChatRequest, progress driving.ProgressCallback) error {
	emitted := domain.NewEmittedToolCallIDs()

	resp, err := w.endpoint.MakeChatRequest(ctx, request.Messages, func(delta ChatDelta) error {
		return w.handleDelta(delta, emitted, progress)
	}, request.Tools, request.ToolChoice)
	if err != nil {
		return err
	}

	switch resp.Type {
	case ChatResponseSuccess:
		return nil
	case ChatResponseBlocked:
		return domain.NewError(domain.ErrRequestBlocked, "the extension has been blocked from making further requests")
	case ChatResponseQuotaExceeded:
		return domain.NewError(domain.ErrQuotaExceeded, "the account's usage quota has been exhausted")
	case ChatResponseRateLimited:
		return domain.NewError(domain.ErrRateLimited, "the gateway is rate limiting this account, try again shortly")
	default:
		return domain.NewError(domain.ErrTransportError, resp.Reason)
	}
}

func (w *ChatWrapper) handleDelta(delta ChatDelta, emitted domain.EmittedToolCallIDs, progress driving.ProgressCallback) error {
	if delta.Text != "" {
		progress(domain.TextPart{Text: delta.Text})
	}

	for _, tc := range delta.ToolCalls {
		if tc.ID == "" || tc.Name == "" {
			logger.Warn("chat wrapper: dropping tool call fragment missing id or name")
			continue
		}
		if emitted.MarkEmitted(tc.ID) {
			logger.Warn("chat wrapper: dropping duplicate tool call id %s", tc.ID)
			continue
		}

		args := strings.TrimSpace(tc.Arguments)
		if args == "" || (args[0] != '{' && args[0] != '[') {
			return domain.NewError(domain.ErrInvalidToolCallArguments, fmt.Sprintf("tool call %q arguments are not a JSON object or array", tc.ID))
		}

		var parsed any
		if err := json.Unmarshal([]byte(args), &parsed); err != nil {
			return domain.WrapError(domain.ErrInvalidToolCallArguments, fmt.Sprintf("tool call %q arguments failed to parse", tc.ID), err)
		}
		obj, ok := parsed.(map[string]any)
		if !ok || obj == nil {
			return domain.NewError(domain.ErrInvalidToolCallArguments, fmt.Sprintf("tool call %q arguments did not parse to an object", tc.ID))
		}

		progress(domain.ToolCallPart{ID: tc.ID, Name: tc.Name, Arguments: args})
	}

	return nil
}
