package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
	"github.com/feima-labs/feima-bridge/internal/logger"
)

const chatRequestTimeout = 30 * time.Second

const maxTools = 128

var toolNameRegex = regexp.MustCompile(`^[\w-]+$`)

// ChatResponseType classifies the outcome of a chat request once the HTTP
// exchange completed (or was rejected by the gateway before streaming).
type ChatResponseType string

const (
	ChatResponseSuccess       ChatResponseType = "success"
	ChatResponseError         ChatResponseType = "error"
	ChatResponseBlocked       ChatResponseType = "blocked"
	ChatResponseQuotaExceeded ChatResponseType = "quotaExceeded"
	ChatResponseRateLimited   ChatResponseType = "rateLimited"
)

// ChatResponse is the structured outcome makeChatRequest returns after the
// HTTP exchange completes; it never carries a Go error itself, since it
// represents an expected, classifiable gateway response rather than a
// programmer/transport failure.
type ChatResponse struct {
	Type   ChatResponseType
	Reason string
}

// ChatDeltaToolCall is a fully-accumulated tool call ready to hand to the
// wrapper: both id and name have arrived, and arguments are complete.
type ChatDeltaToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ChatDelta is one unit of streamed content the endpoint hands to its
// caller: either freshly-arrived text, or a batch of newly-completed tool
// calls (never both in the same delta).
type ChatDelta struct {
	Text      string
	ToolCalls []ChatDeltaToolCall
}

// OnDeltaFunc receives streamed deltas as they arrive. Returning an error
// aborts the stream: MakeChatRequest returns that error to its caller
// instead of a ChatResponse.
type OnDeltaFunc func(ChatDelta) error

// ChatEndpoint is the per-model gateway binding: URL, model metadata, and
// the dependencies needed to authenticate, translate, and stream a request.
type ChatEndpoint struct {
	model     domain.ModelInfo
	url       string
	auth      driving.AuthenticationProvider
	gateway   driven.ModelGateway
	tokenizer driven.Tokenizer
}

// NewChatEndpoint builds an endpoint for one catalog model and kicks off a
// best-effort session prefetch to warm the auth service's cache, paced by
// limiter so resolving many endpoints in a burst doesn't hammer it.
func NewChatEndpoint(model domain.ModelInfo, apiBaseURL string, auth driving.AuthenticationProvider, gateway driven.ModelGateway, tokenizer driven.Tokenizer, limiter *rate.Limiter) *ChatEndpoint {
	e := &ChatEndpoint{
		model:     model,
		url:       apiBaseURL + "/chat/completions",
		auth:      auth,
		gateway:   gateway,
		tokenizer: tokenizer,
	}

	go func() {
		ctx := context.Background()
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		if _, err := auth.GetSessions(ctx); err != nil {
			logger.Debug("chat endpoint %s: session prefetch failed: %v", model.ID(), err)
		}
	}()

	return e
}

// Model returns the model this endpoint is bound to.
func (e *ChatEndpoint) Model() domain.ModelInfo { return e.model }

// URL returns the endpoint's chat-completions URL.
func (e *ChatEndpoint) URL() string { return e.url }

func toolCallIDs(parts []domain.MessagePart) []string {
	var ids []string
	for _, p := range parts {
		if tc, ok := p.(domain.ToolCallPart); ok {
			ids = append(ids, tc.ID)
		}
	}
	return ids
}

// validateRequest fails fast on malformed requests before any HTTP call is made.
func validateRequest(messages []domain.ChatMessage, tools []domain.Tool, toolMode domain.ToolChoiceMode) error {
	if len(messages) == 0 {
		return domain.NewError(domain.ErrInvalidRequest, "at least one message is required")
	}

	for _, t := range tools {
		if !toolNameRegex.MatchString(t.Name) {
			return domain.NewError(domain.ErrInvalidToolName, fmt.Sprintf("tool name %q is not a valid identifier", t.Name))
		}
	}
	if len(tools) > maxTools {
		return domain.NewError(domain.ErrTooManyTools, fmt.Sprintf("%d tools exceeds the limit of %d", len(tools), maxTools))
	}
	if toolMode == domain.ToolChoiceRequired && len(tools) > 1 {
		return domain.NewError(domain.ErrToolModeRequiredWithMultipleTools, "required tool mode only supports a single declared tool")
	}

	for i, m := range messages {
		if m.Role != domain.RoleAssistant {
			continue
		}
		callIDs := toolCallIDs(m.Parts)
		if len(callIDs) == 0 {
			continue
		}

		if i+1 >= len(messages) {
			return domain.NewError(domain.ErrUnmatchedToolCall, "assistant tool call has no following result message")
		}
		if messages[i+1].Role != domain.RoleUser {
			return domain.NewError(domain.ErrUnmatchedToolCall, "assistant tool call is not followed by a user message")
		}

		resultCounts := make(map[string]int)
		for _, p := range messages[i+1].Parts {
			switch part := p.(type) {
			case domain.ToolResultPart:
				resultCounts[part.ToolCallID]++
			case domain.DataPart:
				// data parts may accompany tool results without matching a call
			default:
				return domain.NewError(domain.ErrUnmatchedToolCall, "tool-answer message contains a part other than a tool result or data")
			}
		}

		toolResultCount := 0
		for _, p := range messages[i+1].Parts {
			if _, ok := p.(domain.ToolResultPart); ok {
				toolResultCount++
			}
		}
		if toolResultCount != len(resultCounts) {
			return domain.NewError(domain.ErrUnmatchedToolCall, "duplicate result for the same tool call id")
		}
		if len(resultCounts) != len(callIDs) {
			return domain.NewError(domain.ErrUnmatchedToolCall, "tool results do not exactly cover the preceding tool calls")
		}
		for _, id := range callIDs {
			if resultCounts[id] != 1 {
				return domain.NewError(domain.ErrUnmatchedToolCall, fmt.Sprintf("tool call %q has no matching result", id))
			}
		}
	}

	return nil
}

type wireFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireFunctionCall `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type wireTool struct {
	Type     string          `json:"type"`
	Function wireFunctionDef `json:"function"`
}

type wireToolChoiceFunction struct {
	Name string `json:"name"`
}

type wireToolChoice struct {
	Type     string                 `json:"type"`
	Function wireToolChoiceFunction `json:"function"`
}

type wireChatRequest struct {
	Model       string           `json:"model"`
	Stream      bool             `json:"stream"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []wireTool       `json:"tools,omitempty"`
	ToolChoice  *wireToolChoice  `json:"tool_choice,omitempty"`
}

func concatText(parts []domain.MessagePart) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(domain.TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func roleToWire(role domain.Role) string {
	switch role {
	case domain.RoleUser:
		return "user"
	case domain.RoleAssistant:
		return "assistant"
	default:
		return "system"
	}
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// createRequestBody translates host chat messages into the OpenAI-compatible
// wire form for this model.
func (e *ChatEndpoint) createRequestBody(messages []domain.ChatMessage, tools []domain.Tool, toolMode domain.ToolChoiceMode) ([]byte, error) {
	var wireMessages []wireMessage

	for _, m := range messages {
		var toolResults []domain.ToolResultPart
		var toolCalls []domain.ToolCallPart
		for _, p := range m.Parts {
			switch part := p.(type) {
			case domain.ToolResultPart:
				toolResults = append(toolResults, part)
			case domain.ToolCallPart:
				toolCalls = append(toolCalls, part)
			}
		}

		switch {
		case len(toolResults) > 0:
			for _, tr := range toolResults {
				content := tr.Content
				wireMessages = append(wireMessages, wireMessage{
					Role:       "tool",
					Content:    &content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case m.Role == domain.RoleAssistant && len(toolCalls) > 0:
			wm := wireMessage{Role: "assistant", Content: stringPtrOrNil(concatText(m.Parts))}
			for _, tc := range toolCalls {
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: wireFunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			wireMessages = append(wireMessages, wm)
		default:
			content := concatText(m.Parts)
			wireMessages = append(wireMessages, wireMessage{
				Role:    roleToWire(m.Role),
				Content: &content,
			})
		}
	}

	req := wireChatRequest{
		Model:       e.model.ID(),
		Stream:      true,
		Temperature: 0.7,
		MaxTokens:   e.model.Descriptor.Capabilities.Limits.MaxOutputTokens,
		Messages:    wireMessages,
	}

	if len(tools) > 0 && e.model.SupportsToolCalls() {
		for _, t := range tools {
			var params map[string]any
			if len(t.Parameters) > 0 {
				params = t.Parameters
			}
			req.Tools = append(req.Tools, wireTool{
				Type: "function",
				Function: wireFunctionDef{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  params,
				},
			})
		}
		if toolMode == domain.ToolChoiceRequired && len(tools) == 1 {
			req.ToolChoice = &wireToolChoice{Type: "function", Function: wireToolChoiceFunction{Name: tools[0].Name}}
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidRequest, "encoding chat request", err)
	}
	return body, nil
}

// classifyHTTPError classifies a non-2xx gateway response. meta.ErrorType
// (the body's {error:{type,message}} envelope type, or else the x-error-type
// header) takes precedence over status-code sniffing: it is the gateway
// stating its own classification rather than this endpoint inferring one.
// When it holds none of the known values, the status code (plus a "quota"
// search of the body for 429) is the fallback.
func classifyHTTPError(meta *driven.GatewayResponseMeta) ChatResponse {
	switch meta.ErrorType {
	case "blocked":
		return ChatResponse{Type: ChatResponseBlocked}
	case "quota_exceeded":
		return ChatResponse{Type: ChatResponseQuotaExceeded}
	case "rate_limited":
		return ChatResponse{Type: ChatResponseRateLimited}
	}

	switch meta.StatusCode {
	case 403:
		if meta.RetryAfter != "" {
			logger.Warn("chat request blocked, retry-after=%s", meta.RetryAfter)
		}
		return ChatResponse{Type: ChatResponseBlocked}
	case 429:
		bodyLower := strings.ToLower(string(meta.Body))
		if strings.Contains(bodyLower, "quota") {
			return ChatResponse{Type: ChatResponseQuotaExceeded}
		}
		return ChatResponse{Type: ChatResponseRateLimited}
	default:
		return ChatResponse{Type: ChatResponseError, Reason: fmt.Sprintf("HTTP %d: %s", meta.StatusCode, string(meta.Body))}
	}
}

// MakeChatRequest validates, authenticates, sends, and streams a chat
// completion, invoking onDelta synchronously for every unit of content.
func (e *ChatEndpoint) MakeChatRequest(ctx context.Context, messages []domain.ChatMessage, onDelta OnDeltaFunc, tools []domain.Tool, toolMode domain.ToolChoiceMode) (ChatResponse, error) {
	if err := validateRequest(messages, tools, toolMode); err != nil {
		return ChatResponse{}, err
	}

	sessions, err := e.auth.GetSessions(ctx)
	if err != nil {
		return ChatResponse{}, err
	}
	if len(sessions) == 0 {
		return ChatResponse{Type: ChatResponseError, Reason: "Not authenticated"}, nil
	}

	body, err := e.createRequestBody(messages, tools, toolMode)
	if err != nil {
		return ChatResponse{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, chatRequestTimeout)
	defer cancel()

	respBody, meta, err := e.gateway.StreamChatCompletion(reqCtx, sessions[0].AccessToken, body)
	if err != nil {
		return ChatResponse{}, domain.WrapError(domain.ErrTransportError, "chat completion request failed", err)
	}

	if meta != nil && (meta.StatusCode < 200 || meta.StatusCode >= 300) {
		return classifyHTTPError(meta), nil
	}
	if respBody == nil {
		return ChatResponse{Type: ChatResponseError, Reason: "No response body"}, nil
	}
	defer respBody.Close()

	if err := scanChatStream(reqCtx, respBody, onDelta); err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{Type: ChatResponseSuccess}, nil
}

type wireStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// scanChatStream reads the SSE body line by line, accumulating tool-call
// fragments by index and emitting a delta for text immediately and for
// completed tool calls on finish_reason or stream end.
func scanChatStream(ctx context.Context, body io.Reader, onDelta OnDeltaFunc) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	pending := make(map[int]*domain.PendingToolCall)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		var complete []ChatDeltaToolCall
		for _, tc := range pending {
			if tc.ID != "" && tc.Name != "" {
				complete = append(complete, ChatDeltaToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
			}
		}
		pending = make(map[int]*domain.PendingToolCall)
		if len(complete) == 0 {
			return nil
		}
		return onDelta(ChatDelta{ToolCalls: complete})
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return domain.WrapError(domain.ErrTransportError, "chat stream cancelled", ctx.Err())
		default:
		}

		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return flush()
		}

		var chunk wireStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			logger.Warn("chat stream: skipping unparsable event: %v", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if err := onDelta(ChatDelta{Text: choice.Delta.Content}); err != nil {
				return err
			}
		}

		for _, frag := range choice.Delta.ToolCalls {
			tc, ok := pending[frag.Index]
			if !ok {
				tc = &domain.PendingToolCall{}
				pending[frag.Index] = tc
			}
			if frag.ID != "" && tc.ID == "" {
				tc.ID = frag.ID
			}
			if frag.Function.Name != "" && tc.Name == "" {
				tc.Name = frag.Function.Name
			}
			tc.Append(frag.Function.Arguments)
		}

		if choice.FinishReason != "" && len(pending) > 0 {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return domain.WrapError(domain.ErrTransportError, "reading chat stream", err)
	}
	return flush()
}

// provideTokenCount tokenizes text with the endpoint's tokenizer, falling
// back to a length heuristic on encoder failure.
func (e *ChatEndpoint) provideTokenCount(text string) int {
	if e.tokenizer != nil && e.tokenizer.SupportsFamily(e.model.Descriptor.Capabilities.Family) {
		if n, err := e.tokenizer.CountTokens(e.model.Descriptor.Capabilities.Family, text); err == nil {
			return n
		}
	}
	return int(math.Ceil(float64(len(text)) / 4))
}

// ProvideTokenCount collapses a chat message into text and tokenizes it.
func (e *ChatEndpoint) ProvideTokenCount(message domain.ChatMessage) int {
	return e.provideTokenCount(concatText(message.Parts))
}
