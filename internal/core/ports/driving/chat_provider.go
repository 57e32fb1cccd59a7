package driving

import (
	"context"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
)

// ChatModelCapabilities is the capability projection the host uses to decide
// what UI affordances a model supports.
type ChatModelCapabilities struct {
	ImageInput  bool `json:"imageInput"`
	ToolCalling bool `json:"toolCalling"`
}

// ChatModelInfo is the shape the host's model picker consumes: a subset of
// ModelDescriptor plus a couple of derived display fields.
type ChatModelInfo struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Family           string                `json:"family"`
	Version          string                `json:"version"`
	Tooltip          string                `json:"tooltip"`
	Detail           string                `json:"detail"`
	MaxInputTokens   int                   `json:"maxInputTokens"`
	MaxOutputTokens  int                   `json:"maxOutputTokens"`
	IsUserSelectable bool                  `json:"isUserSelectable"`
	Capabilities     ChatModelCapabilities `json:"capabilities"`
}

// ProgressCallback receives one MessagePart at a time as a chat response
// streams in. It is invoked serially and must return before the next part
// is delivered.
type ProgressCallback func(domain.MessagePart)

// LanguageModelChatProvider is the driving contract the host uses to list
// selectable models, issue chat requests, and estimate token counts.
type LanguageModelChatProvider interface {
	// ProvideLanguageModelChatInformation lists models eligible for the
	// host's model picker.
	ProvideLanguageModelChatInformation(ctx context.Context) ([]ChatModelInfo, error)

	// ProvideLanguageModelChatResponse streams a chat completion, invoking
	// progress once per text fragment or completed tool call.
	ProvideLanguageModelChatResponse(ctx context.Context, modelID string, request domain.ChatRequest, progress ProgressCallback) error

	// ProvideTokenCount estimates how many tokens text would cost against modelID.
	ProvideTokenCount(ctx context.Context, modelID string, text string) (int, error)
}
