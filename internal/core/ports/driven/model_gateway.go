package driven

import (
	"context"
	"io"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
)

// ModelGateway is the outward HTTP boundary to the model gateway's REST
// surface: the model catalog and the chat completions endpoint.
type ModelGateway interface {
	// ListModels fetches the full model catalog.
	ListModels(ctx context.Context, accessToken string) ([]domain.ModelDescriptor, error)

	// StreamChatCompletion posts a chat completion request and returns the
	// raw SSE response body for the caller to scan line by line. The caller
	// owns closing the returned ReadCloser.
	StreamChatCompletion(ctx context.Context, accessToken string, body []byte) (io.ReadCloser, *GatewayResponseMeta, error)
}

// GatewayResponseMeta carries the HTTP-level facts the chat endpoint needs
// to classify a non-2xx response (status code, and any rate limit headers).
type GatewayResponseMeta struct {
	StatusCode int
	RetryAfter string
	ErrorType  string // the body envelope's error.type if present, else the x-error-type response header
	Body       []byte // populated only for non-2xx responses
}
