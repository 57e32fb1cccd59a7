// Package chatprovider is the host-facing entry point for the chat
// pipeline: a thin delegator onto
// internal/core/services.ModelChatProvider, so a host imports this
// package rather than reaching into internal/core directly.
package chatprovider

import (
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
	"github.com/feima-labs/feima-bridge/internal/core/services"
)

var _ driving.LanguageModelChatProvider = (*Provider)(nil)

// Provider is the chat pipeline as the host sees it.
type Provider struct {
	*services.ModelChatProvider
}

// New wires a Provider from a running catalog and its driven ports.
func New(catalog *services.ModelCatalog, auth driving.AuthenticationProvider, gateway driven.ModelGateway, tokenizer driven.Tokenizer, apiBaseURL string) *Provider {
	return &Provider{ModelChatProvider: services.NewModelChatProvider(catalog, auth, gateway, tokenizer, apiBaseURL)}
}
