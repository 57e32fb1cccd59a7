// Package authprovider is the host-facing entry point for the
// authentication engine: a thin delegator onto
// internal/core/services.AuthenticationService, so a host imports this
// package rather than reaching into internal/core directly.
package authprovider

import (
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
	"github.com/feima-labs/feima-bridge/internal/core/services"
)

var _ driving.AuthenticationProvider = (*Provider)(nil)

// Provider is the authentication engine as the host sees it.
type Provider struct {
	*services.AuthenticationService
}

// New wires a Provider from its driven ports.
func New(config driven.ConfigSource, secretStore driven.SecretStore, router *services.URIRouter, browser driven.BrowserOpener) *Provider {
	return &Provider{AuthenticationService: services.NewAuthenticationService(config, secretStore, router, browser)}
}
