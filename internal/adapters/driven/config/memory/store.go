// Package memory implements driven.ConfigSource against values held
// entirely in process memory, for tests and for embedding hosts that
// already resolved their own configuration before constructing the bridge.
package memory

import "github.com/feima-labs/feima-bridge/internal/core/ports/driven"

var _ driven.ConfigSource = (*ConfigSource)(nil)

// ConfigSource is a fixed, immutable snapshot of the bridge's configuration.
type ConfigSource struct {
	authBaseURL       string
	apiBaseURL        string
	clientID          string
	scopes            []string
	redirectURIScheme string
	extensionID       string
}

// New returns a ConfigSource holding the given values verbatim.
func New(authBaseURL, apiBaseURL, clientID string, scopes []string, redirectURIScheme, extensionID string) *ConfigSource {
	return &ConfigSource{
		authBaseURL:       authBaseURL,
		apiBaseURL:        apiBaseURL,
		clientID:          clientID,
		scopes:            scopes,
		redirectURIScheme: redirectURIScheme,
		extensionID:       extensionID,
	}
}

func (c *ConfigSource) AuthBaseURL() string       { return c.authBaseURL }
func (c *ConfigSource) APIBaseURL() string        { return c.apiBaseURL }
func (c *ConfigSource) ClientID() string          { return c.clientID }
func (c *ConfigSource) RedirectURIScheme() string { return c.redirectURIScheme }
func (c *ConfigSource) ExtensionID() string       { return c.extensionID }

func (c *ConfigSource) Scopes() []string {
	out := make([]string, len(c.scopes))
	copy(out, c.scopes)
	return out
}
