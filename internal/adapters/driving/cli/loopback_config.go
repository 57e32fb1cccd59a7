package cli

import (
	"strconv"

	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
)

// loopbackConfig overrides the redirect scheme/authority of an underlying
// ConfigSource so the CLI's own local HTTP listener, not a custom URI
// scheme, receives the OAuth callback. Only the login command uses this;
// the host-integrated flow always uses the configured scheme unmodified.
type loopbackConfig struct {
	driven.ConfigSource
	port int
}

func (c loopbackConfig) RedirectURIScheme() string { return "http" }
func (c loopbackConfig) ExtensionID() string       { return "127.0.0.1:" + strconv.Itoa(c.port) }
