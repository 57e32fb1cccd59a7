// Package cli provides the operator-facing command line: a thin harness
// for exercising the authentication engine and chat pipeline outside a
// real host, built with the teacher's cobra-based command style.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driving"
	"github.com/feima-labs/feima-bridge/internal/core/services"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "feima",
	Short: "Operator CLI for the feima model-gateway bridge",
	Long: `feima is a minimal command-line harness around the bridge's core:
sign in, list the model catalog, and sign out, without a host editor.`,
}

// Wired by Configure before Execute is called. login builds its own
// short-lived AuthenticationService against a loopback-friendly config,
// sharing the same secret store and router, so a session it creates is
// immediately visible to auth (and to any later invocation of this CLI).
var (
	auth          driving.AuthenticationProvider
	chat          driving.LanguageModelChatProvider
	config        driven.ConfigSource
	secretStore   driven.SecretStore
	router        *services.URIRouter
	browserOpener driven.BrowserOpener
)

// Configure wires the CLI's commands to the bridge's core. Call this once
// before Execute.
func Configure(
	authProvider driving.AuthenticationProvider,
	chatProvider driving.LanguageModelChatProvider,
	configSource driven.ConfigSource,
	secrets driven.SecretStore,
	uriRouter *services.URIRouter,
	browser driven.BrowserOpener,
) {
	auth = authProvider
	chat = chatProvider
	config = configSource
	secretStore = secrets
	router = uriRouter
	browserOpener = browser
}

// Execute runs the CLI, returning any error from the invoked command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("feima version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
