// Command feima is the operator-facing CLI: a thin harness that wires the
// bridge's core against filesystem-backed adapters and exposes login,
// models, and logout subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/feima-labs/feima-bridge/internal/adapters/driven/browser"
	configfile "github.com/feima-labs/feima-bridge/internal/adapters/driven/config/file"
	"github.com/feima-labs/feima-bridge/internal/adapters/driven/gateway"
	secretsqlite "github.com/feima-labs/feima-bridge/internal/adapters/driven/secretstore/sqlite"
	"github.com/feima-labs/feima-bridge/internal/adapters/driven/tokenizer"
	"github.com/feima-labs/feima-bridge/internal/adapters/driving/authprovider"
	"github.com/feima-labs/feima-bridge/internal/adapters/driving/chatprovider"
	"github.com/feima-labs/feima-bridge/internal/adapters/driving/cli"
	"github.com/feima-labs/feima-bridge/internal/core/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	config, err := configfile.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	secretStore, err := secretsqlite.NewStore("")
	if err != nil {
		return fmt.Errorf("opening secret store: %w", err)
	}

	router := services.NewURIRouter()
	auth := authprovider.New(config, secretStore, router, browser.New())

	gw := gateway.New(config.APIBaseURL())
	catalog := services.NewModelCatalog(gw, auth)
	defer catalog.Close()

	chat := chatprovider.New(catalog, auth, gw, tokenizer.New(), config.APIBaseURL())
	defer chat.Close()

	cli.Configure(auth, chat, config, secretStore, router, browser.New())
	return cli.Execute()
}
