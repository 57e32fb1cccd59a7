package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/feima-labs/feima-bridge/internal/core/services"
)

const (
	loopbackPortRangeStart = 41100
	loopbackPortRangeEnd   = 41200
	loopbackShutdownGrace  = 2 * time.Second
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in interactively via a browser-based OAuth flow",
	RunE:  runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	if config == nil || secretStore == nil || router == nil {
		return errors.New("cli: not configured, call Configure before Execute")
	}

	port, err := findAvailablePort(loopbackPortRangeStart, loopbackPortRangeEnd)
	if err != nil {
		return fmt.Errorf("finding a local port for the callback listener: %w", err)
	}

	loginAuth := services.NewAuthenticationService(loopbackConfig{ConfigSource: config, port: port}, secretStore, router, browserOpener)

	callbackErrCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Sign-in complete, you may close this tab.")
		callbackErrCh <- loginAuth.HandleURI(r.Context(), r.URL.String())
	})
	server := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", port), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cmd.PrintErrf("callback listener stopped: %v\n", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), loopbackShutdownGrace)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	cmd.Println("Opening your browser to sign in...")
	session, err := loginAuth.CreateSession(cmd.Context())
	if err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	if err := <-callbackErrCh; err != nil {
		return fmt.Errorf("processing callback: %w", err)
	}

	cmd.Printf("Signed in: session %s (%s)\n", session.ID, session.Account.Label)
	return nil
}
