package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout [session-id]",
	Short: "Sign out, removing the given session (or all sessions if none given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	if auth == nil {
		return errors.New("cli: not configured, call Configure before Execute")
	}

	sessions, err := auth.GetSessions(cmd.Context())
	if err != nil {
		return err
	}

	targets := sessions
	if len(args) == 1 {
		targets = nil
		for _, s := range sessions {
			if s.ID == args[0] {
				targets = append(targets, s)
			}
		}
		if len(targets) == 0 {
			cmd.Printf("No session found with id %s\n", args[0])
			return nil
		}
	}

	if len(targets) == 0 {
		cmd.Println("No active sessions.")
		return nil
	}

	for _, s := range targets {
		if err := auth.RemoveSession(cmd.Context(), s.ID); err != nil {
			return err
		}
		cmd.Printf("Signed out: %s (%s)\n", s.ID, s.Account.Label)
	}
	return nil
}
