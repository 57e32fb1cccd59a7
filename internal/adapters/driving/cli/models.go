package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the chat models available to a signed-in session",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, _ []string) error {
	if chat == nil {
		return errors.New("cli: not configured, call Configure before Execute")
	}

	models, err := chat.ProvideLanguageModelChatInformation(cmd.Context())
	if err != nil {
		return err
	}

	if len(models) == 0 {
		cmd.Println("No models available. Sign in first with: feima login")
		return nil
	}

	for _, m := range models {
		cmd.Printf("%-24s %-10s %s\n", m.ID, m.Detail, m.Name)
	}
	return nil
}
