package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/nlsh/internal/oracle"
	"github.com/iambrandonn/nlsh/internal/provider"
)

const askSystemPrompt = `You are a concise command-line assistant. Answer the
user's question directly in plain text. Prefer short answers with concrete
commands or examples where relevant. No markdown headings.`

var askCmd = &cobra.Command{
	Use:   "ask \"question\"",
	Short: "Ask a plain question without executing anything",
	Long: `Ask sends a question to the configured provider and prints the answer.
Nothing is executed.`,
	Example: `  nlsh ask "what does tar -xzf do"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(flagVerbose)

		cfg, apiKey, err := loadConfig()
		if err != nil {
			return err
		}
		if apiKey == "" {
			return fmt.Errorf("no API key found: set %s (directly or via a .env file)", cfg.APIKeyEnv)
		}

		gen := provider.NewOpenAIClient(cfg.BaseURL, cfg.Model, apiKey, logger)

		question := strings.Join(args, " ")
		answer, err := gen.GenerateText(cmd.Context(), askSystemPrompt, []oracle.Message{
			{Role: oracle.RoleUser, Content: question},
		})
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(answer))
		return nil
	},
}
