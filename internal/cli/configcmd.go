package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/nlsh/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage nlsh configuration",
	Long:  `View and change the persisted provider, model, and engine defaults.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		cfg, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "provider:        %s\n", cfg.Provider)
		fmt.Fprintf(out, "model:           %s\n", cfg.Model)
		fmt.Fprintf(out, "base_url:        %s\n", cfg.BaseURL)
		fmt.Fprintf(out, "api_key_env:     %s (%s)\n", cfg.APIKeyEnv, keyStatus(cfg, path))
		fmt.Fprintf(out, "max_tries:       %d\n", cfg.MaxTries)
		fmt.Fprintf(out, "timeout_seconds: %d\n", cfg.TimeoutSeconds)
		return nil
	},
}

func keyStatus(cfg *config.Config, path string) string {
	if cfg.ResolveAPIKey(filepath.Dir(path)) != "" {
		return "set"
	}
	return "not set"
}

var configSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set a configuration field",
	Example: `  nlsh config set model gpt-4o
  nlsh config set base_url http://localhost:11434/v1
  nlsh config set max_tries 5`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		cfg, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}

		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.SaveToFile(path); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}
