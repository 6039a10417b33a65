package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	flagTimeout  int
	flagTTY      bool
	flagVerbose  bool
	flagYes      bool
	flagMaxTries int
	flagJSON     bool
)

// exitCode is the process exit code resolved by the query flow.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "nlsh [flags] \"query\"",
	Short: "Run shell commands described in natural language",
	Long: `nlsh turns a natural-language request into a shell command, asks for
confirmation, executes it, and recovers from failures with bounded retries.

Dangerous commands are refused outright. Sudo commands prompt for a password
with masked input.`,
	Example: `  # Describe what you want; confirm before it runs
  nlsh "find pdf files larger than 10MB"

  # Scripted use: auto-approve and emit a single-line JSON summary
  nlsh -y --json "show current date"

  # Bound each execution to 30 seconds
  nlsh -t 30 "compress the logs directory"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runQuery(cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.Flags().IntVarP(&flagTimeout, "timeout", "t", 0, "Per-execution timeout in seconds (0 = no timeout; expiry reports exit code 124)")
	rootCmd.Flags().BoolVar(&flagTTY, "tty", false, "Force interactive subprocess mode (inherit the terminal)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print explanations and solution detail")
	rootCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "Auto-approve generated commands (bypass confirmation)")
	rootCmd.Flags().IntVar(&flagMaxTries, "max-tries", 0, "Failed-execution ceiling before giving up (default from config)")
	rootCmd.Flags().BoolVar(&flagJSON, "json", false, "Suppress incremental output; emit one JSON summary line at session end")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}
