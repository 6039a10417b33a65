package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/nlsh/internal/config"
	"github.com/iambrandonn/nlsh/internal/engine"
	"github.com/iambrandonn/nlsh/internal/executor"
	"github.com/iambrandonn/nlsh/internal/oracle"
	"github.com/iambrandonn/nlsh/internal/provider"
)

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// loadConfig resolves the persisted configuration and its API key.
func loadConfig() (*config.Config, string, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		return nil, "", err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return cfg, cfg.ResolveAPIKey(filepath.Dir(path)), nil
}

func runQuery(cmd *cobra.Command, query string) error {
	logger := newLogger(flagVerbose)

	cfg, apiKey, err := loadConfig()
	if err != nil {
		return err
	}
	if apiKey == "" {
		return fmt.Errorf("no API key found: set %s (directly or via a .env file)", cfg.APIKeyEnv)
	}

	maxTries := cfg.MaxTries
	if flagMaxTries > 0 {
		maxTries = flagMaxTries
	}

	timeoutSeconds := cfg.TimeoutSeconds
	if cmd.Flags().Changed("timeout") {
		timeoutSeconds = flagTimeout
	}
	var timeout time.Duration
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}

	gen := provider.NewOpenAIClient(cfg.BaseURL, cfg.Model, apiKey, logger)
	oracleClient := oracle.NewClient(gen, logger)

	exec := executor.New(logger)
	exec.ForceTTY = flagTTY

	confirmer := engine.NewTerminalConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
	reporter := engine.NewReporter(cmd.OutOrStdout(), flagJSON, flagVerbose)

	session := engine.NewSession(oracleClient, confirmer, exec, reporter, logger, engine.Options{
		Query:       query,
		AutoApprove: flagYes,
		JSONMode:    flagJSON,
		Verbose:     flagVerbose,
		MaxTries:    maxTries,
		Timeout:     timeout,
	})

	// One cancellation signal per session; the executor observes it while a
	// process is running.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	final := session.Run(ctx)

	if err := reporter.PrintSummary(final); err != nil {
		return err
	}

	exitCode = engine.ExitCode(final)
	return nil
}
