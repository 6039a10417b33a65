package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Client wraps a Generator with the two call shapes the engine needs:
// command analysis and failure analysis.
type Client struct {
	gen    Generator
	env    EnvironmentInfo
	logger *slog.Logger
}

// NewClient creates an oracle client over the given generator.
func NewClient(gen Generator, logger *slog.Logger) *Client {
	return &Client{
		gen:    gen,
		env:    CollectEnvironment(),
		logger: logger,
	}
}

// SetEnvironment overrides the collected host context. Used by tests.
func (c *Client) SetEnvironment(env EnvironmentInfo) {
	c.env = env
}

// FailedExecution carries the captured result of a failed run into
// failure analysis.
type FailedExecution struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// AnalyzeCommand asks the oracle to turn a natural-language query into a
// classified shell command. History is passed verbatim ahead of the query.
func (c *Client) AnalyzeCommand(ctx context.Context, query string, history []Message) (*CommandAnalysis, error) {
	messages := append(append([]Message{}, history...), Message{Role: RoleUser, Content: query})

	res, err := c.gen.GenerateStructured(ctx, commandAnalysisSchema, commandSystemPrompt(c.env), messages)
	if err != nil {
		return nil, fmt.Errorf("command analysis request failed: %w", err)
	}

	analysis, err := decodeCommandAnalysis(res)
	if err != nil {
		return nil, fmt.Errorf("command analysis: %w", err)
	}

	c.logger.Debug("command analysis received",
		"command", analysis.Command,
		"dangerous", analysis.IsDangerous,
		"interactive", analysis.NeedsInteractiveMode)

	return analysis, nil
}

// AnalyzeFailure asks the oracle to diagnose a failed execution. When the
// structured response cannot be parsed, it falls back to a plain-text call
// and synthesizes a FailureAnalysis with no alternative command.
func (c *Client) AnalyzeFailure(ctx context.Context, originalQuery string, failed FailedExecution, history []Message) (*FailureAnalysis, error) {
	userMsg := failureUserMessage(originalQuery, failed.Command, failed.ExitCode, failed.Stdout, failed.Stderr)
	messages := append(append([]Message{}, history...), Message{Role: RoleUser, Content: userMsg})
	system := failureSystemPrompt(c.env)

	res, err := c.gen.GenerateStructured(ctx, failureAnalysisSchema, system, messages)
	if err != nil {
		return nil, fmt.Errorf("failure analysis request failed: %w", err)
	}

	analysis, err := decodeFailureAnalysis(res)
	if err == nil {
		return analysis, nil
	}

	var unparseable *UnparseableError
	if !errors.As(err, &unparseable) {
		return nil, err
	}

	c.logger.Warn("structured failure analysis unparseable, falling back to plain text")

	text, textErr := c.gen.GenerateText(ctx, system, messages)
	if textErr != nil {
		return nil, fmt.Errorf("failure analysis fallback failed: %w", textErr)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = "The command failed and no further diagnosis was available."
	}

	return &FailureAnalysis{
		Explanation:        text,
		Solution:           "",
		AlternativeCommand: nil,
	}, nil
}
