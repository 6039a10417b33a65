package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iambrandonn/nlsh/internal/executor"
	"github.com/iambrandonn/nlsh/internal/oracle"
)

// OracleClient is the engine's view of the query/failure oracle.
type OracleClient interface {
	AnalyzeCommand(ctx context.Context, query string, history []oracle.Message) (*oracle.CommandAnalysis, error)
	AnalyzeFailure(ctx context.Context, originalQuery string, failed oracle.FailedExecution, history []oracle.Message) (*oracle.FailureAnalysis, error)
}

// CommandRunner is the engine's view of the process executor. It receives
// read-only inputs and returns a fresh result; it never mutates the context.
type CommandRunner interface {
	Run(ctx context.Context, req executor.Request) executor.Result
}

// Options configure one session.
type Options struct {
	Query       string
	AutoApprove bool
	JSONMode    bool
	Verbose     bool
	MaxTries    int
	Timeout     time.Duration
}

// Session is the orchestrating state machine for one user invocation. It
// exclusively owns the CommandContext and mutates it sequentially; there are
// no concurrent writers.
type Session struct {
	oracle    OracleClient
	confirmer Confirmer
	runner    CommandRunner
	reporter  *Reporter
	guard     Guard
	timeout   time.Duration
	logger    *slog.Logger

	cmdCtx *CommandContext
}

// NewSession wires a session from its collaborators.
func NewSession(oc OracleClient, confirmer Confirmer, runner CommandRunner, reporter *Reporter, logger *slog.Logger, opts Options) *Session {
	maxTries := opts.MaxTries
	if maxTries <= 0 {
		maxTries = 3
	}

	sessionID := fmt.Sprintf("sess-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])

	return &Session{
		oracle:    oc,
		confirmer: confirmer,
		runner:    runner,
		reporter:  reporter,
		guard:     Guard{MaxTries: maxTries},
		timeout:   opts.Timeout,
		logger:    logger,
		cmdCtx: &CommandContext{
			SessionID:     sessionID,
			State:         StateAnalyzing,
			Query:         opts.Query,
			OriginalQuery: opts.Query,
			MaxTries:      maxTries,
			AutoApprove:   opts.AutoApprove,
			JSONMode:      opts.JSONMode,
			Verbose:       opts.Verbose,
		},
	}
}

// Context exposes the session's command context. Callers must treat it as
// read-only; it is only safe to inspect after Run returns.
func (s *Session) Context() *CommandContext {
	return s.cmdCtx
}

// Run drives the state machine to a terminal state and returns the final
// context. One handler fires per iteration; handlers mutate the context and
// set the next state. A panic in any handler aborts the session with
// unexpected-error unless a more specific reason was already recorded.
func (s *Session) Run(ctx context.Context) *CommandContext {
	c := s.cmdCtx

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session handler panicked", "session_id", c.SessionID, "panic", r)
			c.Abort(AbortUnexpectedError)
			s.reporter.Aborted(c.AbortedReason)
		}
	}()

	s.logger.Debug("session starting", "session_id", c.SessionID, "query", c.Query)

	for !c.State.Terminal() {
		s.logger.Debug("state transition", "session_id", c.SessionID, "state", c.State)

		switch c.State {
		case StateAnalyzing:
			s.handleAnalyzing(ctx)
		case StateConfirming:
			s.handleConfirming()
		case StateExecuting:
			s.handleExecuting(ctx)
		case StateFailed:
			s.handleFailed(ctx)
		default:
			s.logger.Error("unknown state", "session_id", c.SessionID, "state", c.State)
			c.Abort(AbortUnexpectedError)
		}
	}

	if c.State == StateSuccess {
		s.reporter.Success()
	} else {
		s.reporter.Aborted(c.AbortedReason)
	}

	return c
}

func (s *Session) handleAnalyzing(ctx context.Context) {
	c := s.cmdCtx

	analysis, err := s.oracle.AnalyzeCommand(ctx, c.Query, c.ConversationHistory)
	if err != nil {
		s.logger.Error("command analysis failed", "session_id", c.SessionID, "error", err)
		c.Abort(AbortUnexpectedError)
		return
	}

	c.CurrentAnalysis = analysis
	c.ConversationHistory = append(c.ConversationHistory,
		oracle.Message{Role: oracle.RoleUser, Content: c.Query},
		oracle.Message{Role: oracle.RoleAssistant, Content: marshalTurn(analysis)},
	)

	if analysis.IsDangerous {
		s.reporter.DangerousBlocked(analysis)
		c.Abort(AbortDangerousCommand)
		return
	}

	s.reporter.Proposed(analysis)
	c.State = StateConfirming
}

func (s *Session) handleConfirming() {
	c := s.cmdCtx

	if c.CurrentAnalysis == nil {
		c.Abort(AbortMissingAnalysis)
		return
	}

	if c.AutoApprove {
		c.State = StateExecuting
		return
	}

	decision, err := s.confirmer.Confirm(c.CurrentAnalysis.Command)
	if err != nil {
		s.logger.Error("confirmation failed", "session_id", c.SessionID, "error", err)
		c.Abort(AbortUnexpectedError)
		return
	}

	switch decision.Kind {
	case DecisionApprove:
		c.State = StateExecuting
	case DecisionModify:
		c.Query = decision.Text
		c.State = StateAnalyzing
	default:
		c.Abort(AbortUserRejected)
	}
}

func (s *Session) handleExecuting(ctx context.Context) {
	c := s.cmdCtx

	if c.CurrentAnalysis == nil {
		c.Abort(AbortMissingAnalysis)
		return
	}

	res := s.runner.Run(ctx, executor.Request{
		Command:     c.CurrentAnalysis.Command,
		Interactive: c.CurrentAnalysis.NeedsInteractiveMode,
		SudoRetry:   c.IsSudoRetry,
		Timeout:     s.timeout,
	})

	s.logger.Debug("execution finished",
		"session_id", c.SessionID,
		"command", c.CurrentAnalysis.Command,
		"exit_code", res.ExitCode)

	if res.ExitCode == 0 {
		// A successful run is the only point where the sudo counter resets.
		c.SudoAttempts = 0
		c.IsSudoRetry = false
		c.State = StateSuccess
		return
	}

	c.LastError = &ExecutionError{
		Command:  c.CurrentAnalysis.Command,
		ExitCode: res.ExitCode,
		Stdout:   capOutput(res.Stdout),
		Stderr:   capOutput(res.Stderr),
	}
	c.AttemptCount++
	c.State = StateFailed
}

func (s *Session) handleFailed(ctx context.Context) {
	c := s.cmdCtx

	if c.LastError == nil {
		c.Abort(AbortMissingErrorContext)
		return
	}
	lastErr := c.LastError

	if lastErr.ExitCode == executor.ExitCodeTimeout {
		c.Failures = append(c.Failures, failureRecord(lastErr, nil))
		c.Abort(AbortTimeout)
		return
	}

	// An interrupted run means the user gave up; asking the oracle to diagnose
	// it (on a cancelled context, no less) would only manufacture an error.
	if lastErr.ExitCode == executor.ExitCodeInterrupt {
		c.Failures = append(c.Failures, failureRecord(lastErr, nil))
		c.Abort(AbortUserAborted)
		return
	}

	if executor.IsAuthFailure(lastErr.Stderr) {
		c.Failures = append(c.Failures, failureRecord(lastErr, nil))
		c.SudoAttempts++

		if SudoExceeded(c.SudoAttempts) {
			c.Abort(AbortSudoAuthFailed)
			return
		}
		if s.guard.Exceeded(c.AttemptCount) {
			c.Abort(AbortMaxTriesExceeded)
			return
		}

		s.reporter.SudoRetrying(c.SudoAttempts)
		// Retry the same command, bypassing confirmation.
		c.IsSudoRetry = true
		c.State = StateExecuting
		return
	}

	analysis, err := s.oracle.AnalyzeFailure(ctx, c.OriginalQuery, oracle.FailedExecution{
		Command:  lastErr.Command,
		ExitCode: lastErr.ExitCode,
		Stdout:   lastErr.Stdout,
		Stderr:   lastErr.Stderr,
	}, c.ConversationHistory)
	if err != nil {
		s.logger.Error("failure analysis failed", "session_id", c.SessionID, "error", err)
		c.Abort(AbortFailureAnalysisError)
		return
	}

	failure := failureRecord(lastErr, analysis)
	c.Failures = append(c.Failures, failure)
	c.ConversationHistory = append(c.ConversationHistory,
		oracle.Message{Role: oracle.RoleAssistant, Content: marshalTurn(analysis)})

	s.reporter.FailureAnalyzed(failure)

	// The ceiling applies even when the oracle supplied a viable alternative.
	if s.guard.Exceeded(c.AttemptCount) {
		c.Abort(AbortMaxTriesExceeded)
		return
	}

	if analysis.AlternativeCommand != nil {
		c.CurrentAnalysis = &oracle.CommandAnalysis{
			Command:              *analysis.AlternativeCommand,
			Explanation:          analysis.Solution,
			NeedsInteractiveMode: analysis.NeedsInteractiveMode,
			ExternalPackages:     []string{},
		}
		c.IsSudoRetry = false
		if c.AutoApprove {
			c.State = StateExecuting
		} else {
			c.State = StateConfirming
		}
		return
	}

	if c.AutoApprove {
		c.Abort(AbortNoAlternative)
		return
	}

	text, ok, err := s.confirmer.PromptRetry()
	if err != nil {
		s.logger.Error("retry prompt failed", "session_id", c.SessionID, "error", err)
		c.Abort(AbortUnexpectedError)
		return
	}
	if !ok {
		c.Abort(AbortUserAborted)
		return
	}

	c.Query = text
	c.State = StateAnalyzing
}

func failureRecord(lastErr *ExecutionError, analysis *oracle.FailureAnalysis) Failure {
	f := Failure{
		Command:  lastErr.Command,
		ExitCode: lastErr.ExitCode,
		Stdout:   lastErr.Stdout,
		Stderr:   lastErr.Stderr,
	}
	if analysis != nil {
		f.Explanation = analysis.Explanation
		f.Solution = analysis.Solution
		f.AlternativeCommand = analysis.AlternativeCommand
	}
	return f
}

// marshalTurn renders an oracle response as an assistant history turn.
func marshalTurn(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// ExitCode maps a terminal context to the process exit code surfaced to the
// shell: 0 on success; on abort, the last execution's own exit code (letting
// 124 and 130 propagate), or 1 when nothing was executed.
func ExitCode(c *CommandContext) int {
	if c.State == StateSuccess {
		return 0
	}
	if n := len(c.Failures); n > 0 {
		return c.Failures[n-1].ExitCode
	}
	return 1
}
