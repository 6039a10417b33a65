package engine

import (
	"github.com/iambrandonn/nlsh/internal/oracle"
)

// State is the session machine's current phase.
type State string

const (
	StateAnalyzing  State = "analyzing"
	StateConfirming State = "confirming"
	StateExecuting  State = "executing"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
	StateAborted    State = "aborted"
)

// Terminal reports whether no further transitions occur from this state.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateAborted
}

// AbortReason is the terminal failure taxonomy. Each session carries at most
// one; the first writer wins.
type AbortReason string

const (
	AbortDangerousCommand     AbortReason = "dangerous-command"
	AbortTimeout              AbortReason = "timeout"
	AbortMaxTriesExceeded     AbortReason = "max-tries-exceeded"
	AbortSudoAuthFailed       AbortReason = "sudo-auth-failed"
	AbortNoAlternative        AbortReason = "no-alternative"
	AbortUserRejected         AbortReason = "user-rejected"
	AbortUserAborted          AbortReason = "user-aborted"
	AbortMissingAnalysis      AbortReason = "missing-analysis"
	AbortMissingErrorContext  AbortReason = "missing-error-context"
	AbortFailureAnalysisError AbortReason = "failure-analysis-error"
	AbortUnexpectedError      AbortReason = "unexpected-error"
)

// ExecutionError captures the most recent failed run.
type ExecutionError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Failure is one per-failed-execution record, append-only.
type Failure struct {
	Command            string  `json:"command"`
	ExitCode           int     `json:"exitCode"`
	Explanation        string  `json:"explanation,omitempty"`
	Solution           string  `json:"solution,omitempty"`
	AlternativeCommand *string `json:"alternativeCommand,omitempty"`
	Stdout             string  `json:"stdout"`
	Stderr             string  `json:"stderr"`
}

// CommandContext is the single mutable state record for one invocation.
// It is created at session start, mutated in place by exactly one goroutine
// (the state machine's run loop), and discarded at a terminal state.
type CommandContext struct {
	SessionID string
	State     State

	Query         string
	OriginalQuery string

	// ConversationHistory is append-only; insertion order is oracle context
	// and must be preserved verbatim across turns.
	ConversationHistory []oracle.Message

	CurrentAnalysis *oracle.CommandAnalysis
	LastError       *ExecutionError

	IsSudoRetry  bool
	SudoAttempts int

	AttemptCount int
	MaxTries     int

	Failures []Failure

	// Session-wide mode flags, immutable after creation.
	AutoApprove bool
	JSONMode    bool
	Verbose     bool

	AbortedReason AbortReason
}

// Abort moves the session to the terminal aborted state. The first recorded
// reason is never overwritten.
func (c *CommandContext) Abort(reason AbortReason) {
	if c.AbortedReason == "" {
		c.AbortedReason = reason
	}
	c.State = StateAborted
}

// maxCapturedOutput caps stdout/stderr stored per failure. Very chatty
// failing commands keep the tail, which is where the diagnostic usually is.
const maxCapturedOutput = 8 * 1024

func capOutput(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[len(s)-maxCapturedOutput:]
}
