package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iambrandonn/nlsh/internal/executor"
	"github.com/iambrandonn/nlsh/internal/oracle"
)

// fakeOracle replays scripted analyses in order.
type fakeOracle struct {
	analyses     []*oracle.CommandAnalysis
	analysisErrs []error
	failureGens  []*oracle.FailureAnalysis
	failureErrs  []error

	commandCalls int
	failureCalls int
	lastHistory  []oracle.Message
}

func (f *fakeOracle) AnalyzeCommand(ctx context.Context, query string, history []oracle.Message) (*oracle.CommandAnalysis, error) {
	idx := f.commandCalls
	f.commandCalls++
	f.lastHistory = history

	if idx < len(f.analysisErrs) && f.analysisErrs[idx] != nil {
		return nil, f.analysisErrs[idx]
	}
	if idx >= len(f.analyses) {
		return nil, errors.New("fake oracle: no more scripted analyses")
	}
	return f.analyses[idx], nil
}

func (f *fakeOracle) AnalyzeFailure(ctx context.Context, originalQuery string, failed oracle.FailedExecution, history []oracle.Message) (*oracle.FailureAnalysis, error) {
	idx := f.failureCalls
	f.failureCalls++

	if idx < len(f.failureErrs) && f.failureErrs[idx] != nil {
		return nil, f.failureErrs[idx]
	}
	if idx >= len(f.failureGens) {
		return nil, errors.New("fake oracle: no more scripted failure analyses")
	}
	return f.failureGens[idx], nil
}

// fakeRunner replays scripted results and records requests.
type fakeRunner struct {
	results  []executor.Result
	requests []executor.Request
}

func (f *fakeRunner) Run(ctx context.Context, req executor.Request) executor.Result {
	f.requests = append(f.requests, req)
	if len(f.requests) > len(f.results) {
		return executor.Result{ExitCode: 1, Stderr: "fake runner: no more scripted results"}
	}
	return f.results[len(f.requests)-1]
}

// fakeConfirmer replays scripted decisions.
type fakeConfirmer struct {
	decisions []Decision
	retryText string
	retryOK   bool

	confirmCalls int
	retryCalls   int
}

func (f *fakeConfirmer) Confirm(command string) (Decision, error) {
	idx := f.confirmCalls
	f.confirmCalls++
	if idx >= len(f.decisions) {
		return Decision{Kind: DecisionReject}, nil
	}
	return f.decisions[idx], nil
}

func (f *fakeConfirmer) PromptRetry() (string, bool, error) {
	f.retryCalls++
	return f.retryText, f.retryOK, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func analysisFor(command string) *oracle.CommandAnalysis {
	return &oracle.CommandAnalysis{
		Command:          command,
		Explanation:      "explanation for " + command,
		ExternalPackages: []string{},
	}
}

func newTestSession(oc OracleClient, conf Confirmer, runner CommandRunner, opts Options) *Session {
	reporter := NewReporter(io.Discard, true, false)
	return NewSession(oc, conf, runner, reporter, testLogger(), opts)
}

func TestSuccessWithoutFailures(t *testing.T) {
	oc := &fakeOracle{analyses: []*oracle.CommandAnalysis{analysisFor("date")}}
	runner := &fakeRunner{results: []executor.Result{{ExitCode: 0, Stdout: "Mon Jan 1\n"}}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "show current date",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, StateSuccess, final.State)
	assert.Equal(t, AbortReason(""), final.AbortedReason)
	assert.Equal(t, 0, final.AttemptCount)
	assert.Empty(t, final.Failures)

	summary := BuildSummary(final)
	assert.Equal(t, "success", summary.Status)
	assert.True(t, summary.Success)
	assert.Nil(t, summary.AbortedReason)
	assert.Equal(t, 0, summary.Attempts)
	require.NotNil(t, summary.FinalCommand)
	assert.Equal(t, "date", *summary.FinalCommand)
}

func TestDangerousCommandNeverExecutes(t *testing.T) {
	oc := &fakeOracle{analyses: []*oracle.CommandAnalysis{{
		Command:          "rm -rf /",
		Explanation:      "removes everything",
		IsDangerous:      true,
		ExternalPackages: []string{},
	}}}
	runner := &fakeRunner{}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "delete everything in root directory",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, StateAborted, final.State)
	assert.Equal(t, AbortDangerousCommand, final.AbortedReason)
	assert.Equal(t, 0, final.AttemptCount)
	assert.Empty(t, runner.requests, "dangerous command must never be spawned")

	summary := BuildSummary(final)
	require.NotNil(t, summary.AbortedReason)
	assert.Equal(t, "dangerous-command", *summary.AbortedReason)
}

func TestFailureThenAlternativeSucceeds(t *testing.T) {
	alt := "ls -lS"
	oc := &fakeOracle{
		analyses: []*oracle.CommandAnalysis{analysisFor("ls --sort-by-size")},
		failureGens: []*oracle.FailureAnalysis{{
			Explanation:        "unsupported flag",
			Solution:           "use -lS instead",
			AlternativeCommand: &alt,
		}},
	}
	runner := &fakeRunner{results: []executor.Result{
		{ExitCode: 2, Stderr: "ls: unrecognized option"},
		{ExitCode: 0, Stdout: "total 0\n"},
	}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "list files by size",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, StateSuccess, final.State)
	assert.Equal(t, 1, final.AttemptCount)
	require.Len(t, final.Failures, 1)
	require.Len(t, runner.requests, 2)
	assert.Equal(t, alt, runner.requests[1].Command)

	summary := BuildSummary(final)
	assert.Equal(t, "success", summary.Status)
	assert.Equal(t, 1, summary.Attempts)
	assert.Equal(t, 1, summary.AlternativesTried)
}

func TestMaxTriesExceededEvenWithAlternative(t *testing.T) {
	alt := "some-other-command"
	oc := &fakeOracle{
		analyses: []*oracle.CommandAnalysis{analysisFor("nonexistent-binary")},
		failureGens: []*oracle.FailureAnalysis{{
			Explanation:        "command not found",
			Solution:           "install it",
			AlternativeCommand: &alt,
		}},
	}
	runner := &fakeRunner{results: []executor.Result{
		{ExitCode: 127, Stderr: "nonexistent-binary: command not found"},
	}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "run my tool",
		AutoApprove: true,
		JSONMode:    true,
		MaxTries:    1,
	})
	final := s.Run(context.Background())

	assert.Equal(t, StateAborted, final.State)
	assert.Equal(t, AbortMaxTriesExceeded, final.AbortedReason)
	assert.Equal(t, 1, final.AttemptCount)
	assert.Len(t, runner.requests, 1, "alternative must not run past the ceiling")

	summary := BuildSummary(final)
	assert.Equal(t, "aborted", summary.Status)
	require.NotNil(t, summary.AbortedReason)
	assert.Equal(t, "max-tries-exceeded", *summary.AbortedReason)
	assert.Equal(t, 1, summary.Attempts)
}

func TestTimeoutAborts(t *testing.T) {
	oc := &fakeOracle{analyses: []*oracle.CommandAnalysis{analysisFor("sleep 5")}}
	runner := &fakeRunner{results: []executor.Result{
		{ExitCode: executor.ExitCodeTimeout, Stderr: "Command timed out after 1s"},
	}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "sleep for five seconds",
		AutoApprove: true,
		JSONMode:    true,
		Timeout:     time.Second,
	})
	final := s.Run(context.Background())

	assert.Equal(t, AbortTimeout, final.AbortedReason)
	assert.Equal(t, 1, final.AttemptCount)
	require.Len(t, final.Failures, 1)
	assert.Equal(t, executor.ExitCodeTimeout, final.Failures[0].ExitCode)
	assert.Equal(t, 0, oc.failureCalls, "timeout skips failure analysis")
}

func TestInterruptAborts(t *testing.T) {
	oc := &fakeOracle{analyses: []*oracle.CommandAnalysis{analysisFor("sleep 60")}}
	runner := &fakeRunner{results: []executor.Result{
		{ExitCode: executor.ExitCodeInterrupt, Stderr: "Command interrupted by user"},
	}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "sleep for a minute",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, AbortUserAborted, final.AbortedReason)
	assert.Equal(t, 1, final.AttemptCount)
	require.Len(t, final.Failures, 1)
	assert.Equal(t, executor.ExitCodeInterrupt, final.Failures[0].ExitCode)
	assert.Equal(t, 0, oc.failureCalls, "an interrupt is not diagnosed by the oracle")
}

func TestSudoAuthFailureThreeStrikes(t *testing.T) {
	oc := &fakeOracle{analyses: []*oracle.CommandAnalysis{analysisFor("sudo systemctl restart nginx")}}
	authFail := executor.Result{ExitCode: 1, Stderr: "sudo: 1 incorrect password attempt"}
	runner := &fakeRunner{results: []executor.Result{authFail, authFail, authFail}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "restart nginx",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, AbortSudoAuthFailed, final.AbortedReason)
	assert.Equal(t, 3, final.AttemptCount)
	assert.Equal(t, 3, final.SudoAttempts)
	assert.Len(t, final.Failures, 3)
	require.Len(t, runner.requests, 3)
	assert.False(t, runner.requests[0].SudoRetry)
	assert.True(t, runner.requests[1].SudoRetry, "retry bypasses confirmation and marks the request")
	assert.True(t, runner.requests[2].SudoRetry)
	assert.Equal(t, 0, oc.failureCalls, "auth failures skip failure analysis")
}

func TestSudoCounterResetsOnSuccess(t *testing.T) {
	oc := &fakeOracle{analyses: []*oracle.CommandAnalysis{analysisFor("sudo true")}}
	runner := &fakeRunner{results: []executor.Result{
		{ExitCode: 1, Stderr: "Sorry, try again."},
		{ExitCode: 0},
	}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "run as root",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, StateSuccess, final.State)
	assert.Equal(t, 0, final.SudoAttempts, "success is the only reset point")
	assert.Equal(t, 1, final.AttemptCount)
	assert.Len(t, final.Failures, 1)
}

func TestUserRejection(t *testing.T) {
	oc := &fakeOracle{analyses: []*oracle.CommandAnalysis{analysisFor("date")}}
	runner := &fakeRunner{}
	conf := &fakeConfirmer{decisions: []Decision{{Kind: DecisionReject}}}

	s := newTestSession(oc, conf, runner, Options{Query: "show date"})
	final := s.Run(context.Background())

	assert.Equal(t, AbortUserRejected, final.AbortedReason)
	assert.Equal(t, 0, final.AttemptCount)
	assert.Empty(t, runner.requests)
	assert.Empty(t, final.Failures)
}

func TestModificationReanalyzes(t *testing.T) {
	oc := &fakeOracle{analyses: []*oracle.CommandAnalysis{
		analysisFor("df -h"),
		analysisFor("du -sh *"),
	}}
	runner := &fakeRunner{results: []executor.Result{{ExitCode: 0}}}
	conf := &fakeConfirmer{decisions: []Decision{
		{Kind: DecisionModify, Text: "per directory, not per filesystem"},
		{Kind: DecisionApprove},
	}}

	s := newTestSession(oc, conf, runner, Options{Query: "show disk usage"})
	final := s.Run(context.Background())

	assert.Equal(t, StateSuccess, final.State)
	assert.Equal(t, 2, oc.commandCalls)
	assert.Equal(t, "per directory, not per filesystem", final.Query)
	assert.Equal(t, "show disk usage", final.OriginalQuery)
	require.Len(t, runner.requests, 1)
	assert.Equal(t, "du -sh *", runner.requests[0].Command)

	// History preserves insertion order across the modification turn.
	require.Len(t, final.ConversationHistory, 4)
	assert.Equal(t, oracle.RoleUser, final.ConversationHistory[0].Role)
	assert.Equal(t, "show disk usage", final.ConversationHistory[0].Content)
	assert.Equal(t, oracle.RoleAssistant, final.ConversationHistory[1].Role)
	assert.Equal(t, oracle.RoleUser, final.ConversationHistory[2].Role)
	assert.Equal(t, "per directory, not per filesystem", final.ConversationHistory[2].Content)
}

func TestNoAlternativeAutoMode(t *testing.T) {
	oc := &fakeOracle{
		analyses: []*oracle.CommandAnalysis{analysisFor("frobnicate")},
		failureGens: []*oracle.FailureAnalysis{{
			Explanation: "frobnicate is not installed",
			Solution:    "install frobnicate first",
		}},
	}
	runner := &fakeRunner{results: []executor.Result{{ExitCode: 127, Stderr: "not found"}}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "frobnicate the files",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, AbortNoAlternative, final.AbortedReason)
	assert.Equal(t, 1, final.AttemptCount)
	require.Len(t, final.Failures, 1)
	assert.Nil(t, final.Failures[0].AlternativeCommand)
}

func TestNoAlternativeInteractiveDecline(t *testing.T) {
	oc := &fakeOracle{
		analyses:    []*oracle.CommandAnalysis{analysisFor("frobnicate")},
		failureGens: []*oracle.FailureAnalysis{{Explanation: "not installed"}},
	}
	runner := &fakeRunner{results: []executor.Result{{ExitCode: 127}}}
	conf := &fakeConfirmer{
		decisions: []Decision{{Kind: DecisionApprove}},
		retryOK:   false,
	}

	s := newTestSession(oc, conf, runner, Options{Query: "frobnicate"})
	final := s.Run(context.Background())

	assert.Equal(t, AbortUserAborted, final.AbortedReason)
	assert.Equal(t, 1, conf.retryCalls)
}

func TestNoAlternativeInteractiveModify(t *testing.T) {
	oc := &fakeOracle{
		analyses: []*oracle.CommandAnalysis{
			analysisFor("frobnicate"),
			analysisFor("echo ok"),
		},
		failureGens: []*oracle.FailureAnalysis{{Explanation: "not installed"}},
	}
	runner := &fakeRunner{results: []executor.Result{
		{ExitCode: 127},
		{ExitCode: 0},
	}}
	conf := &fakeConfirmer{
		decisions: []Decision{{Kind: DecisionApprove}, {Kind: DecisionApprove}},
		retryText: "just print ok",
		retryOK:   true,
	}

	s := newTestSession(oc, conf, runner, Options{Query: "frobnicate"})
	final := s.Run(context.Background())

	assert.Equal(t, StateSuccess, final.State)
	assert.Equal(t, "just print ok", final.Query)
	assert.Equal(t, 2, oc.commandCalls)
}

func TestFailureAnalysisErrorAborts(t *testing.T) {
	oc := &fakeOracle{
		analyses:    []*oracle.CommandAnalysis{analysisFor("false")},
		failureErrs: []error{errors.New("oracle unavailable")},
	}
	runner := &fakeRunner{results: []executor.Result{{ExitCode: 1}}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "fail",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, AbortFailureAnalysisError, final.AbortedReason)
}

func TestAnalysisErrorAborts(t *testing.T) {
	oc := &fakeOracle{analysisErrs: []error{errors.New("oracle unavailable")}}

	s := newTestSession(oc, &fakeConfirmer{}, &fakeRunner{}, Options{
		Query:       "anything",
		AutoApprove: true,
		JSONMode:    true,
	})
	final := s.Run(context.Background())

	assert.Equal(t, AbortUnexpectedError, final.AbortedReason)
	assert.Equal(t, 0, final.AttemptCount)
}

func TestAttemptsMatchFailureRecords(t *testing.T) {
	alt1 := "second-try"
	alt2 := "third-try"
	oc := &fakeOracle{
		analyses: []*oracle.CommandAnalysis{analysisFor("first-try")},
		failureGens: []*oracle.FailureAnalysis{
			{Explanation: "failed once", AlternativeCommand: &alt1},
			{Explanation: "failed twice", AlternativeCommand: &alt2},
		},
	}
	runner := &fakeRunner{results: []executor.Result{
		{ExitCode: 1},
		{ExitCode: 1},
		{ExitCode: 0},
	}}

	s := newTestSession(oc, &fakeConfirmer{}, runner, Options{
		Query:       "keep trying",
		AutoApprove: true,
		JSONMode:    true,
		MaxTries:    5,
	})
	final := s.Run(context.Background())

	assert.Equal(t, StateSuccess, final.State)
	assert.Equal(t, 2, final.AttemptCount)
	assert.Len(t, final.Failures, 2, "one failure record per failed execution")
	assert.Equal(t, 2, BuildSummary(final).AlternativesTried)
}

func TestAbortReasonFirstWriterWins(t *testing.T) {
	c := &CommandContext{State: StateAnalyzing}
	c.Abort(AbortTimeout)
	c.Abort(AbortUnexpectedError)

	assert.Equal(t, AbortTimeout, c.AbortedReason)
	assert.Equal(t, StateAborted, c.State)
}

func TestExitCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		c    *CommandContext
		want int
	}{
		{"success", &CommandContext{State: StateSuccess}, 0},
		{"aborted without executions", &CommandContext{State: StateAborted, AbortedReason: AbortDangerousCommand}, 1},
		{"aborted after timeout", &CommandContext{
			State:         StateAborted,
			AbortedReason: AbortTimeout,
			Failures:      []Failure{{ExitCode: executor.ExitCodeTimeout}},
		}, executor.ExitCodeTimeout},
		{"aborted after command failure", &CommandContext{
			State:         StateAborted,
			AbortedReason: AbortMaxTriesExceeded,
			Failures:      []Failure{{ExitCode: 2}, {ExitCode: 127}},
		}, 127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.c))
		})
	}
}
