package engine

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/iambrandonn/nlsh/internal/oracle"
)

// Reporter renders session progress. In human mode each phase prints
// incrementally; in JSON mode all incremental chatter is suppressed and one
// single-line summary object is emitted at session end.
type Reporter struct {
	out      io.Writer
	jsonMode bool
	verbose  bool

	cyan   *color.Color
	green  *color.Color
	red    *color.Color
	yellow *color.Color
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer, jsonMode, verbose bool) *Reporter {
	return &Reporter{
		out:      out,
		jsonMode: jsonMode,
		verbose:  verbose,
		cyan:     color.New(color.FgCyan),
		green:    color.New(color.FgGreen),
		red:      color.New(color.FgRed),
		yellow:   color.New(color.FgYellow),
	}
}

// Proposed announces the command the oracle produced.
func (r *Reporter) Proposed(analysis *oracle.CommandAnalysis) {
	if r.jsonMode {
		return
	}
	fmt.Fprintf(r.out, "Command: %s\n", r.cyan.Sprint(analysis.Command))
	if r.verbose && analysis.Explanation != "" {
		fmt.Fprintf(r.out, "  %s\n", analysis.Explanation)
	}
	if analysis.RequiresExternalPackages && len(analysis.ExternalPackages) > 0 {
		fmt.Fprintf(r.out, "  %s requires: %v\n", r.yellow.Sprint("note:"), analysis.ExternalPackages)
	}
}

// DangerousBlocked announces a command refused on safety grounds.
func (r *Reporter) DangerousBlocked(analysis *oracle.CommandAnalysis) {
	if r.jsonMode {
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", r.red.Sprint("Blocked (dangerous):"), analysis.Command)
	if analysis.Explanation != "" {
		fmt.Fprintf(r.out, "  %s\n", analysis.Explanation)
	}
}

// FailureAnalyzed renders the oracle's diagnosis of a failed execution.
func (r *Reporter) FailureAnalyzed(f Failure) {
	if r.jsonMode {
		return
	}
	fmt.Fprintf(r.out, "%s %s (exit %d)\n", r.red.Sprint("Failed:"), f.Command, f.ExitCode)
	if f.Explanation != "" {
		fmt.Fprintf(r.out, "  %s\n", f.Explanation)
	}
	if r.verbose && f.Solution != "" {
		fmt.Fprintf(r.out, "  %s\n", f.Solution)
	}
	if f.AlternativeCommand != nil {
		fmt.Fprintf(r.out, "  trying: %s\n", r.cyan.Sprint(*f.AlternativeCommand))
	}
}

// SudoRetrying announces a password retry.
func (r *Reporter) SudoRetrying(attempt int) {
	if r.jsonMode {
		return
	}
	fmt.Fprintf(r.out, "%s sudo authentication failed (attempt %d of %d)\n",
		r.yellow.Sprint("Retrying:"), attempt, MaxSudoAttempts)
}

// Success announces a completed run.
func (r *Reporter) Success() {
	if r.jsonMode {
		return
	}
	fmt.Fprintln(r.out, r.green.Sprint("Done."))
}

// Aborted announces a terminal abort.
func (r *Reporter) Aborted(reason AbortReason) {
	if r.jsonMode {
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", r.red.Sprint("Aborted:"), reason)
}

// Summary is the structured single-line session record (JSON mode).
type Summary struct {
	Status            string    `json:"status"`
	Success           bool      `json:"success"`
	AbortedReason     *string   `json:"abortedReason"`
	OriginalQuery     string    `json:"originalQuery"`
	FinalQuery        string    `json:"finalQuery"`
	FinalCommand      *string   `json:"finalCommand"`
	Explanation       *string   `json:"explanation"`
	Attempts          int       `json:"attempts"`
	Failures          []Failure `json:"failures"`
	AlternativesTried int       `json:"alternativesTried"`
}

// BuildSummary derives the summary from a terminal context. It reads only;
// re-running it on an unchanged context produces an identical result.
func BuildSummary(c *CommandContext) Summary {
	s := Summary{
		OriginalQuery: c.OriginalQuery,
		FinalQuery:    c.Query,
		Attempts:      c.AttemptCount,
		Failures:      c.Failures,
	}
	if s.Failures == nil {
		s.Failures = []Failure{}
	}

	if c.State == StateSuccess {
		s.Status = "success"
		s.Success = true
	} else {
		s.Status = "aborted"
		if c.AbortedReason != "" {
			reason := string(c.AbortedReason)
			s.AbortedReason = &reason
		}
	}

	if c.CurrentAnalysis != nil {
		s.FinalCommand = &c.CurrentAnalysis.Command
		if c.CurrentAnalysis.Explanation != "" {
			s.Explanation = &c.CurrentAnalysis.Explanation
		}
	}

	for _, f := range c.Failures {
		if f.AlternativeCommand != nil {
			s.AlternativesTried++
		}
	}

	return s
}

// PrintSummary emits the single-line JSON summary. A no-op outside JSON mode.
func (r *Reporter) PrintSummary(c *CommandContext) error {
	if !r.jsonMode {
		return nil
	}
	data, err := json.Marshal(BuildSummary(c))
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}
