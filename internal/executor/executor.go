package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Reserved exit codes, matching the conventions of timeout(1) and shells.
const (
	ExitCodeTimeout   = 124
	ExitCodeInterrupt = 130
)

// Request describes one command execution.
type Request struct {
	Command     string
	Interactive bool
	SudoRetry   bool
	Timeout     time.Duration
}

// Result is the terminal outcome of one execution. Exactly one of timeout,
// interrupt, normal exit, or spawn error determines it.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor spawns and supervises a single shell command at a time.
type Executor struct {
	// Stdout and Stderr receive the command's incremental output in capture
	// mode. They default to the process's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// ForceTTY runs every command with fully inherited terminal I/O.
	ForceTTY bool

	// ReadPassword collects the sudo password. Injectable for tests; the
	// default reads masked input from the controlling terminal.
	ReadPassword func(retry bool) (string, error)

	logger *slog.Logger
}

// New creates an executor with terminal defaults.
func New(logger *slog.Logger) *Executor {
	return &Executor{
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		ReadPassword: terminalReadPassword,
		logger:       logger,
	}
}

// terminalReadPassword prompts on stderr and reads masked input from stdin.
func terminalReadPassword(retry bool) (string, error) {
	if retry {
		fmt.Fprint(os.Stderr, "Password (try again): ")
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}

	// Non-terminal stdin (scripts, tests): read one line.
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Run executes the request and returns its terminal result. Spawn errors
// resolve as exit code 1 with the error text as stderr; they never panic or
// return a Go error.
func (e *Executor) Run(ctx context.Context, req Request) Result {
	interactive := req.Interactive || e.ForceTTY
	command := req.Command
	password := ""
	passwordFlow := false

	if RequiresSudo(command) && !interactive {
		pw, err := e.ReadPassword(req.SudoRetry)
		if err != nil {
			return Result{ExitCode: 1, Stderr: err.Error()}
		}
		passwordFlow = true

		if ContainsPipe(command) {
			// Authenticate up front via a zero-op refresh, then run the
			// pipeline unmodified on cached credentials. Injecting the
			// password into the pipeline's stdin would contend with the
			// piped data.
			if res := e.refreshSudoCredentials(ctx, pw, req.Timeout); res.ExitCode != 0 {
				return res
			}
		} else {
			command = RewriteForStdinPassword(command)
			password = pw
		}
	}

	if interactive {
		return e.runInteractive(ctx, command, req.Timeout)
	}
	return e.runCaptured(ctx, command, password, passwordFlow, req.Timeout)
}

// refreshSudoCredentials runs `sudo -v` with the captured password so that
// a following invocation can rely on the credential cache.
func (e *Executor) refreshSudoCredentials(ctx context.Context, password string, timeout time.Duration) Result {
	e.logger.Debug("refreshing sudo credentials")
	return e.runCaptured(ctx, "sudo -S -p '' -v", password, true, timeout)
}

// shellCommand wraps the command so that a failure anywhere in a pipe chain
// is reported rather than masked by the last stage.
func shellCommand(command string) *exec.Cmd {
	if path, err := exec.LookPath("bash"); err == nil {
		return exec.Command(path, "-c", "set -o pipefail; "+command)
	}
	return exec.Command("sh", "-c", command)
}

func (e *Executor) runInteractive(ctx context.Context, command string, timeout time.Duration) Result {
	cmd := shellCommand(command)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: 1, Stderr: err.Error()}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	return e.awaitResult(ctx, cmd, done, timeout, nil, nil)
}

func (e *Executor) runCaptured(ctx context.Context, command, password string, passwordFlow bool, timeout time.Duration) Result {
	cmd := shellCommand(command)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: 1, Stderr: fmt.Sprintf("failed to create stdout pipe: %v", err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: 1, Stderr: fmt.Sprintf("failed to create stderr pipe: %v", err)}
	}

	var stdinPipe io.WriteCloser
	if password != "" {
		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("failed to create stdin pipe: %v", err)}
		}
	}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: 1, Stderr: err.Error()}
	}

	if stdinPipe != nil {
		go func() {
			_, _ = io.WriteString(stdinPipe, password+"\n")
			stdinPipe.Close()
		}()
	}

	var stdoutBuf, stderrBuf strings.Builder
	var mu sync.Mutex
	sawOutput := false

	// emit filters password-prompt echoes and, when a password flow is in
	// progress, separates the exchange from the first real output line.
	emit := func(line string, sink *strings.Builder, echo io.Writer) {
		if IsPasswordPrompt(line) {
			return
		}
		mu.Lock()
		if passwordFlow && !sawOutput {
			sawOutput = true
			fmt.Fprintln(echo)
		}
		sink.WriteString(line)
		sink.WriteByte('\n')
		mu.Unlock()
		fmt.Fprintln(echo, line)
	}

	// readPipe scans line by line; on a scan error (for example a single line
	// over the token limit) it keeps draining the pipe so the child can never
	// block on a full buffer, and records a truncation note instead of the
	// unreadable output.
	readPipe := func(pipe io.Reader, sink *strings.Builder, echo io.Writer) {
		scanner := bufio.NewScanner(pipe)
		scanner.Buffer(make([]byte, 4096), 1024*1024)
		for scanner.Scan() {
			emit(scanner.Text(), sink, echo)
		}
		if err := scanner.Err(); err != nil {
			e.logger.Warn("output scan failed, draining", "error", err)
			emit(fmt.Sprintf("[output truncated: %v]", err), sink, echo)
			_, _ = io.Copy(io.Discard, pipe)
		}
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		readPipe(stdoutPipe, &stdoutBuf, e.Stdout)
	}()
	go func() {
		defer readers.Done()
		readPipe(stderrPipe, &stderrBuf, e.Stderr)
	}()

	done := make(chan error, 1)
	go func() {
		readers.Wait()
		done <- cmd.Wait()
	}()

	return e.awaitResult(ctx, cmd, done, timeout, &stdoutBuf, &stderrBuf)
}

// awaitResult races process completion against the timeout timer and the
// session's cancellation signal. Exactly one branch resolves the result.
func (e *Executor) awaitResult(ctx context.Context, cmd *exec.Cmd, done chan error, timeout time.Duration, stdoutBuf, stderrBuf *strings.Builder) Result {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	capture := func() (string, string) {
		var out, errOut string
		if stdoutBuf != nil {
			out = stdoutBuf.String()
		}
		if stderrBuf != nil {
			errOut = stderrBuf.String()
		}
		return out, errOut
	}

	select {
	case err := <-done:
		out, errOut := capture()
		if err == nil {
			return Result{ExitCode: 0, Stdout: out, Stderr: errOut}
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Result{ExitCode: exitErr.ExitCode(), Stdout: out, Stderr: errOut}
		}
		return Result{ExitCode: 1, Stdout: out, Stderr: appendLine(errOut, err.Error())}

	case <-timeoutC:
		e.logger.Warn("command timed out", "timeout", timeout)
		e.terminate(cmd, done)
		out, errOut := capture()
		note := fmt.Sprintf("Command timed out after %s", timeout)
		return Result{ExitCode: ExitCodeTimeout, Stdout: out, Stderr: appendLine(errOut, note)}

	case <-ctx.Done():
		e.logger.Warn("command interrupted")
		e.terminate(cmd, done)
		out, errOut := capture()
		return Result{ExitCode: ExitCodeInterrupt, Stdout: out, Stderr: appendLine(errOut, "Command interrupted by user")}
	}
}

// terminate signals the process, escalating to a kill after a short grace
// period, and reaps it.
func (e *Executor) terminate(cmd *exec.Cmd, done chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

func appendLine(existing, line string) string {
	if existing == "" {
		return line
	}
	if strings.HasSuffix(existing, "\n") {
		return existing + line
	}
	return existing + "\n" + line
}
