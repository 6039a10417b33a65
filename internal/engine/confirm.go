package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DecisionKind classifies the user's response at the confirmation gate.
type DecisionKind int

const (
	DecisionApprove DecisionKind = iota
	DecisionReject
	DecisionModify
)

// Decision is the outcome of one confirmation prompt. Text carries the
// modification request verbatim when Kind is DecisionModify.
type Decision struct {
	Kind DecisionKind
	Text string
}

// Confirmer decides whether an analyzed command proceeds to execution.
// In auto-approve mode the gate is bypassed entirely and never invoked.
type Confirmer interface {
	// Confirm presents the command and collects a decision.
	Confirm(command string) (Decision, error)

	// PromptRetry asks, after a failure with no alternative, for a modified
	// request. ok is false when the user declines.
	PromptRetry() (text string, ok bool, err error)
}

// ParseDecision maps raw prompt input to a decision:
// empty, "n" or "no" reject; "y" or "yes" approve; any other input longer
// than one character is a modification request carried verbatim; a single
// unrecognized character rejects.
func ParseDecision(input string) Decision {
	trimmed := strings.TrimSpace(input)
	switch strings.ToLower(trimmed) {
	case "", "n", "no":
		return Decision{Kind: DecisionReject}
	case "y", "yes":
		return Decision{Kind: DecisionApprove}
	}
	if len(trimmed) > 1 {
		return Decision{Kind: DecisionModify, Text: trimmed}
	}
	return Decision{Kind: DecisionReject}
}

// TerminalConfirmer prompts on an interactive stream pair.
type TerminalConfirmer struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewTerminalConfirmer creates a confirmer over the given streams.
func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Confirm presents the command with the [y/N/modify] suffix and parses the
// response.
func (t *TerminalConfirmer) Confirm(command string) (Decision, error) {
	fmt.Fprintf(t.out, "Run `%s`? [y/N/modify] ", command)

	line, err := t.readLine()
	if err != nil {
		return Decision{}, err
	}
	return ParseDecision(line), nil
}

// PromptRetry asks for a modified request after a dead-end failure.
// An empty line declines.
func (t *TerminalConfirmer) PromptRetry() (string, bool, error) {
	fmt.Fprint(t.out, "No alternative found. Modify the request (empty line to abort): ")

	line, err := t.readLine()
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false, nil
	}
	return line, true, nil
}

func (t *TerminalConfirmer) readLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			// EOF with nothing read is a decline, not an error.
			return "", nil
		}
		return "", fmt.Errorf("failed to read confirmation input: %w", err)
	}
	return line, nil
}
