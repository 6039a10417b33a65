package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommandAnalysis is the oracle's answer to a natural-language query:
// a shell command plus its safety classification.
type CommandAnalysis struct {
	Command                  string   `json:"command"`
	Explanation              string   `json:"explanation"`
	IsDangerous              bool     `json:"isDangerous"`
	RequiresExternalPackages bool     `json:"requiresExternalPackages"`
	ExternalPackages         []string `json:"externalPackages"`
	NeedsInteractiveMode     bool     `json:"needsInteractiveMode"`
}

// FailureAnalysis is the oracle's diagnosis of a failed execution.
// AlternativeCommand is nil when no safe retry exists.
type FailureAnalysis struct {
	Explanation          string  `json:"explanation"`
	Solution             string  `json:"solution"`
	AlternativeCommand   *string `json:"alternativeCommand"`
	NeedsInteractiveMode bool    `json:"needsInteractiveMode"`
}

// commandAnalysisSchema constrains the structured command-analysis response.
const commandAnalysisSchema = `{
  "type": "object",
  "properties": {
    "command": {"type": "string"},
    "explanation": {"type": "string"},
    "isDangerous": {"type": "boolean"},
    "requiresExternalPackages": {"type": "boolean"},
    "externalPackages": {"type": "array", "items": {"type": "string"}},
    "needsInteractiveMode": {"type": "boolean"}
  },
  "required": ["command", "explanation", "isDangerous", "requiresExternalPackages", "externalPackages", "needsInteractiveMode"]
}`

// failureAnalysisSchema constrains the structured failure-analysis response.
const failureAnalysisSchema = `{
  "type": "object",
  "properties": {
    "explanation": {"type": "string"},
    "solution": {"type": "string"},
    "alternativeCommand": {"type": ["string", "null"]},
    "needsInteractiveMode": {"type": "boolean"}
  },
  "required": ["explanation", "solution", "alternativeCommand", "needsInteractiveMode"]
}`

// UnparseableError reports a structured response that could not be decoded
// into the expected shape. RawText preserves the provider output for the
// plain-text fallback path.
type UnparseableError struct {
	RawText string
	Cause   error
}

func (e *UnparseableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("structured response unparseable: %v", e.Cause)
	}
	return "structured response unparseable"
}

func (e *UnparseableError) Unwrap() error {
	return e.Cause
}

// decodeCommandAnalysis converts a structured result into a CommandAnalysis,
// returning *UnparseableError when the shape does not hold up.
func decodeCommandAnalysis(res *StructuredResult) (*CommandAnalysis, error) {
	if res == nil || len(res.Data) == 0 {
		raw := ""
		if res != nil {
			raw = res.RawText
		}
		return nil, &UnparseableError{RawText: raw}
	}

	var analysis CommandAnalysis
	if err := json.Unmarshal(res.Data, &analysis); err != nil {
		return nil, &UnparseableError{RawText: res.RawText, Cause: err}
	}

	if strings.TrimSpace(analysis.Command) == "" {
		return nil, &UnparseableError{RawText: res.RawText, Cause: fmt.Errorf("missing command field")}
	}

	if analysis.ExternalPackages == nil {
		analysis.ExternalPackages = []string{}
	}

	return &analysis, nil
}

// decodeFailureAnalysis converts a structured result into a FailureAnalysis.
func decodeFailureAnalysis(res *StructuredResult) (*FailureAnalysis, error) {
	if res == nil || len(res.Data) == 0 {
		raw := ""
		if res != nil {
			raw = res.RawText
		}
		return nil, &UnparseableError{RawText: raw}
	}

	var analysis FailureAnalysis
	if err := json.Unmarshal(res.Data, &analysis); err != nil {
		return nil, &UnparseableError{RawText: res.RawText, Cause: err}
	}

	if strings.TrimSpace(analysis.Explanation) == "" {
		return nil, &UnparseableError{RawText: res.RawText, Cause: fmt.Errorf("missing explanation field")}
	}

	// Treat an empty alternative as no alternative at all.
	if analysis.AlternativeCommand != nil && strings.TrimSpace(*analysis.AlternativeCommand) == "" {
		analysis.AlternativeCommand = nil
	}

	return &analysis, nil
}
