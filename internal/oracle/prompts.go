package oracle

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// EnvironmentInfo is the live machine context embedded into every prompt so
// generated commands match the host they will run on.
type EnvironmentInfo struct {
	OS         string
	Arch       string
	Release    string
	WorkingDir string
	Date       string
}

// CollectEnvironment gathers host context for prompt construction.
func CollectEnvironment() EnvironmentInfo {
	wd, err := os.Getwd()
	if err != nil {
		wd = "unknown"
	}

	return EnvironmentInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Release:    kernelRelease(),
		WorkingDir: wd,
		Date:       time.Now().Format("2006-01-02"),
	}
}

// kernelRelease reads the kernel version where the OS exposes it cheaply.
func kernelRelease() string {
	data, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (e EnvironmentInfo) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Operating system: %s/%s", e.OS, e.Arch)
	if e.Release != "" {
		fmt.Fprintf(&b, " (kernel %s)", e.Release)
	}
	fmt.Fprintf(&b, "\nCurrent date: %s", e.Date)
	fmt.Fprintf(&b, "\nWorking directory: %s", e.WorkingDir)
	return b.String()
}

// commandSystemPrompt builds the system prompt for command analysis,
// embedding host context and the classification rules.
func commandSystemPrompt(env EnvironmentInfo) string {
	return fmt.Sprintf(`You translate natural-language requests into a single shell command for the machine described below.

%s

Respond with a JSON object matching the requested schema. Rules:
- "command" is one shell command line, ready to execute as-is. Prefer widely available tools.
- "isDangerous" is true ONLY for irreversible system-damaging or data-destroying operations (wiping disks, deleting system directories, overwriting devices). Routine development cleanup such as removing build artifacts, caches, or lock files is NEVER dangerous.
- "needsInteractiveMode" is true ONLY when the user's intent is clearly to run an interactive program (an editor, a REPL, a pager, top).
- "requiresExternalPackages" and "externalPackages" list tools the command needs that may not be installed.
- File-search commands default to the user's home directory, not the filesystem root, to bound execution time and avoid permission noise.
- Do not wrap the command in quotes or markdown fences.`, env.describe())
}

// failureSystemPrompt builds the system prompt for failure analysis.
func failureSystemPrompt(env EnvironmentInfo) string {
	return fmt.Sprintf(`A shell command you suggested has failed on the machine described below. Diagnose the failure and propose a fix.

%s

Respond with a JSON object matching the requested schema. Rules:
- "explanation" states why the command failed, in one or two sentences.
- "solution" states how to fix it.
- "alternativeCommand" should almost always be a corrected command. Return null ONLY when software must first be installed and there is no safe install command, when the request is physically impossible, or when required user-specific information is missing.
- "needsInteractiveMode" on the alternative is true ONLY if the failure was unambiguously a missing-TTY error AND the alternative is itself an interactive program. When uncertain, false.`, env.describe())
}

// failureUserMessage renders a failed execution as a conversation turn.
func failureUserMessage(originalQuery, command string, exitCode int, stdout, stderr string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original request: %s\n", originalQuery)
	fmt.Fprintf(&b, "Failed command: %s\n", command)
	fmt.Fprintf(&b, "Exit code: %d\n", exitCode)
	if strings.TrimSpace(stdout) != "" {
		fmt.Fprintf(&b, "Stdout:\n%s\n", stdout)
	}
	if strings.TrimSpace(stderr) != "" {
		fmt.Fprintf(&b, "Stderr:\n%s\n", stderr)
	}
	b.WriteString("Analyze the failure and suggest an alternative command if one exists.")
	return b.String()
}
