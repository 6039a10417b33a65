package executor

import (
	"regexp"
	"strings"
)

// sudoPattern matches the word sudo anywhere in the command text. This is a
// deliberate word-boundary match, not an invocation parse: a command whose
// arguments merely contain the word (e.g. `grep sudo /etc/group`) is a known
// false positive.
var sudoPattern = regexp.MustCompile(`\bsudo\b`)

// RequiresSudo reports whether the command text mentions sudo and therefore
// needs a privilege-escalation password flow.
func RequiresSudo(command string) bool {
	return sudoPattern.MatchString(command)
}

// ContainsPipe reports whether the command contains a shell pipeline.
// Piped commands cannot take the password on stdin without contending with
// the piped data, so they use the cached-credential flow instead.
func ContainsPipe(command string) bool {
	return strings.Contains(command, "|")
}

// RewriteForStdinPassword rewrites sudo invocations to read the password
// from standard input with no prompt.
func RewriteForStdinPassword(command string) string {
	return sudoPattern.ReplaceAllString(command, "sudo -S -p ''")
}

// authFailurePhrases are the stderr fragments sudo emits on a wrong password.
var authFailurePhrases = []string{
	"incorrect password attempt",
	"incorrect password attempts",
	"sorry, try again",
	"authentication failure",
}

// IsAuthFailure reports whether stderr indicates a sudo password rejection.
func IsAuthFailure(stderr string) bool {
	lowered := strings.ToLower(stderr)
	for _, phrase := range authFailurePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// passwordPrompts are localized spellings of sudo's password prompt. Lines
// consisting of one of these are echoes of the password exchange and are
// filtered out of captured output.
var passwordPrompts = []string{
	"password:",          // en
	"[sudo] password for", // en, sudo's own prefix
	"passwort:",          // de
	"mot de passe",       // fr
	"contraseña",         // es
	"password di",        // it
	"senha:",             // pt
	"wachtwoord:",        // nl
	"密码：",                // zh
	"パスワード:",             // ja
}

// IsPasswordPrompt reports whether a line of output is a password prompt
// echo rather than real command output.
func IsPasswordPrompt(line string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(line))
	if trimmed == "" {
		return false
	}
	for _, prompt := range passwordPrompts {
		if strings.HasPrefix(trimmed, prompt) {
			return true
		}
	}
	return false
}
