package engine

// MaxSudoAttempts is the hard ceiling on privilege-escalation password
// attempts, independent of the general loop guard.
const MaxSudoAttempts = 3

// Guard is the loop guard: pure accounting over failed-attempt counts.
// AttemptCount increments only on a completed non-zero-exit execution;
// dangerous-command rejections and confirmation rejections never count.
type Guard struct {
	MaxTries int
}

// Exceeded reports whether the failed-execution ceiling has been reached.
func (g Guard) Exceeded(attempts int) bool {
	return attempts >= g.MaxTries
}

// SudoExceeded reports whether the sudo password-attempt ceiling has been
// reached.
func SudoExceeded(sudoAttempts int) bool {
	return sudoAttempts >= MaxSudoAttempts
}
