package worktree

import "fmt"

// ErrorCode classifies worktree failures so callers can branch on them.
type ErrorCode string

const (
	ErrCreateFailed  ErrorCode = "WORKTREE_CREATE_FAILED"
	ErrAlreadyExists ErrorCode = "WORKTREE_ALREADY_EXISTS"
	ErrNotFound      ErrorCode = "WORKTREE_NOT_FOUND"
	ErrLocked        ErrorCode = "WORKTREE_LOCKED"
	ErrDirty         ErrorCode = "WORKTREE_DIRTY"
	ErrGitError      ErrorCode = "WORKTREE_GIT_ERROR"
)

// Error is a typed worktree failure carrying the code and any captured
// git output.
type Error struct {
	Code    ErrorCode
	Message string
	Stderr  string
	Err     error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Stderr)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RetryAfterUnlock reports whether the failure is expected to clear once
// the underlying VCS lock is released.
func (e *Error) RetryAfterUnlock() bool {
	return e.Code == ErrLocked
}

// NeedsCleanup reports whether the caller must clean up explicitly before
// retrying (stale worktree or uncommitted changes in the way).
func (e *Error) NeedsCleanup() bool {
	return e.Code == ErrDirty || e.Code == ErrAlreadyExists
}

func newError(code ErrorCode, message string, stderr string, err error) *Error {
	return &Error{Code: code, Message: message, Stderr: stderr, Err: err}
}
