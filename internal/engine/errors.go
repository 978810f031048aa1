package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Submit and Query once the engine has shut down.
var ErrStopped = errors.New("engine stopped")

// RuntimeError represents an infrastructure failure detected by the engine.
//
// Registry failures (bad input, stale updates, unauthorized callers) are
// never RuntimeErrors: they are answered with notices. A RuntimeError means
// the engine could not do its own job, such as persisting a routed message.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// MessageID identifies the affected inbound message.
	MessageID string

	// Seq is the logical clock value assigned to the message.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCommitFailed indicates the message log or state could not be written.
	ErrCodeCommitFailed RuntimeErrorCode = "COMMIT_FAILED"

	// ErrCodeLookupFailed indicates the duplicate check against the log failed.
	ErrCodeLookupFailed RuntimeErrorCode = "LOOKUP_FAILED"

	// ErrCodeReplayDiverged indicates replaying the log did not reproduce
	// the stored state or notices.
	ErrCodeReplayDiverged RuntimeErrorCode = "REPLAY_DIVERGED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.MessageID != "" {
		msg = fmt.Sprintf("%s (message=%s, seq=%d)", msg, e.MessageID, e.Seq)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsCommitError returns true if the error is a commit failure.
// Uses errors.As to handle wrapped errors.
func IsCommitError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCommitFailed
	}
	return false
}

// IsReplayDiverged returns true if the error reports a non-deterministic replay.
func IsReplayDiverged(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeReplayDiverged
	}
	return false
}

// NewCommitError creates a RuntimeError for a failed commit.
func NewCommitError(messageID string, seq int64, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeCommitFailed,
		Message:   "failed to persist routed message",
		MessageID: messageID,
		Seq:       seq,
		Err:       err,
	}
}

// NewLookupError creates a RuntimeError for a failed duplicate check.
func NewLookupError(messageID string, seq int64, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeLookupFailed,
		Message:   "failed to check message log for duplicate",
		MessageID: messageID,
		Seq:       seq,
		Err:       err,
	}
}
