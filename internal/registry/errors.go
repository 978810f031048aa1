package registry

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes registry failures. The code is carried to callers in
// the Error tag of failure notices.
type ErrorCode string

const (
	// ErrCodeBadInput indicates a payload failed structural or format validation.
	ErrCodeBadInput ErrorCode = "Bad-Input"

	// ErrCodeStaleUpdate indicates an ordering token not newer than the last accepted one.
	ErrCodeStaleUpdate ErrorCode = "Stale-Update"

	// ErrCodeUnauthorized indicates the caller lacks the required relationship.
	ErrCodeUnauthorized ErrorCode = "Unauthorized"

	// ErrCodeNotFound indicates the target entity is not registered.
	ErrCodeNotFound ErrorCode = "Not-Found"
)

// Error is a registry failure. It never represents an infrastructure fault;
// those are returned as ordinary wrapped errors by the engine and store.
type Error struct {
	Code     ErrorCode
	Message  string
	EntityID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.EntityID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, entityID, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), EntityID: entityID}
}

// CodeOf returns the registry error code of err, or "" if err is not a
// registry error. Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsBadInput returns true if err is a malformed-input error.
func IsBadInput(err error) bool { return CodeOf(err) == ErrCodeBadInput }

// IsStale returns true if err is a stale-update error.
func IsStale(err error) bool { return CodeOf(err) == ErrCodeStaleUpdate }

// IsUnauthorized returns true if err is an authorization error.
func IsUnauthorized(err error) bool { return CodeOf(err) == ErrCodeUnauthorized }

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }
