// internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// ErrorCode is a string type used for structured error reporting from the
// executor and the run loop.
type ErrorCode string

const (
	// ErrCodeElementNotFound means an action's idx did not resolve to an
	// element, or the element vanished before the cursor reached it. The
	// step records the action as FAILED and the run continues.
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	// ErrCodeOracleFailure abandons the current iteration. Run state is kept.
	ErrCodeOracleFailure ErrorCode = "ORACLE_FAILURE"
	// ErrCodeRunFatal ends the run in the error state.
	ErrCodeRunFatal ErrorCode = "RUN_FATAL"
	// ErrCodeNoActions is reported when the oracle's batch was empty after filtering.
	ErrCodeNoActions ErrorCode = "NO_ACTIONS"
	// ErrCodeClarifyUnavailable is reported for a clarify action with no
	// clarification surface attached.
	ErrCodeClarifyUnavailable ErrorCode = "CLARIFY_UNAVAILABLE"
)

// Error carries an ErrorCode alongside the failing operation.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fatalf(op string, err error) *Error {
	return &Error{Code: ErrCodeRunFatal, Op: op, Err: err}
}

// CodeOf extracts the ErrorCode of err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
