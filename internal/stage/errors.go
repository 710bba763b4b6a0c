package stage

import (
	"errors"
	"fmt"
)

// The error taxonomy decides retry behavior at the queue layer:
//
//	ValidationError: bad input, never retried
//	SubprocessError: non-zero exit or timeout, retried per stage policy
//	ParseError:      malformed tool output, retried (can be transient)
//	ResourceError:   insufficient disk, retried (space may free up)

// ValidationError means the source can never be processed as-is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Reason }

// Retryable marks validation failures as terminal for the queue.
func (e *ValidationError) Retryable() bool { return false }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// SubprocessError wraps a failed external invocation.
type SubprocessError struct {
	Binary   string
	ExitCode int
	TimedOut bool
	Stderr   []string
}

func (e *SubprocessError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Binary)
	}
	msg := fmt.Sprintf("%s exited with code %d", e.Binary, e.ExitCode)
	if len(e.Stderr) > 0 {
		msg += ": " + e.Stderr[len(e.Stderr)-1]
	}
	return msg
}

// ParseError wraps unparseable tool output.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse failed: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// ResourceError reports an environmental shortfall (disk space).
type ResourceError struct {
	Reason string
}

func (e *ResourceError) Error() string { return "resource unavailable: " + e.Reason }

// IsRetryable reports whether the queue should re-run a failed attempt.
// Errors default to retryable; only types that implement Retryable() and
// return false are terminal.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
