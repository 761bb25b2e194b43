// Package saga executes workflow definitions as sagas: ordered steps with
// per-step retries, durable progress, and reverse-order compensation of
// completed steps when a run cannot move forward. Steps within one workflow
// are strictly sequential; distinct workflows run concurrently through the
// runner pool.
package saga

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHandlerNotFound is returned when a step names a handler nobody
	// registered. It is a step failure, never a crash.
	ErrHandlerNotFound = errors.New("handler not registered")

	// ErrNotRetryable is returned by RetryWorkflow for workflows that are
	// not in failed or rolled_back, or whose retry budget is spent.
	ErrNotRetryable = errors.New("workflow is not retryable")

	// ErrNotCancelable is returned by CancelWorkflow for workflows that are
	// neither pending nor running.
	ErrNotCancelable = errors.New("workflow is not cancelable")

	// ErrCanceled is the forward-pass error recorded when a cancellation
	// request interrupts a run between steps.
	ErrCanceled = errors.New("workflow canceled")
)

// PermanentError marks a handler failure that retries cannot fix (rejections,
// malformed responses). The orchestrator stops retrying immediately and goes
// to compensation instead of leaving the workflow retryable-in-place.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the orchestrator treats it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// ExecutionError reports a forward-pass failure together with the
// compensation outcome. The original forward error is never masked by
// compensation problems; both travel to the caller.
type ExecutionError struct {
	WorkflowID       string
	StepName         string
	StepSequence     int
	Err              error
	Compensated      bool
	CompensationErrs []string
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("workflow %s failed at step %d (%s): %v",
		e.WorkflowID, e.StepSequence, e.StepName, e.Err)
	if e.Compensated {
		return msg + " (compensated)"
	}
	if len(e.CompensationErrs) > 0 {
		return msg + "; compensation failed: " + strings.Join(e.CompensationErrs, "; ")
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }
