package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phrazzld/codescope-api/internal/redact"
)

// Error taxonomy surfaced by the coordinator and recorded on failed tasks
var (
	// ErrInvalidInput indicates a malformed submission; it never enters the queue
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates an unknown task, or one the caller does not own
	ErrNotFound = errors.New("task not found")

	// ErrFetch indicates the repository could not be retrieved
	ErrFetch = errors.New("fetch error")

	// ErrAnalysis indicates the model service failed or produced unusable output
	ErrAnalysis = errors.New("analysis error")

	// ErrInternal indicates a task store or work queue failure
	ErrInternal = errors.New("internal error")
)

// Store and queue level conditions
var (
	// ErrStateConflict is returned when a conditional transition finds the task
	// in a state other than the one it requires
	ErrStateConflict = errors.New("task is not in the required state")

	// ErrLostOwnership is returned by fenced worker writes when the task is no
	// longer in progress under the attempt the worker claimed
	ErrLostOwnership = errors.New("task ownership lost")

	// ErrQueueClosed is returned when enqueuing to or dequeuing from a closed queue
	ErrQueueClosed = errors.New("work queue is closed")

	// ErrQueueFull is returned when the queue cannot accept more items
	ErrQueueFull = errors.New("work queue is full")
)

// StageError describes a failure of the fetch or analysis stage.
type StageError struct {
	// Kind is ErrFetch or ErrAnalysis
	Kind error

	// Reason is a short, human readable classification
	Reason string

	// Permanent marks failures retrying cannot fix
	Permanent bool

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewFetchError builds a StageError of kind ErrFetch.
func NewFetchError(reason string, permanent bool, err error) *StageError {
	return &StageError{Kind: ErrFetch, Reason: reason, Permanent: permanent, Err: err}
}

// NewAnalysisError builds a StageError of kind ErrAnalysis.
func NewAnalysisError(reason string, permanent bool, err error) *StageError {
	return &StageError{Kind: ErrAnalysis, Reason: reason, Permanent: permanent, Err: err}
}

// IsRetryable reports whether a processing failure may succeed on a later attempt.
// Stage errors are retryable unless marked permanent, internal failures and
// timeouts are retryable, everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return !stageErr.Permanent
	}

	if errors.Is(err, ErrInvalidInput) {
		return false
	}

	return errors.Is(err, ErrInternal) || errors.Is(err, context.DeadlineExceeded)
}

// kindName maps an error to the classification used in error summaries.
func kindName(err error) string {
	switch {
	case errors.Is(err, ErrFetch):
		return "FetchError"
	case errors.Is(err, ErrAnalysis):
		return "AnalysisError"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	default:
		return "InternalError"
	}
}

// Summarize renders err as a user-facing error summary: the classification, the
// reason and the external message, with secrets and paths redacted.
func Summarize(err error) string {
	if err == nil {
		return ""
	}

	kind := kindName(err)

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		parts := []string{stageErr.Reason}
		if stageErr.Err != nil {
			parts = append(parts, stageErr.Err.Error())
		}
		return kind + ": " + redact.String(strings.Join(parts, ": "))
	}

	msg := err.Error()
	for _, sentinel := range []error{ErrInternal, ErrInvalidInput} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return kind + ": " + redact.String(msg)
}
