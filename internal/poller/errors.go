package poller

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/stratum/internal/job"
)

type ErrorType int

const (
	// ErrTransport: the status query itself could not complete.
	ErrTransport ErrorType = iota
	// ErrJobFailed: the job reached the Failed status.
	ErrJobFailed
	// ErrPollTimeout: the job stayed non-terminal past the budget.
	ErrPollTimeout
	// ErrInvalidOptions: rejected before the first query.
	ErrInvalidOptions
)

const (
	defaultFailedMessage  = "Job failed"
	defaultTimeoutMessage = "Job polling timed out"
)

func (t ErrorType) String() string {
	switch t {
	case ErrTransport:
		return "Transport"
	case ErrJobFailed:
		return "JobFailed"
	case ErrPollTimeout:
		return "PollTimeout"
	case ErrInvalidOptions:
		return "InvalidOptions"
	default:
		return "Unknown"
	}
}

// PollError is the single error type returned by Poll.
type PollError struct {
	Type    ErrorType
	JobID   string
	Message string
	Elapsed time.Duration
	Queries int
	// Job is the last snapshot observed, nil for transport and option errors.
	Job   *job.Job
	Cause error
}

func (e *PollError) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Type, e.Message)}
	if e.JobID != "" {
		parts = append(parts, fmt.Sprintf("job=%s", e.JobID))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}
	return strings.Join(parts, " | ")
}

func (e *PollError) Unwrap() error {
	return e.Cause
}

func IsErrorType(err error, errorType ErrorType) bool {
	var pollErr *PollError
	if errors.As(err, &pollErr) {
		return pollErr.Type == errorType
	}
	return false
}

// FailureMessage returns the human readable reason carried by a PollError,
// or err.Error() for anything else.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var pollErr *PollError
	if errors.As(err, &pollErr) {
		if pollErr.Type == ErrTransport && pollErr.Cause != nil {
			return pollErr.Cause.Error()
		}
		return pollErr.Message
	}
	return err.Error()
}

func transportError(jobID string, queries int, elapsed time.Duration, cause error) *PollError {
	return &PollError{
		Type:    ErrTransport,
		JobID:   jobID,
		Message: "status query failed",
		Elapsed: elapsed,
		Queries: queries,
		Cause:   cause,
	}
}

func jobFailedError(snapshot *job.Job, jobID string, queries int, elapsed time.Duration) *PollError {
	msg := snapshot.Error
	if msg == "" {
		msg = defaultFailedMessage
	}
	return &PollError{
		Type:    ErrJobFailed,
		JobID:   jobID,
		Message: msg,
		Elapsed: elapsed,
		Queries: queries,
		Job:     snapshot,
	}
}

func timeoutError(snapshot *job.Job, jobID string, queries int, elapsed time.Duration) *PollError {
	return &PollError{
		Type:    ErrPollTimeout,
		JobID:   jobID,
		Message: defaultTimeoutMessage,
		Elapsed: elapsed,
		Queries: queries,
		Job:     snapshot,
	}
}

func invalidOptions(jobID, msg string) *PollError {
	return &PollError{
		Type:    ErrInvalidOptions,
		JobID:   jobID,
		Message: msg,
	}
}
