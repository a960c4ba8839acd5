package jobs

import "errors"

var (
	// ErrNotFound is returned when a job is missing or does not belong to the user.
	ErrNotFound = errors.New("monitoring job not found")
	// ErrAlreadyClaimed is returned when another execution holds the job.
	ErrAlreadyClaimed = errors.New("monitoring job is already running")
	// ErrJobPaused is returned when a paused job is asked to run.
	ErrJobPaused = errors.New("monitoring job is paused")
	// ErrProductInactive is returned when monitoring is requested for a
	// product that is not active.
	ErrProductInactive = errors.New("product is not active")
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
