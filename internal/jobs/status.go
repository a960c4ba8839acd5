// Package jobs holds the monitoring-job state machine and its store.
//
// User-driven status graph:
//
//	active ──pause──► paused ──resume──► active
//	error  ──pause──┘
//
// Executions move active/error to active (success, partial failure) or to
// error (total failure). No state is terminal while the product exists.
package jobs

import (
	"fmt"
	"time"

	"github.com/truleado/truleado-sub002/internal/model"
)

// DefaultIntervalMinutes applies to jobs stored without a usable interval.
const DefaultIntervalMinutes = 60

// userTransitions lists every (from → to) pair a user may request.
var userTransitions = map[model.JobStatus][]model.JobStatus{
	model.JobActive: {model.JobPaused},
	model.JobError:  {model.JobPaused},
	model.JobPaused: {model.JobActive},
}

// ParseStatus converts a raw string to a JobStatus, returning an error for
// unknown values.
func ParseStatus(s string) (model.JobStatus, error) {
	st := model.JobStatus(s)
	switch st {
	case model.JobActive, model.JobPaused, model.JobError:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsUserTransitionAllowed reports whether a user may move a job from → to.
func IsUserTransitionAllowed(from, to model.JobStatus) bool {
	for _, s := range userTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsSchedulable reports whether the scheduler may run a job in status s.
func IsSchedulable(s model.JobStatus) bool {
	return s == model.JobActive || s == model.JobError
}

// OutcomeKind classifies one execution.
type OutcomeKind int

const (
	// Succeeded: every (community × term) pair completed.
	Succeeded OutcomeKind = iota
	// Partial: some pairs failed, at least one succeeded.
	Partial
	// Failed: nothing useful happened (expired credential, no communities,
	// every pair failed, budget exhausted).
	Failed
	// ProductPaused: the product is no longer active; the job follows it.
	ProductPaused
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Partial:
		return "partial"
	case Failed:
		return "failed"
	case ProductPaused:
		return "product_paused"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is what an execution reports back to the store.
type Outcome struct {
	Kind    OutcomeKind
	Message string
}

// Completion is the row update applied after an execution.
type Completion struct {
	Status       model.JobStatus
	LastRun      time.Time
	NextRun      time.Time
	ErrorMessage string
}

// Apply computes the post-execution update for job. Every outcome moves
// last_run and next_run forward so a job can never get stuck.
func Apply(job model.Job, o Outcome, now time.Time) Completion {
	interval := job.Interval()
	if interval <= 0 {
		interval = DefaultIntervalMinutes * time.Minute
	}
	c := Completion{
		Status:  model.JobActive,
		LastRun: now,
		NextRun: now.Add(interval),
	}
	switch o.Kind {
	case Succeeded:
	case Partial:
		c.ErrorMessage = o.Message
	case Failed:
		c.Status = model.JobError
		c.ErrorMessage = o.Message
	case ProductPaused:
		c.Status = model.JobPaused
		c.ErrorMessage = o.Message
	}
	return c
}
