package jobs_test

import (
	"testing"
	"time"

	"github.com/truleado/truleado-sub002/internal/jobs"
	"github.com/truleado/truleado-sub002/internal/model"
)

// ── ParseStatus ────────────────────────────────────────────────────────────

func TestParseStatus_ValidValues(t *testing.T) {
	for _, s := range []string{"active", "paused", "error"} {
		got, err := jobs.ParseStatus(s)
		if err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseStatus(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseStatus_InvalidValues(t *testing.T) {
	for _, s := range []string{"", "ACTIVE", " paused", "completed"} {
		if _, err := jobs.ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) expected error, got nil", s)
		}
	}
}

// ── IsUserTransitionAllowed ────────────────────────────────────────────────

func TestIsUserTransitionAllowed(t *testing.T) {
	cases := []struct {
		from, to model.JobStatus
		want     bool
	}{
		{model.JobActive, model.JobPaused, true},
		{model.JobError, model.JobPaused, true},
		{model.JobPaused, model.JobActive, true},
		{model.JobActive, model.JobActive, false},
		{model.JobPaused, model.JobPaused, false},
		{model.JobPaused, model.JobError, false},
		{model.JobActive, model.JobError, false},
		{model.JobError, model.JobActive, false},
	}
	for _, c := range cases {
		if got := jobs.IsUserTransitionAllowed(c.from, c.to); got != c.want {
			t.Errorf("IsUserTransitionAllowed(%s → %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsSchedulable(t *testing.T) {
	if !jobs.IsSchedulable(model.JobActive) || !jobs.IsSchedulable(model.JobError) {
		t.Error("active and error jobs must be schedulable")
	}
	if jobs.IsSchedulable(model.JobPaused) {
		t.Error("paused jobs must never be scheduled")
	}
}

// ── Apply ──────────────────────────────────────────────────────────────────

func TestApply(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	job := model.Job{ID: "j1", Status: model.JobError, IntervalMinutes: 30, ErrorMessage: "old"}

	cases := []struct {
		name    string
		outcome jobs.Outcome
		status  model.JobStatus
		msg     string
	}{
		{"success clears error", jobs.Outcome{Kind: jobs.Succeeded}, model.JobActive, ""},
		{"partial stays active", jobs.Outcome{Kind: jobs.Partial, Message: "1 of 5 searches failed"}, model.JobActive, "1 of 5 searches failed"},
		{"failure", jobs.Outcome{Kind: jobs.Failed, Message: "credential expired"}, model.JobError, "credential expired"},
		{"product paused", jobs.Outcome{Kind: jobs.ProductPaused, Message: "product paused"}, model.JobPaused, "product paused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := jobs.Apply(job, tc.outcome, now)
			if c.Status != tc.status || c.ErrorMessage != tc.msg {
				t.Errorf("Apply() = %+v, want status %s msg %q", c, tc.status, tc.msg)
			}
			if !c.LastRun.Equal(now) {
				t.Errorf("LastRun = %v, want %v", c.LastRun, now)
			}
			if want := now.Add(30 * time.Minute); !c.NextRun.Equal(want) {
				t.Errorf("NextRun = %v, want %v", c.NextRun, want)
			}
		})
	}
}

func TestApply_DefaultInterval(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	c := jobs.Apply(model.Job{}, jobs.Outcome{Kind: jobs.Succeeded}, now)
	if want := now.Add(jobs.DefaultIntervalMinutes * time.Minute); !c.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want %v", c.NextRun, want)
	}
}
