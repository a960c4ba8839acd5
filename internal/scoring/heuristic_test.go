package scoring_test

import (
	"testing"
	"time"

	"github.com/truleado/truleado-sub002/internal/model"
	"github.com/truleado/truleado-sub002/internal/scoring"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// An old, quiet post isolates the text signals from engagement and recency.
func oldQuiet(title, body string) model.Candidate {
	return model.Candidate{
		ExternalID: "p1",
		Title:      title,
		Body:       body,
		CreatedAt:  now.Add(-30 * 24 * time.Hour),
	}
}

func TestHeuristic_NameQuestionNeed(t *testing.T) {
	c := oldQuiet("Need Acme CRM for a small team?", "")
	// 3 (name) + 2 (question) + 1 ("need"); the name is not also counted as a term.
	got := scoring.Heuristic(c, "Acme CRM", []string{"Acme CRM"}, now)
	if got != 6 {
		t.Errorf("Heuristic() = %d, want 6", got)
	}
}

func TestHeuristic_LeadScenario(t *testing.T) {
	c := model.Candidate{
		ExternalID:  "p2",
		Community:   "entrepreneur",
		Title:       "Looking for a CRM, spreadsheets are a nightmare, any recommendations?",
		Score:       15,
		NumComments: 8,
		CreatedAt:   now.Add(-2 * 24 * time.Hour),
	}
	terms := []string{"CRM Pro", "CRM", "spreadsheet nightmare"}
	// name absent; +2 "CRM"; +1 "looking for"; +1 "recommend";
	// +2 question; +1 recent; +1 comments; +1 upvotes.
	got := scoring.Heuristic(c, "CRM Pro", terms, now)
	if got != 9 {
		t.Errorf("Heuristic() = %d, want 9", got)
	}
}

func TestHeuristic_WorkedExampleArithmetic(t *testing.T) {
	c := model.Candidate{
		ExternalID:  "p3",
		Community:   "entrepreneur",
		Title:       "A CRM, spreadsheets are a nightmare, any recommendations?",
		Score:       15,
		NumComments: 8,
		CreatedAt:   now.Add(-2 * 24 * time.Hour),
	}
	terms := []string{"CRM Pro", "CRM", "spreadsheet nightmare"}
	// +2 "CRM"; +1 "recommend" only; +2 question; +1 recent;
	// +1 comments; +1 upvotes.
	got := scoring.Heuristic(c, "CRM Pro", terms, now)
	if got != 8 {
		t.Errorf("Heuristic() = %d, want 8", got)
	}
}

func TestHeuristic_Signals(t *testing.T) {
	cases := []struct {
		name string
		c    model.Candidate
		want int
	}{
		{"nothing", oldQuiet("Show off Saturday", "my new bike"), 0},
		{"term in body", oldQuiet("Weekly thread", "we track invoices by hand"), 2},
		{"term case-insensitive", oldQuiet("INVOICES everywhere", ""), 2},
		{"interrogative word", oldQuiet("Anyone using a billing tool", ""), 2},
		{"two problem phrases", oldQuiet("Struggling", "tired of this"), 2},
		{"recent", model.Candidate{Title: "hello", CreatedAt: now.Add(-6 * 24 * time.Hour)}, 1},
		{"exactly seven days", model.Candidate{Title: "hello", CreatedAt: now.Add(-7 * 24 * time.Hour)}, 1},
		{"eight days", model.Candidate{Title: "hello", CreatedAt: now.Add(-8 * 24 * time.Hour)}, 0},
		{"unknown age", model.Candidate{Title: "hello"}, 0},
		{"five comments no bonus", model.Candidate{Title: "hello", NumComments: 5}, 0},
		{"six comments", model.Candidate{Title: "hello", NumComments: 6}, 1},
		{"ten upvotes no bonus", model.Candidate{Title: "hello", Score: 10}, 0},
		{"eleven upvotes", model.Candidate{Title: "hello", Score: 11}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scoring.Heuristic(tc.c, "Billr", []string{"invoices"}, now)
			if got != tc.want {
				t.Errorf("Heuristic() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHeuristic_ClampedToTen(t *testing.T) {
	c := model.Candidate{
		Title:       "Need Billr? Looking for invoices help, struggling, frustrated, any advice?",
		Body:        "recommend an alternative to spreadsheets, tired of this, best tool for billing",
		Score:       500,
		NumComments: 90,
		CreatedAt:   now,
	}
	if got := scoring.Heuristic(c, "Billr", []string{"invoices", "billing", "spreadsheets"}, now); got != scoring.MaxScore {
		t.Errorf("Heuristic() = %d, want %d", got, scoring.MaxScore)
	}
}

func TestHeuristic_Deterministic(t *testing.T) {
	c := oldQuiet("How do you handle invoices?", "need something simple")
	first := scoring.Heuristic(c, "Billr", []string{"invoices"}, now)
	for i := 0; i < 20; i++ {
		if got := scoring.Heuristic(c, "Billr", []string{"invoices"}, now); got != first {
			t.Fatalf("run %d: Heuristic() = %d, want %d", i, got, first)
		}
	}
}
