// Package scoring implements the two-stage relevance scorer: a cheap
// deterministic heuristic that gates an expensive AI oracle call.
package scoring

import (
	"strings"
	"time"
	"unicode"

	"github.com/truleado/truleado-sub002/internal/model"
)

// Heuristic weights.
const (
	MaxScore          = 10
	weightName        = 3
	weightTerm        = 2
	weightProblem     = 1
	weightQuestion    = 2
	weightRecent      = 1
	weightComments    = 1
	weightUpvotes     = 1
	recentWindow      = 7 * 24 * time.Hour
	commentsThreshold = 5
	upvotesThreshold  = 10
)

// ProblemIndicators are phrases that signal someone has a problem to solve.
// Each one present in title+body adds one point.
var ProblemIndicators = []string{
	"need",
	"looking for",
	"struggling",
	"recommend",
	"alternative to",
	"frustrated",
	"problem with",
	"help with",
	"suggestions",
	"any advice",
	"tired of",
	"can't find",
	"wish there was",
	"best tool",
	"best way to",
}

var interrogatives = map[string]bool{
	"how": true, "what": true, "which": true, "where": true, "who": true,
	"why": true, "when": true, "anyone": true, "anybody": true,
}

// Heuristic scores a candidate against the product name and search terms.
// Pure: for fixed inputs it always returns the same value in [0, MaxScore].
func Heuristic(c model.Candidate, productName string, terms []string, now time.Time) int {
	text := strings.ToLower(c.Title + " " + c.Body)
	name := strings.ToLower(strings.TrimSpace(productName))
	score := 0

	if name != "" && strings.Contains(text, name) {
		score += weightName
	}

	seen := map[string]bool{name: true}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if strings.Contains(text, t) {
			score += weightTerm
		}
	}

	for _, phrase := range ProblemIndicators {
		if strings.Contains(text, phrase) {
			score += weightProblem
		}
	}

	if isQuestion(c.Title) {
		score += weightQuestion
	}
	if !c.CreatedAt.IsZero() && now.Sub(c.CreatedAt) <= recentWindow {
		score += weightRecent
	}
	if c.NumComments > commentsThreshold {
		score += weightComments
	}
	if c.Score > upvotesThreshold {
		score += weightUpvotes
	}

	return clamp(score)
}

func isQuestion(title string) bool {
	if strings.Contains(title, "?") {
		return true
	}
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if interrogatives[w] {
			return true
		}
	}
	return false
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
