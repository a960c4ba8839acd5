// Package terms derives platform search terms from a product's declared
// attributes. Everything here is pure and deterministic.
package terms

import (
	"strings"
	"unicode"

	"github.com/truleado/truleado-sub002/internal/model"
)

const (
	// MaxTerms bounds the fan-out of one execution (communities × terms).
	MaxTerms = 8
	// MaxSupplementary bounds the terms derived from pain points and features.
	MaxSupplementary = 6
	// MaxTermWords is the per-term token budget.
	MaxTermWords = 4
	// maxPhraseWords keeps derived phrases short enough to match real titles.
	maxPhraseWords = 3
)

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"of": true, "to": true, "for": true, "with": true, "without": true,
	"in": true, "on": true, "at": true, "by": true, "from": true, "into": true,
	"is": true, "are": true, "be": true, "been": true, "was": true, "were": true,
	"our": true, "your": true, "their": true, "my": true, "we": true,
	"you": true, "they": true, "it": true, "its": true, "that": true,
	"this": true, "these": true, "those": true, "too": true, "very": true,
	"can": true, "will": true, "not": true, "no": true, "so": true,
	"all": true, "any": true, "more": true, "less": true, "just": true,
	"get": true, "gets": true, "help": true, "helps": true, "make": true,
	"makes": true, "easy": true, "easily": true, "use": true, "using": true,
}

// Generate returns the ordered, de-duplicated search terms for p: the
// literal product name first, then up to MaxSupplementary short phrases
// drawn from pain points and then features. A product with no usable
// attributes yields an empty slice; callers fall back to the name.
func Generate(p model.Product) []string {
	out := make([]string, 0, MaxTerms)
	seen := make(map[string]bool)

	add := func(term string) bool {
		key := strings.ToLower(term)
		if term == "" || seen[key] {
			return false
		}
		seen[key] = true
		out = append(out, term)
		return true
	}

	add(truncateWords(strings.TrimSpace(p.Name), MaxTermWords))

	supplementary := 0
	for _, source := range [][]string{p.PainPoints, p.Features} {
		for _, attr := range source {
			for _, phrase := range splitClauses(attr) {
				if supplementary >= MaxSupplementary || len(out) >= MaxTerms {
					return out
				}
				if add(nounPhrase(phrase)) {
					supplementary++
				}
			}
		}
	}
	return out
}

// splitClauses breaks a free-text attribute into separately searchable clauses.
func splitClauses(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ',', ';', '/', '\n', '.', '(', ')', ':':
			return true
		}
		return false
	})
}

// nounPhrase reduces a clause to its first few content words, lower-cased.
// Clauses with nothing longer than two letters are discarded.
func nounPhrase(clause string) string {
	words := tokenize(clause)
	kept := make([]string, 0, maxPhraseWords)
	substantial := false
	for _, w := range words {
		if stopwords[w] {
			if len(kept) > 0 {
				// a stopword after content ends the phrase
				break
			}
			continue
		}
		kept = append(kept, w)
		if len([]rune(w)) > 2 {
			substantial = true
		}
		if len(kept) == maxPhraseWords {
			break
		}
	}
	if !substantial {
		return ""
	}
	return strings.Join(kept, " ")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'')
	})
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
