package adhoc

import (
	"strings"
	"unicode"
)

// Parsed is what a QueryParser extracts from a free-text request.
type Parsed struct {
	Communities []string
	Terms       []string
}

// QueryParser turns a free-text request into communities and terms.
type QueryParser interface {
	Parse(query string) Parsed
}

// KeywordParser is the built-in parser: "r/<name>" tokens become
// communities and the remaining words form a single search term.
type KeywordParser struct{}

func (KeywordParser) Parse(query string) Parsed {
	var (
		p     Parsed
		words []string
		seen  = make(map[string]bool)
	)
	for _, tok := range strings.Fields(query) {
		bare := strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '/' && r != '_'
		})
		lower := strings.ToLower(bare)
		if strings.HasPrefix(lower, "r/") || strings.HasPrefix(lower, "/r/") {
			name := bare[strings.Index(lower, "r/")+2:]
			name = strings.Trim(name, "/")
			if name != "" && !seen[strings.ToLower(name)] {
				seen[strings.ToLower(name)] = true
				p.Communities = append(p.Communities, name)
			}
			continue
		}
		words = append(words, tok)
	}
	if term := strings.Trim(strings.Join(words, " "), " ,;.!?"); term != "" {
		p.Terms = []string{term}
	}
	return p
}
