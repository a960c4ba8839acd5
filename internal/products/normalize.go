package products

import "strings"

// Normalize strips "r/" prefixes and slashes from community names, drops
// blanks and removes case-insensitive duplicates, keeping first-seen order.
func Normalize(communities []string) []string {
	out := make([]string, 0, len(communities))
	seen := make(map[string]bool, len(communities))
	for _, c := range communities {
		c = strings.TrimSpace(c)
		c = strings.TrimPrefix(c, "/")
		if len(c) >= 2 && strings.EqualFold(c[:2], "r/") {
			c = c[2:]
		}
		c = strings.Trim(c, "/ ")
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
