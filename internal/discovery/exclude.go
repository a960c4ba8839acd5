package discovery

import "strings"

// RemovedMarkers are the placeholders the platform leaves in deleted or
// moderated posts. Such posts have no one left to reply to.
var RemovedMarkers = []string{"[deleted]", "[removed]"}

// ContainsExcluded returns true if any flag appears (case-insensitive) in
// the combined title + body text, or if the body is exactly a removal
// placeholder.
//
// Called before scoring: excluded candidates are silently discarded.
func ContainsExcluded(title, body string, flags []string) bool {
	trimmed := strings.TrimSpace(body)
	for _, m := range RemovedMarkers {
		if trimmed == m {
			return true
		}
	}
	if len(flags) == 0 {
		return false
	}
	combined := strings.ToLower(title + " " + body)
	for _, flag := range flags {
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			return true
		}
	}
	return false
}
