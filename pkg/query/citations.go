package query

import "strings"

// extractCitations collects the [[id]] source markers from an answer in
// order of first appearance. Malformed or empty markers are skipped; only
// ids actually present in the evidence are returned so the model cannot
// invent citations.
func extractCitations(answer string, known map[string]struct{}) []string {
	cited := make([]string, 0)
	seen := make(map[string]struct{})

	rest := answer
	for {
		start := strings.Index(rest, "[[")
		if start == -1 {
			break
		}
		rest = rest[start+2:]
		end := strings.Index(rest, "]]")
		if end == -1 {
			break
		}
		id := rest[:end]
		rest = rest[end+2:]

		if !isCitationID(id) {
			continue
		}
		if _, ok := known[id]; !ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		cited = append(cited, id)
	}
	return cited
}

func isCitationID(id string) bool {
	if id == "" {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}

	return true
}
