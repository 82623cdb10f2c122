package translator

import "strings"

// ============================================================================
// RESPONSE SANITIZER — Extracts the program from model text
// ============================================================================

const fence = "```"

// languageTags are the first-word tokens models put after an opening fence
// (or at the top of the reply) that are not part of the program.
var languageTags = []string{"python", "fql", "finchat", "json", "text", "plaintext"}

// CleanProgram strips markdown fences and a leading language tag. It never
// fails and leaves clean input unchanged.
func CleanProgram(response string) string {
	s := response
	if open := strings.Index(s, fence); open >= 0 {
		rest := s[open+len(fence):]
		if end := strings.Index(rest, fence); end >= 0 {
			s = rest[:end]
		}
	}
	s = strings.TrimSpace(s)
	s = stripLanguageTag(s)
	return strings.TrimSpace(s)
}

// stripLanguageTag removes a leading language name only when it is alone on
// the first line. "text = 1" keeps its first word.
func stripLanguageTag(s string) string {
	first, rest, _ := strings.Cut(s, "\n")
	first = strings.TrimSpace(first)
	for _, tag := range languageTags {
		if strings.EqualFold(first, tag) {
			return rest
		}
	}
	return s
}
