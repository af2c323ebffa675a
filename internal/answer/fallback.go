package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// snippetMaxChars caps each fallback snippet after sentence reduction.
const snippetMaxChars = 300

// fallbackAnswer builds the extractive answer: a header line followed by one
// line per source, best first. Deterministic for a fixed input.
func fallbackAnswer(question string, sources []Source, maxSources int) string {
	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summary for '%s':\n", question)
	for i, src := range sources {
		fmt.Fprintf(&b, "%d. [%s] %s → %s\n", i+1, src.Repo, src.Path, src.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}

// snippet reduces text to its first maxSentences sentences, flattened to one
// line and capped at snippetMaxChars.
func snippet(text string, maxSentences int) string {
	flat := strings.Join(strings.Fields(text), " ")

	count := 0
	end := len(flat)
	for i, r := range flat {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count >= maxSentences {
				end = i + 1
				break
			}
		}
	}
	flat = flat[:end]

	if len(flat) > snippetMaxChars {
		flat = cutAtRuneBoundary(flat, snippetMaxChars)
	}
	return strings.TrimSpace(flat)
}

// cutAtRuneBoundary truncates s to at most max bytes without splitting a
// multibyte rune.
func cutAtRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
