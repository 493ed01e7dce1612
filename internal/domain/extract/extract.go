// Package extract finds "sometimes I think about X" utterances in message text.
package extract

import (
	"regexp"
	"strings"
)

// phraseRE matches the fixed trigger and captures everything after it up to
// the first '.', newline, or end of input. RE2 has no lookahead, so the
// terminator is expressed as a negated class instead of a lazy ".+?".
//
// The trigger words are case-insensitive; the capture keeps original casing.
var phraseRE = regexp.MustCompile(`(?i)\bsometimes\s+i\s+think\s+(?:a\s+lot\s+)?about\s+([^.\n]+)`)

// Phrases returns every trimmed, non-empty phrase captured from text, in
// order of appearance. Returns nil when the trigger is absent.
func Phrases(text string) []string {
	matches := phraseRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	var out []string
	for _, m := range matches {
		p := strings.TrimSpace(m[1])
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Contains reports whether text yields at least one phrase.
func Contains(text string) bool {
	return len(Phrases(text)) > 0
}
