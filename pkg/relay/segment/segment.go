// Package segment splits streamed assistant text into speakable sentence
// fragments. The boundary set is tuned for Japanese TTS output: a fragment
// ends immediately after a full-width period, comma, or question mark.
package segment

import "strings"

const boundaries = "。、？"

// Feed concatenates buffer and incoming, cuts after every boundary rune, and
// returns the complete fragments plus the trailing remainder. The remainder
// is carried into the next call; at stream end the caller flushes whatever is
// left as the final fragment.
func Feed(buffer, incoming string) ([]string, string) {
	if incoming == "" {
		return nil, buffer
	}

	text := buffer + incoming
	var sentences []string
	start := 0
	for i, r := range text {
		if !isBoundary(r) {
			continue
		}
		end := i + len(string(r))
		sentences = append(sentences, text[start:end])
		start = end
	}
	return sentences, text[start:]
}

func isBoundary(r rune) bool {
	return strings.ContainsRune(boundaries, r)
}
