package assembler

import (
	"strings"
	"unicode/utf8"
)

// sentenceBacktrackRatio bounds how far truncation may back up to land on a
// sentence end. Below this share of the limit a sentence cut loses too much
// narration, so the cut falls back to the last word boundary.
const sentenceBacktrackRatio = 0.8

// truncateAtSentence cuts text to at most limit runes, preferring the last
// full sentence that fits. Cuts land on rune boundaries, so multibyte
// narration never loses a partial character. Returns the cut text and
// whether anything was removed.
func truncateAtSentence(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	end := len(text)
	runes := 0
	for i := range text {
		if runes == limit {
			end = i
			break
		}
		runes++
	}
	cut := text[:end]

	best := -1
	for _, term := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(cut, term); idx > best {
			best = idx
		}
	}
	switch {
	case strings.HasSuffix(cut, ".") || strings.HasSuffix(cut, "!") || strings.HasSuffix(cut, "?"):
		return cut, true
	case best >= int(float64(len(cut))*sentenceBacktrackRatio):
		return strings.TrimSpace(cut[:best+1]), true
	}

	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut), true
}
