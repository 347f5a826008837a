package assembler

import (
	"strings"

	"tourcast/internal/domain"
)

const (
	maxSentenceChars = 300
	minSentenceChars = 10
)

// buildTranscript distributes totalSeconds across the narration's sentences
// in proportion to their character share. Segments are contiguous and
// non-overlapping, the first starts at 0 and the last ends exactly at
// totalSeconds.
func buildTranscript(narration string, totalSeconds float64) []domain.TranscriptSegment {
	pieces := segmentSentences(narration)
	if len(pieces) == 0 || totalSeconds <= 0 {
		return nil
	}

	totalChars := 0
	for _, p := range pieces {
		totalChars += len(p)
	}
	if totalChars == 0 {
		return nil
	}

	segments := make([]domain.TranscriptSegment, 0, len(pieces))
	cursor := 0.0
	for i, p := range pieces {
		share := float64(len(p)) / float64(totalChars)
		end := cursor + share*totalSeconds
		if i == len(pieces)-1 {
			end = totalSeconds
		}
		segments = append(segments, domain.TranscriptSegment{
			StartSeconds: domain.RoundSeconds(cursor),
			EndSeconds:   domain.RoundSeconds(end),
			Text:         p,
		})
		cursor = end
	}
	segments[len(segments)-1].EndSeconds = domain.RoundSeconds(totalSeconds)
	return segments
}

// segmentSentences splits narration into spoken units: sentences on
// terminator punctuation, over-long sentences further split on commas, and
// tiny fragments merged back into their predecessor.
func segmentSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range strings.TrimSpace(text) {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}

	var split []string
	for _, s := range sentences {
		if len(s) <= maxSentenceChars {
			split = append(split, s)
			continue
		}
		split = append(split, splitOnCommas(s)...)
	}

	var merged []string
	for _, s := range split {
		if len(s) < minSentenceChars && len(merged) > 0 {
			merged[len(merged)-1] = merged[len(merged)-1] + " " + s
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func splitOnCommas(s string) []string {
	parts := strings.Split(s, ", ")
	if len(parts) == 1 {
		return parts
	}
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i < len(parts)-1 {
			p += ","
		}
		out = append(out, p)
	}
	return out
}
