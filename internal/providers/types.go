package providers

import (
	"context"
	"fmt"
	"strings"

	"tourcast/internal/domain"
)

// PromptSpec carries everything a text backend needs to produce a structured
// tour narration. Rendering to provider-specific payloads happens inside each
// client.
type PromptSpec struct {
	Subject         string
	City            string
	Country         string
	Interests       []string
	DurationMinutes int
	Language        string
	TargetChars     int
	MinStops        int
	MaxStops        int
	MaxLegMeters    float64
}

// VoiceSpec selects voice and speed for speech synthesis.
type VoiceSpec struct {
	Voice string
	Speed float64
}

// AudioBlob is the normalized result of speech synthesis. DurationSeconds is
// zero when the backend does not report it.
type AudioBlob struct {
	Data            []byte
	Format          string
	DurationSeconds float64
}

// TextGenerator produces raw narration text from a prompt spec.
type TextGenerator interface {
	Name() string
	GenerateText(ctx context.Context, spec PromptSpec) (string, error)
}

// SpeechSynthesizer converts narration text to audio. Implementations reject
// input longer than MaxInputChars before any network call; truncation is the
// caller's responsibility.
type SpeechSynthesizer interface {
	Name() string
	MaxInputChars() int
	SynthesizeSpeech(ctx context.Context, text string, voice VoiceSpec) (*AudioBlob, error)
}

// Recorder receives one InvocationRecord per provider call. The usage meter
// implements it; a nil Recorder is tolerated everywhere.
type Recorder interface {
	Record(rec domain.InvocationRecord)
}

// buildTourPrompt renders the shared structured-output instruction. Both
// backends ask for the same JSON shape so parsing stays provider-agnostic.
func buildTourPrompt(spec PromptSpec) string {
	place := spec.Subject
	if spec.City != "" {
		place = fmt.Sprintf("%s, %s", place, spec.City)
	}
	interests := strings.Join(spec.Interests, ", ")
	if interests == "" {
		interests = "history, culture"
	}

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Create a %d-minute walking audio tour of %s.\n", spec.DurationMinutes, place)
	fmt.Fprintf(sb, "Focus: %s. Language: %s.\n", interests, spec.Language)
	fmt.Fprintf(sb, "The tour has between %d and %d stops; consecutive stops must be within %.0f meters walking distance of each other.\n",
		spec.MinStops, spec.MaxStops, spec.MaxLegMeters)
	if spec.TargetChars > 0 {
		fmt.Fprintf(sb, "The full narration should be roughly %d characters so it fills the requested duration when spoken.\n", spec.TargetChars)
	}
	sb.WriteString(`Respond strictly with JSON matching this schema: {"title":string,"narration":string,"stops":[{"name":string,"text":string,"address":string}]}`)
	sb.WriteString(". Each stop's text is its portion of the narration, in tour order. The address field is a short geocodable landmark reference near the stop.")
	return sb.String()
}

const tourSystemPrompt = "You are an expert travel guide. Create engaging audio tour content and respond only with valid JSON."
