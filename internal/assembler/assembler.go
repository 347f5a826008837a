package assembler

import (
	"context"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"tourcast/internal/domain"
	"tourcast/internal/geo"
	"tourcast/internal/infra"
	"tourcast/internal/providers"
)

// ProviderRouter is the slice of the provider router the assembler needs.
type ProviderRouter interface {
	GenerateText(ctx context.Context, primary string, spec providers.PromptSpec) (string, string, error)
	SynthesizeSpeech(ctx context.Context, primary, text string, voice providers.VoiceSpec) (*providers.AudioBlob, string, error)
	SpeechMaxInputChars(primary string) int
}

// Options wires the assembler's collaborators and tuning values.
type Options struct {
	Router   ProviderRouter
	Geocoder geo.Geocoder
	Logger   *infra.Logger

	DefaultTextProvider   string
	DefaultSpeechProvider string

	// TextTimeout bounds the narration stage end to end, independent of the
	// per-request timeouts inside the provider clients.
	TextTimeout time.Duration

	SpeakingRateCPS     float64
	SpeechSpeed         float64
	MinStops            int
	MaxStops            int
	MaxLegMeters        float64
	MaxTotalMeters      float64
	WalkingSpeedMPerMin float64
}

// Assembler turns a validated generation request into an artifact in three
// stages. The orchestrator drives the stages so it can persist state
// transitions and honor cancellation between them.
type Assembler struct {
	router   ProviderRouter
	geocoder geo.Geocoder
	logger   infra.Logger

	defaultTextProvider   string
	defaultSpeechProvider string
	textTimeout           time.Duration

	speakingRateCPS     float64
	speechSpeed         float64
	minStops            int
	maxStops            int
	maxLegMeters        float64
	maxTotalMeters      float64
	walkingSpeedMPerMin float64
}

// Draft carries intermediate state between assembly stages.
type Draft struct {
	Request       domain.GenerationRequest
	Title         string
	Narration     string
	Stops         []Stop
	TextProvider  string
	SpeechText    string
	Audio         *providers.AudioBlob
	AudioProvider string
	Warnings      []string
}

func New(opts Options) *Assembler {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	a := &Assembler{
		router:                opts.Router,
		geocoder:              opts.Geocoder,
		logger:                logger,
		defaultTextProvider:   opts.DefaultTextProvider,
		defaultSpeechProvider: opts.DefaultSpeechProvider,
		textTimeout:           opts.TextTimeout,
		speakingRateCPS:       opts.SpeakingRateCPS,
		speechSpeed:           opts.SpeechSpeed,
		minStops:              opts.MinStops,
		maxStops:              opts.MaxStops,
		maxLegMeters:          opts.MaxLegMeters,
		maxTotalMeters:        opts.MaxTotalMeters,
		walkingSpeedMPerMin:   opts.WalkingSpeedMPerMin,
	}
	if a.speakingRateCPS <= 0 {
		a.speakingRateCPS = 15
	}
	if a.minStops <= 0 {
		a.minStops = 3
	}
	if a.maxStops < a.minStops {
		a.maxStops = 7
	}
	if a.maxLegMeters <= 0 {
		a.maxLegMeters = 500
	}
	if a.maxTotalMeters <= 0 {
		a.maxTotalMeters = 2000
	}
	if a.walkingSpeedMPerMin <= 0 {
		a.walkingSpeedMPerMin = 80
	}
	return a
}

// GenerateNarration runs the text stage: prompt, provider call, parse,
// geocode, feasibility. It never fails on malformed model output; only
// provider exhaustion returns an error.
func (a *Assembler) GenerateNarration(ctx context.Context, req domain.GenerationRequest) (*Draft, error) {
	if a.textTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.textTimeout)
		defer cancel()
	}
	spec := providers.PromptSpec{
		Subject:         req.Subject.Name,
		City:            req.Subject.City,
		Country:         req.Subject.Country,
		Interests:       req.Interests,
		DurationMinutes: req.DurationMinutes,
		Language:        req.Language,
		TargetChars:     int(float64(req.DurationMinutes) * 60 * a.speakingRateCPS),
		MinStops:        a.minStops,
		MaxStops:        a.maxStops,
		MaxLegMeters:    a.maxLegMeters,
	}
	primary := req.Provider
	if primary == "" {
		primary = a.defaultTextProvider
	}
	raw, used, err := a.router.GenerateText(ctx, primary, spec)
	if err != nil {
		return nil, err
	}

	title, narration, stops, warnings := parseNarration(raw, req.Subject)
	draft := &Draft{
		Request:      req,
		Title:        title,
		Narration:    narration,
		Stops:        stops,
		TextProvider: used,
		Warnings:     warnings,
	}

	a.resolveStops(ctx, req.Subject, draft.Stops)
	draft.Warnings = append(draft.Warnings, a.walkabilityWarnings(draft.Stops, req.DurationMinutes)...)

	speechPrimary := req.Provider
	if speechPrimary == "" {
		speechPrimary = a.defaultSpeechProvider
	}
	limit := a.router.SpeechMaxInputChars(speechPrimary)
	speech, truncated := truncateAtSentence(draft.Narration, limit)
	draft.SpeechText = speech
	if truncated {
		draft.Warnings = append(draft.Warnings, fmt.Sprintf(
			"narration shortened from %d to %d characters for speech synthesis",
			utf8.RuneCountInString(draft.Narration), utf8.RuneCountInString(speech)))
	}
	return draft, nil
}

// SynthesizeAudio runs the audio stage. A failure here is recoverable: the
// orchestrator finalizes without audio.
func (a *Assembler) SynthesizeAudio(ctx context.Context, draft *Draft) error {
	primary := draft.Request.Provider
	if primary == "" {
		primary = a.defaultSpeechProvider
	}
	voice := providers.VoiceSpec{Voice: draft.Request.Voice, Speed: a.speechSpeed}
	blob, used, err := a.router.SynthesizeSpeech(ctx, primary, draft.SpeechText, voice)
	if err != nil {
		return err
	}
	draft.Audio = blob
	draft.AudioProvider = used
	return nil
}

// Finalize assembles the artifact. Duration comes from the audio blob when
// the provider reported one, otherwise from the speaking-rate estimate over
// the synthesized text.
func (a *Assembler) Finalize(draft *Draft) *domain.Artifact {
	totalSeconds := float64(len(draft.SpeechText)) / a.speakingRateCPS
	if draft.Audio != nil && draft.Audio.DurationSeconds > 0 {
		totalSeconds = draft.Audio.DurationSeconds
	}
	totalSeconds = domain.RoundSeconds(totalSeconds)

	artifact := &domain.Artifact{
		Title:                draft.Title,
		Narration:            draft.Narration,
		Segments:             buildSegments(draft, totalSeconds),
		Transcript:           buildTranscript(draft.SpeechText, totalSeconds),
		TotalDurationSeconds: totalSeconds,
		Provider:             draft.TextProvider,
		Warnings:             draft.Warnings,
	}
	return artifact
}

// buildSegments gives each stop a contiguous time window proportional to its
// share of the narration text. Without structured stops the whole tour is one
// overview segment.
func buildSegments(draft *Draft, totalSeconds float64) []domain.Segment {
	if len(draft.Stops) == 0 {
		return []domain.Segment{{
			Label:        "Overview",
			Text:         draft.Narration,
			StartSeconds: 0,
			EndSeconds:   totalSeconds,
		}}
	}

	totalChars := 0
	for _, s := range draft.Stops {
		totalChars += len(s.Text)
	}
	segments := make([]domain.Segment, 0, len(draft.Stops))
	cursor := 0.0
	for i, s := range draft.Stops {
		var end float64
		if totalChars == 0 {
			end = totalSeconds * float64(i+1) / float64(len(draft.Stops))
		} else {
			end = cursor + totalSeconds*float64(len(s.Text))/float64(totalChars)
		}
		if i == len(draft.Stops)-1 {
			end = totalSeconds
		}
		segments = append(segments, domain.Segment{
			Label:        s.Name,
			Text:         s.Text,
			StartSeconds: domain.RoundSeconds(cursor),
			EndSeconds:   domain.RoundSeconds(end),
			Coordinates:  s.Coordinates,
		})
		cursor = end
	}
	return segments
}
