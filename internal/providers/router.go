package providers

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"tourcast/internal/domain"
	"tourcast/internal/infra"
)

// Router selects a provider, invokes it, and on any provider error falls back
// to the next configured provider in order. One attempt per provider per
// invocation; cross-provider fallback is the retry mechanism, which bounds
// worst-case latency to providers x per-provider timeout.
type Router struct {
	text   []TextGenerator
	speech []SpeechSynthesizer
	logger *infra.Logger
}

// NewRouter builds a router over the configured provider order. The slices
// define the fixed fallback order; a per-call primary preference reorders a
// copy, never the configuration.
func NewRouter(text []TextGenerator, speech []SpeechSynthesizer, logger *infra.Logger) *Router {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Router{text: text, speech: speech, logger: logger}
}

// GenerateText invokes text providers in deterministic order and returns the
// first successful result along with the name of the provider that produced it.
func (r *Router) GenerateText(ctx context.Context, primary string, spec PromptSpec) (string, string, error) {
	ordered := orderProviders(r.text, primary, func(p TextGenerator) string { return p.Name() })
	attempts := make([]*domain.ProviderError, 0, len(ordered))
	for _, provider := range ordered {
		text, err := provider.GenerateText(ctx, spec)
		if err == nil {
			return text, provider.Name(), nil
		}
		perr, ok := domain.AsProviderError(err)
		if !ok {
			perr = domain.NewProviderError(provider.Name(), domain.ProviderUnavailable, err)
		}
		attempts = append(attempts, perr)
		r.logger.Warn().
			Str("provider", provider.Name()).
			Str("kind", string(perr.Kind)).
			Err(perr.Err).
			Msg("router: text provider failed, trying next")
	}
	return "", "", &domain.GenerationFailedError{Operation: "text", Attempts: attempts}
}

// SynthesizeSpeech mirrors GenerateText for the audio operation.
func (r *Router) SynthesizeSpeech(ctx context.Context, primary, text string, voice VoiceSpec) (*AudioBlob, string, error) {
	ordered := orderProviders(r.speech, primary, func(p SpeechSynthesizer) string { return p.Name() })
	attempts := make([]*domain.ProviderError, 0, len(ordered))
	for _, provider := range ordered {
		blob, err := provider.SynthesizeSpeech(ctx, text, voice)
		if err == nil {
			return blob, provider.Name(), nil
		}
		perr, ok := domain.AsProviderError(err)
		if !ok {
			perr = domain.NewProviderError(provider.Name(), domain.ProviderUnavailable, err)
		}
		attempts = append(attempts, perr)
		r.logger.Warn().
			Str("provider", provider.Name()).
			Str("kind", string(perr.Kind)).
			Err(perr.Err).
			Msg("router: speech provider failed, trying next")
	}
	return nil, "", &domain.GenerationFailedError{Operation: "audio", Attempts: attempts}
}

// SpeechMaxInputChars returns the smallest input ceiling across the speech
// fallback chain starting at primary, so truncation done once up front is
// valid for every provider that might be attempted.
func (r *Router) SpeechMaxInputChars(primary string) int {
	ordered := orderProviders(r.speech, primary, func(p SpeechSynthesizer) string { return p.Name() })
	limit := 0
	for _, provider := range ordered {
		if m := provider.MaxInputChars(); limit == 0 || m < limit {
			limit = m
		}
	}
	return limit
}

// orderProviders returns the configured order with the named primary moved to
// the front. Unknown primaries leave the order untouched.
func orderProviders[T any](configured []T, primary string, name func(T) string) []T {
	ordered := make([]T, 0, len(configured))
	primary = strings.ToLower(strings.TrimSpace(primary))
	var rest []T
	for _, p := range configured {
		if primary != "" && strings.ToLower(name(p)) == primary {
			ordered = append(ordered, p)
			continue
		}
		rest = append(rest, p)
	}
	return append(ordered, rest...)
}
