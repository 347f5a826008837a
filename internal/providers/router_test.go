package providers

import (
	"context"
	"errors"
	"testing"

	"tourcast/internal/domain"
)

type fakeText struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeText) Name() string { return f.name }

func (f *fakeText) GenerateText(ctx context.Context, spec PromptSpec) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeSpeech struct {
	name  string
	max   int
	blob  *AudioBlob
	err   error
	calls int
}

func (f *fakeSpeech) Name() string       { return f.name }
func (f *fakeSpeech) MaxInputChars() int { return f.max }

func (f *fakeSpeech) SynthesizeSpeech(ctx context.Context, text string, voice VoiceSpec) (*AudioBlob, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.blob, nil
}

func TestRouterFallsBackOnTimeout(t *testing.T) {
	primary := &fakeText{name: "openai", err: domain.NewProviderError("openai", domain.ProviderTimeout, errors.New("deadline"))}
	fallback := &fakeText{name: "gemini", text: "narration"}
	router := NewRouter([]TextGenerator{primary, fallback}, nil, nil)

	text, used, err := router.GenerateText(context.Background(), "openai", PromptSpec{})
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if text != "narration" {
		t.Fatalf("text = %q", text)
	}
	if used != "gemini" {
		t.Fatalf("used = %q, want gemini", used)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", primary.calls, fallback.calls)
	}
}

func TestRouterNoInternalRetryPerProvider(t *testing.T) {
	a := &fakeText{name: "openai", err: domain.NewProviderError("openai", domain.ProviderRateLimited, nil)}
	b := &fakeText{name: "gemini", err: domain.NewProviderError("gemini", domain.ProviderUnavailable, nil)}
	router := NewRouter([]TextGenerator{a, b}, nil, nil)

	_, _, err := router.GenerateText(context.Background(), "", PromptSpec{})
	if err == nil {
		t.Fatal("expected aggregated failure")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("calls = %d/%d, want exactly one attempt per provider", a.calls, b.calls)
	}

	var failed *domain.GenerationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("error type = %T", err)
	}
	if len(failed.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(failed.Attempts))
	}
	if failed.Attempts[0].Kind != domain.ProviderRateLimited || failed.Attempts[1].Kind != domain.ProviderUnavailable {
		t.Fatalf("aggregated kinds = %s/%s", failed.Attempts[0].Kind, failed.Attempts[1].Kind)
	}
}

func TestRouterPrimaryPreferenceReordersCall(t *testing.T) {
	a := &fakeText{name: "openai", text: "from openai"}
	b := &fakeText{name: "gemini", text: "from gemini"}
	router := NewRouter([]TextGenerator{a, b}, nil, nil)

	_, used, err := router.GenerateText(context.Background(), "gemini", PromptSpec{})
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if used != "gemini" {
		t.Fatalf("used = %q, want gemini", used)
	}
	if a.calls != 0 {
		t.Fatalf("non-primary provider called %d times before primary succeeded", a.calls)
	}
}

func TestRouterSpeechFallbackRecordsProvider(t *testing.T) {
	primary := &fakeSpeech{name: "openai", max: 4096, err: domain.NewProviderError("openai", domain.ProviderUnavailable, nil)}
	fallback := &fakeSpeech{name: "gemini", max: 5000, blob: &AudioBlob{Data: []byte("audio"), Format: "audio/mpeg"}}
	router := NewRouter(nil, []SpeechSynthesizer{primary, fallback}, nil)

	blob, used, err := router.SynthesizeSpeech(context.Background(), "openai", "hello", VoiceSpec{})
	if err != nil {
		t.Fatalf("SynthesizeSpeech returned error: %v", err)
	}
	if used != "gemini" || string(blob.Data) != "audio" {
		t.Fatalf("used = %q blob = %q", used, blob.Data)
	}
}

func TestRouterSpeechMaxInputCharsIsChainMinimum(t *testing.T) {
	a := &fakeSpeech{name: "openai", max: 4096}
	b := &fakeSpeech{name: "gemini", max: 5000}
	router := NewRouter(nil, []SpeechSynthesizer{a, b}, nil)

	if got := router.SpeechMaxInputChars("gemini"); got != 4096 {
		t.Fatalf("SpeechMaxInputChars = %d, want 4096", got)
	}
}
