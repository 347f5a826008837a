package providers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"tourcast/internal/domain"
	"tourcast/internal/infra"
)

const (
	geminiProviderName   = "gemini"
	geminiDefaultTimeout = 60 * time.Second

	geminiTTSMaxInputChars = 5000
)

// GeminiOptions configures the Gemini client.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Meter      Recorder
	Logger     *infra.Logger
}

// GeminiClient implements TextGenerator and SpeechSynthesizer against the
// Gemini generateContent API. When no API key is configured, speech synthesis
// returns a deterministic synthetic blob so the rest of the pipeline stays
// exercisable in local and CI environments.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	meter   Recorder
	logger  *infra.Logger
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature        float64             `json:"temperature,omitempty"`
	CandidateCount     int                 `json:"candidateCount,omitempty"`
	ResponseMimeType   string              `json:"responseMimeType,omitempty"`
	ResponseModalities []string            `json:"responseModalities,omitempty"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig *geminiVoiceConfig `json:"voiceConfig,omitempty"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig *geminiPrebuiltVoice `json:"prebuiltVoiceConfig,omitempty"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient constructs the client with sane defaults. An empty API key
// is allowed; text generation will fail Unavailable while speech falls back
// to synthetic output.
func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &GeminiClient{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   model,
		baseURL: baseURL,
		client:  client,
		meter:   opts.Meter,
		logger:  logger,
	}
}

// Name identifies the provider in routing, job records and metering.
func (g *GeminiClient) Name() string { return geminiProviderName }

// GenerateText calls generateContent with a JSON response mime type.
func (g *GeminiClient) GenerateText(ctx context.Context, spec PromptSpec) (string, error) {
	prompt := tourSystemPrompt + "\n\n" + buildTourPrompt(spec)
	start := time.Now()

	if g.apiKey == "" {
		record(g.meter, geminiProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", domain.NewProviderError(geminiProviderName, domain.ProviderUnavailable, errors.New("api key not configured"))
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.7,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	var out geminiResponse
	if perr := g.invoke(ctx, payload, &out); perr != nil {
		record(g.meter, geminiProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", perr
	}
	text := g.extractText(out)
	if text == "" {
		record(g.meter, geminiProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", domain.NewProviderError(geminiProviderName, domain.ProviderInvalidResponse, errors.New("no text candidates"))
	}
	record(g.meter, geminiProviderName, domain.OperationText, len(prompt), len(text), start, true)
	return strings.TrimSpace(text), nil
}

// MaxInputChars reports the speech input ceiling enforced before network calls.
func (g *GeminiClient) MaxInputChars() int { return geminiTTSMaxInputChars }

// SynthesizeSpeech converts text to audio via the TTS response modality.
func (g *GeminiClient) SynthesizeSpeech(ctx context.Context, text string, voice VoiceSpec) (*AudioBlob, error) {
	start := time.Now()
	if n := utf8.RuneCountInString(text); n > g.MaxInputChars() {
		record(g.meter, geminiProviderName, domain.OperationAudio, len(text), 0, start, false)
		return nil, domain.NewProviderError(geminiProviderName, domain.ProviderInvalidResponse,
			fmt.Errorf("%w: %d > %d", domain.ErrInputTooLong, n, g.MaxInputChars()))
	}

	if g.apiKey == "" {
		blob := g.syntheticSpeech(text)
		record(g.meter, geminiProviderName, domain.OperationAudio, len(text), len(blob.Data), start, true)
		return blob, nil
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: text}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &geminiSpeechConfig{
				VoiceConfig: &geminiVoiceConfig{
					PrebuiltVoiceConfig: &geminiPrebuiltVoice{VoiceName: voice.Voice},
				},
			},
		},
	}
	var out geminiResponse
	if perr := g.invoke(ctx, payload, &out); perr != nil {
		record(g.meter, geminiProviderName, domain.OperationAudio, len(text), 0, start, false)
		return nil, perr
	}
	for _, cand := range out.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil || len(data) == 0 {
				continue
			}
			record(g.meter, geminiProviderName, domain.OperationAudio, len(text), len(data), start, true)
			format := part.InlineData.MimeType
			if format == "" {
				format = "audio/wav"
			}
			return &AudioBlob{Data: data, Format: format}, nil
		}
	}
	record(g.meter, geminiProviderName, domain.OperationAudio, len(text), 0, start, false)
	return nil, domain.NewProviderError(geminiProviderName, domain.ProviderInvalidResponse, errors.New("no audio candidates"))
}

const (
	syntheticSampleRate     = 8000
	syntheticCharsPerSecond = 15
)

// syntheticSpeech produces a deterministic placeholder WAV sized from the
// input, so blob contents and duration estimates stay stable across runs.
func (g *GeminiClient) syntheticSpeech(text string) *AudioBlob {
	seconds := float64(len(text)) / syntheticCharsPerSecond
	if seconds < 1 {
		seconds = 1
	}
	samples := int(seconds * syntheticSampleRate)

	sum := sha256.Sum256([]byte(text))
	data := make([]byte, 44+samples)
	writeWAVHeader(data, samples)
	for i := 0; i < samples; i++ {
		data[44+i] = sum[i%len(sum)]
	}

	g.logger.Debug().
		Str("model", g.model).
		Int("chars", len(text)).
		Float64("seconds", seconds).
		Msg("gemini: generated synthetic speech blob")
	return &AudioBlob{
		Data:            data,
		Format:          "audio/wav",
		DurationSeconds: seconds,
	}
}

// writeWAVHeader fills the 44-byte canonical header for 8-bit mono PCM.
func writeWAVHeader(buf []byte, samples int) {
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+samples))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], syntheticSampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], syntheticSampleRate)
	binary.LittleEndian.PutUint16(buf[32:34], 1)
	binary.LittleEndian.PutUint16(buf[34:36], 8)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(samples))
}

func (g *GeminiClient) invoke(ctx context.Context, payload geminiRequest, out *geminiResponse) *domain.ProviderError {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return domain.NewProviderError(geminiProviderName, domain.ProviderInvalidResponse, err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return domain.NewProviderError(geminiProviderName, domain.ProviderUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(geminiProviderName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return classifyStatus(geminiProviderName, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewProviderError(geminiProviderName, domain.ProviderInvalidResponse, err)
	}
	return nil
}

func (g *GeminiClient) extractText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

var (
	_ TextGenerator     = (*GeminiClient)(nil)
	_ SpeechSynthesizer = (*GeminiClient)(nil)
)
