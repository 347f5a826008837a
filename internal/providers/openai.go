package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"tourcast/internal/domain"
	"tourcast/internal/infra"
)

const (
	openAIProviderName   = "openai"
	openAIDefaultTimeout = 60 * time.Second

	// Documented input ceiling for the speech endpoint is 4096 characters.
	openAITTSMaxInputChars = 4096
)

// OpenAIOptions configures the OpenAI client.
type OpenAIOptions struct {
	APIKey       string
	Model        string
	TTSModel     string
	BaseURL      string
	Organization string
	DefaultVoice string
	HTTPClient   *http.Client
	Meter        Recorder
	Logger       *infra.Logger
}

// OpenAIClient implements TextGenerator and SpeechSynthesizer against the
// OpenAI REST API.
type OpenAIClient struct {
	apiKey       string
	model        string
	ttsModel     string
	baseURL      string
	organization string
	defaultVoice string
	client       *http.Client
	meter        Recorder
	logger       *infra.Logger
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAISpeechRequest struct {
	Model string  `json:"model"`
	Voice string  `json:"voice"`
	Input string  `json:"input"`
	Speed float64 `json:"speed,omitempty"`
}

// NewOpenAIClient constructs the client with sane defaults.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	ttsModel := strings.TrimSpace(opts.TTSModel)
	if ttsModel == "" {
		ttsModel = "tts-1"
	}
	voice := strings.TrimSpace(opts.DefaultVoice)
	if voice == "" {
		voice = "nova"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIClient{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		ttsModel:     ttsModel,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		defaultVoice: voice,
		client:       client,
		meter:        opts.Meter,
		logger:       opts.Logger,
	}, nil
}

// Name identifies the provider in routing, job records and metering.
func (o *OpenAIClient) Name() string { return openAIProviderName }

// GenerateText runs a chat completion constrained to a JSON object response.
func (o *OpenAIClient) GenerateText(ctx context.Context, spec PromptSpec) (string, error) {
	prompt := buildTourPrompt(spec)
	start := time.Now()

	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: 0.7,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{Role: "system", Content: tourSystemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		record(o.meter, openAIProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", domain.NewProviderError(openAIProviderName, domain.ProviderInvalidResponse, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", &buf)
	if err != nil {
		record(o.meter, openAIProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", domain.NewProviderError(openAIProviderName, domain.ProviderUnavailable, err)
	}
	o.setHeaders(httpReq)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		record(o.meter, openAIProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", classifyTransportError(openAIProviderName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		record(o.meter, openAIProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", classifyStatus(openAIProviderName, resp.StatusCode)
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		record(o.meter, openAIProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", domain.NewProviderError(openAIProviderName, domain.ProviderInvalidResponse, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		record(o.meter, openAIProviderName, domain.OperationText, len(prompt), 0, start, false)
		return "", domain.NewProviderError(openAIProviderName, domain.ProviderInvalidResponse, errors.New("empty response"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	record(o.meter, openAIProviderName, domain.OperationText, len(prompt), len(text), start, true)
	return text, nil
}

// MaxInputChars reports the speech endpoint's input ceiling.
func (o *OpenAIClient) MaxInputChars() int { return openAITTSMaxInputChars }

// SynthesizeSpeech converts text to audio. Over-long input is rejected before
// any network call; the caller owns truncation.
func (o *OpenAIClient) SynthesizeSpeech(ctx context.Context, text string, voice VoiceSpec) (*AudioBlob, error) {
	start := time.Now()
	if n := utf8.RuneCountInString(text); n > o.MaxInputChars() {
		record(o.meter, openAIProviderName, domain.OperationAudio, len(text), 0, start, false)
		return nil, domain.NewProviderError(openAIProviderName, domain.ProviderInvalidResponse,
			fmt.Errorf("%w: %d > %d", domain.ErrInputTooLong, n, o.MaxInputChars()))
	}

	payload := openAISpeechRequest{
		Model: o.ttsModel,
		Voice: voice.Voice,
		Input: text,
		Speed: voice.Speed,
	}
	if payload.Voice == "" {
		payload.Voice = o.defaultVoice
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		record(o.meter, openAIProviderName, domain.OperationAudio, len(text), 0, start, false)
		return nil, domain.NewProviderError(openAIProviderName, domain.ProviderInvalidResponse, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", &buf)
	if err != nil {
		record(o.meter, openAIProviderName, domain.OperationAudio, len(text), 0, start, false)
		return nil, domain.NewProviderError(openAIProviderName, domain.ProviderUnavailable, err)
	}
	o.setHeaders(httpReq)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		record(o.meter, openAIProviderName, domain.OperationAudio, len(text), 0, start, false)
		return nil, classifyTransportError(openAIProviderName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		record(o.meter, openAIProviderName, domain.OperationAudio, len(text), 0, start, false)
		return nil, classifyStatus(openAIProviderName, resp.StatusCode)
	}
	data, err := readAllLimited(resp.Body)
	if err != nil || len(data) == 0 {
		record(o.meter, openAIProviderName, domain.OperationAudio, len(text), 0, start, false)
		if err == nil {
			err = errors.New("empty audio payload")
		}
		return nil, domain.NewProviderError(openAIProviderName, domain.ProviderInvalidResponse, err)
	}

	record(o.meter, openAIProviderName, domain.OperationAudio, len(text), len(data), start, true)
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "audio/mpeg"
	}
	return &AudioBlob{Data: data, Format: format}, nil
}

func (o *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		req.Header.Set("OpenAI-Organization", o.organization)
	}
}

var (
	_ TextGenerator     = (*OpenAIClient)(nil)
	_ SpeechSynthesizer = (*OpenAIClient)(nil)
)
