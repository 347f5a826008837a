package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"tourcast/internal/domain"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type captureMeter struct {
	records []domain.InvocationRecord
}

func (m *captureMeter) Record(rec domain.InvocationRecord) {
	m.records = append(m.records, rec)
}

func newOpenAIForTest(t *testing.T, rt roundTripFunc, meter Recorder) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(OpenAIOptions{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rt},
		Meter:      meter,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestOpenAIGenerateText(t *testing.T) {
	meter := &captureMeter{}
	client := newOpenAIForTest(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization header = %q", got)
		}
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"{\"title\":\"T\"}"}}]}`), nil
	}, meter)

	text, err := client.GenerateText(context.Background(), PromptSpec{Subject: "Central Park", City: "New York"})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if !strings.Contains(text, "title") {
		t.Fatalf("text = %q", text)
	}
	if len(meter.records) != 1 {
		t.Fatalf("meter records = %d, want 1", len(meter.records))
	}
	rec := meter.records[0]
	if !rec.Success || rec.Operation != domain.OperationText || rec.Provider != "openai" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestOpenAIStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   domain.ProviderErrorKind
	}{
		{http.StatusTooManyRequests, domain.ProviderRateLimited},
		{http.StatusGatewayTimeout, domain.ProviderTimeout},
		{http.StatusInternalServerError, domain.ProviderUnavailable},
		{http.StatusBadRequest, domain.ProviderInvalidResponse},
	}
	for _, tc := range cases {
		meter := &captureMeter{}
		client := newOpenAIForTest(t, func(req *http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, `{}`), nil
		}, meter)

		_, err := client.GenerateText(context.Background(), PromptSpec{})
		perr, ok := domain.AsProviderError(err)
		if !ok {
			t.Fatalf("status %d: error type = %T", tc.status, err)
		}
		if perr.Kind != tc.kind {
			t.Fatalf("status %d: kind = %s, want %s", tc.status, perr.Kind, tc.kind)
		}
		if len(meter.records) != 1 || meter.records[0].Success {
			t.Fatalf("status %d: records = %+v", tc.status, meter.records)
		}
	}
}

func TestOpenAIMalformedBodyIsInvalidResponse(t *testing.T) {
	client := newOpenAIForTest(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `not json`), nil
	}, nil)

	_, err := client.GenerateText(context.Background(), PromptSpec{})
	perr, ok := domain.AsProviderError(err)
	if !ok || perr.Kind != domain.ProviderInvalidResponse {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAISpeechRejectsOverLongInputWithoutNetworkCall(t *testing.T) {
	called := false
	meter := &captureMeter{}
	client := newOpenAIForTest(t, func(req *http.Request) (*http.Response, error) {
		called = true
		return jsonResponse(http.StatusOK, `{}`), nil
	}, meter)

	long := strings.Repeat("a", openAITTSMaxInputChars+1)
	_, err := client.SynthesizeSpeech(context.Background(), long, VoiceSpec{Voice: "nova"})
	if !errors.Is(err, domain.ErrInputTooLong) {
		t.Fatalf("err = %v, want ErrInputTooLong", err)
	}
	if called {
		t.Fatal("network call made for over-long input")
	}
	if len(meter.records) != 1 || meter.records[0].Success {
		t.Fatalf("records = %+v", meter.records)
	}
}

func TestOpenAISpeechReturnsBlob(t *testing.T) {
	client := newOpenAIForTest(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/audio/speech" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"audio/mpeg"}},
			Body:       io.NopCloser(strings.NewReader("ID3audio-bytes")),
		}, nil
	}, nil)

	blob, err := client.SynthesizeSpeech(context.Background(), "Welcome to the park.", VoiceSpec{Voice: "nova", Speed: 1.2})
	if err != nil {
		t.Fatalf("SynthesizeSpeech: %v", err)
	}
	if blob.Format != "audio/mpeg" || len(blob.Data) == 0 {
		t.Fatalf("blob = %+v", blob)
	}
}
