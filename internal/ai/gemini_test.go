package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiAttemptSuccess(t *testing.T) {
	srv := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var payload geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.NotNil(t, payload.SystemInstruction)
		assert.Equal(t, "be brief", payload.SystemInstruction.Parts[0].Text)
		require.Len(t, payload.Contents, 1)
		require.Len(t, payload.Contents[0].Parts, 2)
		assert.Equal(t, "image/png", payload.Contents[0].Parts[1].InlineData.MIMEType)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Restore "},{"text":"flow."}]}}]}`))
	})

	g := NewGemini(GeminiConfig{APIKey: "secret", Model: "gemini-test", BaseURL: srv.URL})
	req := NewRequest(CapabilityText, DomainImageAnalysis,
		WithSystem("be brief"),
		WithPrompt("describe"),
		WithReference(Reference{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}),
	)
	result := g.Attempt(context.Background(), req)
	require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
	assert.Equal(t, "Restore flow.", result.Artifact.Text)
}

func TestGeminiNotConfiguredMakesNoCall(t *testing.T) {
	var calls int32
	srv := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	g := NewGemini(GeminiConfig{BaseURL: srv.URL})
	result := g.Attempt(context.Background(), NewRequest(CapabilityText, DomainExplain, WithPrompt("x")))
	require.True(t, result.Failed())
	assert.True(t, errors.Is(result.Err, ErrNotConfigured))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGeminiRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	})
	g := NewGemini(GeminiConfig{
		APIKey:  "k",
		BaseURL: srv.URL,
		Retry:   RetryPolicy{MaxRetries: 2, InitialInterval: 1},
	})
	result := g.Attempt(context.Background(), NewRequest(CapabilityText, DomainExplain, WithPrompt("x")))
	require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGeminiFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"message":"nope"}}`},
		{"garbage", http.StatusOK, `not json`},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL})
			result := g.Attempt(context.Background(), NewRequest(CapabilityText, DomainExplain, WithPrompt("x")))
			if !result.Failed() {
				t.Fatalf("expected failure for %s", tc.name)
			}
		})
	}
}

func TestStatusErrorRetryClassification(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 503}, true},
		{&StatusError{Code: 400}, false},
		{context.Canceled, false},
		{errors.New("boom"), false},
	}
	for _, tc := range tests {
		if got := shouldRetry(tc.err); got != tc.expected {
			t.Fatalf("shouldRetry(%v) expected %v got %v", tc.err, tc.expected, got)
		}
	}
}

func TestGeminiTemperature(t *testing.T) {
	cases := []struct {
		name        string
		temperature *float64
		want        float64
	}{
		{"default", nil, 0.4},
		{"explicit zero", Float64(0), 0},
		{"explicit", Float64(0.9), 0.9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sent map[string]any
			srv := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
				var payload struct {
					GenerationConfig map[string]any `json:"generationConfig"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				sent = payload.GenerationConfig
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
			})
			g := NewGemini(GeminiConfig{APIKey: "secret", BaseURL: srv.URL, Temperature: tc.temperature})
			result := g.Attempt(context.Background(), NewRequest(CapabilityText, DomainExplain, WithPrompt("x")))
			require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
			require.Contains(t, sent, "temperature")
			assert.InDelta(t, tc.want, sent["temperature"], 1e-9)
		})
	}
}
