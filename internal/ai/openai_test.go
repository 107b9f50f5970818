package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		assert.Equal(t, "medgemma-test", payload["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatKeylessEndpoint(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "diagnosis text")
	chat := NewChat(ChatConfig{Name: "medgemma", BaseURL: srv.URL, Model: "medgemma-test", Keyless: true})
	require.True(t, chat.Configured())

	result := chat.Attempt(context.Background(), NewRequest(CapabilityText, DomainDiagnosis, WithSystem("sys"), WithPrompt("user")))
	require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
	assert.Equal(t, "diagnosis text", result.Artifact.Text)
	assert.Equal(t, "medgemma", chat.Name())
}

func TestChatUnconfigured(t *testing.T) {
	assert.False(t, NewChat(ChatConfig{Name: "medgemma", Keyless: true}).Configured())
	assert.False(t, NewChat(ChatConfig{Name: "openai"}).Configured())
	assert.True(t, NewChat(ChatConfig{Name: "openai", APIKey: "k"}).Configured())
}

func TestChatStatusErrorIsTyped(t *testing.T) {
	srv := chatServer(t, http.StatusServiceUnavailable, "")
	chat := NewChat(ChatConfig{Name: "medgemma", BaseURL: srv.URL, Model: "medgemma-test", Keyless: true})
	result := chat.Attempt(context.Background(), NewRequest(CapabilityText, DomainDiagnosis, WithPrompt("user")))
	require.True(t, result.Failed())

	var status *StatusError
	require.True(t, errors.As(result.Err, &status), "expected StatusError got %T %v", result.Err, result.Err)
	assert.Equal(t, http.StatusServiceUnavailable, status.Code)
}

func TestChatDecoderFailureIsFailure(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "no json at all")
	chat := NewChat(ChatConfig{Name: "medgemma", BaseURL: srv.URL, Model: "medgemma-test", Keyless: true})
	strict := DecoderFunc(func(raw string) (Artifact, error) {
		if ExtractJSONObject(raw) == "" {
			return Artifact{}, ErrMalformed
		}
		return Artifact{Text: raw}, nil
	})
	result := chat.Attempt(context.Background(), NewRequest(CapabilityText, DomainDiagnosis, WithPrompt("user"), WithDecoder(strict)))
	require.True(t, result.Failed())
	assert.True(t, errors.Is(result.Err, ErrMalformed))
}

func TestChatTemperature(t *testing.T) {
	cases := []struct {
		name        string
		temperature *float64
		want        float64
	}{
		{"default", nil, 0.2},
		{"explicit zero", Float64(0), 0},
		{"explicit", Float64(0.7), 0.7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sent map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
			}))
			t.Cleanup(srv.Close)

			chat := NewChat(ChatConfig{APIKey: "secret", BaseURL: srv.URL, Temperature: tc.temperature})
			result := chat.Attempt(context.Background(), NewRequest(CapabilityText, DomainExplain, WithPrompt("x")))
			require.False(t, result.Failed(), "unexpected failure: %v", result.Err)
			require.Contains(t, sent, "temperature")
			assert.InDelta(t, tc.want, sent["temperature"], 1e-6)
		})
	}
}
