package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// GeminiConfig holds Gemini generateContent parameters.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	// Temperature is nil for the adapter default; zero is a valid setting.
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       RetryPolicy
	RPS         float64
}

// Gemini is a text-completion provider backed by the Gemini REST API. It
// accepts image references as inline data, so it also serves image analysis.
type Gemini struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	retry       RetryPolicy
	limiter     *rate.Limiter
}

// NewGemini constructs the adapter. A blank key yields an unconfigured
// provider that the cascade skips.
func NewGemini(cfg GeminiConfig) *Gemini {
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	temperature := 0.4
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Gemini{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		temperature: temperature,
		maxTokens:   cfg.MaxTokens,
		retry:       cfg.Retry,
		limiter:     newLimiter(cfg.RPS),
	}
}

func (g *Gemini) Name() string { return "gemini" }
func (g *Gemini) Capability() Capability { return CapabilityText }
func (g *Gemini) Model() string { return g.model }

// Configured reports whether an API key is present.
func (g *Gemini) Configured() bool {
	return g != nil && g.apiKey != ""
}

// Attempt sends one generateContent call and decodes the first candidate.
func (g *Gemini) Attempt(ctx context.Context, req Request) Result {
	if !g.Configured() {
		return Failure(ErrNotConfigured)
	}
	body, err := json.Marshal(g.buildPayload(req))
	if err != nil {
		return Failure(fmt.Errorf("marshal request: %w", err))
	}
	if err := waitTurn(ctx, g.limiter); err != nil {
		return Failure(err)
	}

	var raw string
	err = g.retry.Do(ctx, func() error {
		text, err := g.generate(ctx, body)
		if err != nil {
			return err
		}
		raw = text
		return nil
	})
	if err != nil {
		return Failure(err)
	}

	artifact, err := req.Decode(raw)
	if err != nil {
		return Failure(fmt.Errorf("gemini: %w", err))
	}
	return Success(artifact)
}

func (g *Gemini) generate(ctx context.Context, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Provider: g.Name(), Code: resp.StatusCode, Body: string(payload)}
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode gemini response: %v", ErrMalformed, err)
	}
	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", ErrMalformed, decoded.PromptFeedback.BlockReason)
	}
	if len(decoded.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

func (g *Gemini) buildPayload(req Request) geminiRequest {
	parts := []geminiPart{{Text: req.UserContent()}}
	for _, ref := range req.References() {
		if len(ref.Data) == 0 {
			continue
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: ref.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: g.maxTokens,
		},
	}
	if system := strings.TrimSpace(req.System()); system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return payload
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}
