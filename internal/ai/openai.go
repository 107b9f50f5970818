package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ChatConfig configures an OpenAI-compatible chat-completions provider.
type ChatConfig struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	// Temperature is nil for the adapter default; zero is a valid setting.
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
	// Keyless marks self-hosted servers that only need a base URL.
	Keyless bool
	Retry   RetryPolicy
	RPS     float64
}

// Chat is a text-completion provider speaking the OpenAI chat API. It serves
// both the hosted OpenAI models and self-hosted MedGemma endpoints.
type Chat struct {
	client      *openai.Client
	name        string
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	keyless     bool
	retry       RetryPolicy
	limiter     *rate.Limiter
}

// NewChat constructs the adapter.
func NewChat(cfg ChatConfig) *Chat {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "openai"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	temperature := 0.2
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" && !cfg.Keyless {
		baseURL = "https://api.openai.com/v1"
	}

	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Chat{
		client:      openai.NewClientWithConfig(clientCfg),
		name:        cfg.Name,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     baseURL,
		model:       cfg.Model,
		temperature: chatTemperature(temperature),
		maxTokens:   cfg.MaxTokens,
		keyless:     cfg.Keyless,
		retry:       cfg.Retry,
		limiter:     newLimiter(cfg.RPS),
	}
}

func (c *Chat) Name() string { return c.name }

func (c *Chat) Capability() Capability { return CapabilityText }

func (c *Chat) Model() string { return c.model }

// Configured requires an API key, or only a base URL for keyless servers.
func (c *Chat) Configured() bool {
	if c == nil {
		return false
	}
	if c.keyless {
		return c.baseURL != ""
	}
	return c.apiKey != ""
}

// Attempt runs one chat completion and decodes the first choice.
func (c *Chat) Attempt(ctx context.Context, req Request) Result {
	if !c.Configured() {
		return Failure(ErrNotConfigured)
	}
	if err := waitTurn(ctx, c.limiter); err != nil {
		return Failure(err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.buildMessages(req),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var raw string
	err := c.retry.Do(ctx, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return c.translateError(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%s returned no choices", c.name)
		}
		raw = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return Failure(err)
	}

	artifact, err := req.Decode(raw)
	if err != nil {
		return Failure(fmt.Errorf("%s: %w", c.name, err))
	}
	return Success(artifact)
}

func (c *Chat) buildMessages(req Request) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if system := strings.TrimSpace(req.System()); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	refs := req.References()
	if len(refs) == 0 {
		user.Content = req.UserContent()
		return append(messages, user)
	}

	user.MultiContent = []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: req.UserContent(),
	}}
	for _, ref := range refs {
		url := ref.URI
		if len(ref.Data) > 0 {
			url = "data:" + ref.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(ref.Data)
		}
		if url == "" {
			continue
		}
		user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	return append(messages, user)
}

func (c *Chat) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &StatusError{Provider: c.name, Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &StatusError{Provider: c.name, Code: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
	}
	return fmt.Errorf("%s request: %w", c.name, err)
}

// chatTemperature maps a temperature onto the go-openai field, which omits a
// zero value from the request. Zero is sent as the smallest positive float32.
func chatTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
