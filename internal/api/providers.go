package api

import (
	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/cascade"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/config"
)

// BuildRegistry assembles the provider cascades from configuration.
// Providers without credentials are still registered; the controller skips
// them, which keeps the audit trail explicit about what was not tried.
func BuildRegistry(cfg *config.Config, sink ai.ArtifactSink) (*cascade.Registry, error) {
	retry := ai.RetryPolicy{
		MaxRetries:      cfg.Resilience.ProviderRetries,
		InitialInterval: cfg.Resilience.RetryBackoff,
	}
	rps := cfg.Resilience.ProviderRPS

	gemini := ai.NewGemini(ai.GeminiConfig{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		BaseURL:     cfg.Gemini.BaseURL,
		Temperature: ai.Float64(cfg.Gemini.Temperature),
		MaxTokens:   cfg.Gemini.MaxTokens,
		Timeout:     cfg.Gemini.Timeout,
		Retry:       retry,
		RPS:         rps,
	})
	openai := ai.NewChat(ai.ChatConfig{
		Name:        "openai",
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: ai.Float64(cfg.OpenAI.Temperature),
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
		Retry:       retry,
		RPS:         rps,
	})
	medgemma := ai.NewChat(ai.ChatConfig{
		Name:        "medgemma",
		APIKey:      cfg.MedGemma.APIKey,
		BaseURL:     cfg.MedGemma.BaseURL,
		Model:       cfg.MedGemma.ModelID,
		Temperature: ai.Float64(0.1),
		MaxTokens:   cfg.MedGemma.MaxTokens,
		Timeout:     cfg.MedGemma.Timeout,
		Keyless:     true,
		Retry:       retry,
		RPS:         rps,
	})
	flux := ai.NewFlux(ai.FluxConfig{
		APIKey:   cfg.Flux.APIKey,
		BaseURL:  cfg.Flux.BaseURL,
		Model:    cfg.Flux.Model,
		Steps:    cfg.Flux.Steps,
		Guidance: cfg.Flux.Guidance,
		Timeout:  cfg.Flux.Timeout,
		Retry:    retry,
		RPS:      rps,
	})
	veo := ai.NewVeo(ai.VeoConfig{
		APIKey:      cfg.Gemini.APIKey,
		BaseURL:     cfg.Gemini.BaseURL,
		Model:       cfg.Veo.Model,
		AspectRatio: cfg.Veo.AspectRatio,
		Timeout:     cfg.Veo.Timeout,
		Retry:       retry,
		RPS:         rps,
		Sink:        sink,
	})
	replicate := ai.NewReplicate(ai.ReplicateConfig{
		APIToken:     cfg.Replicate.APIToken,
		BaseURL:      cfg.Replicate.BaseURL,
		ModelVersion: cfg.Replicate.ModelVersion,
		Timeout:      cfg.Replicate.Timeout,
		Retry:        retry,
		RPS:          rps,
		Sink:         sink,
	})

	reg := cascade.NewRegistry()
	if err := reg.Register(
		cascade.Descriptor{Provider: gemini},
		cascade.Descriptor{Provider: openai},
		cascade.Descriptor{Provider: flux, PollInterval: cfg.Flux.PollInterval, MaxPolls: cfg.Flux.MaxPolls},
		cascade.Descriptor{Provider: veo, PollInterval: cfg.Veo.PollInterval, MaxPolls: cfg.Veo.MaxPolls},
		cascade.Descriptor{Provider: replicate, PollInterval: cfg.Replicate.PollInterval, MaxPolls: cfg.Replicate.MaxPolls},
	); err != nil {
		return nil, err
	}
	if err := reg.RegisterDomain(ai.DomainDiagnosis,
		cascade.Descriptor{Provider: medgemma},
		cascade.Descriptor{Provider: gemini},
	); err != nil {
		return nil, err
	}
	return reg, nil
}
