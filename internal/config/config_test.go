package config

import (
	"testing"
	"time"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.MedGemmaMock || !cfg.GeminiMock {
		t.Fatalf("expected mock defaults to be on")
	}
	if cfg.VideoGenerationEnabled {
		t.Fatalf("expected video generation off by default")
	}
	if cfg.Video.PollInterval != 10*time.Second || cfg.Video.MaxPolls != 30 {
		t.Fatalf("unexpected video budget %s x %d", cfg.Video.PollInterval, cfg.Video.MaxPolls)
	}
	if cfg.Image.PollInterval != 2*time.Second {
		t.Fatalf("unexpected image interval %s", cfg.Image.PollInterval)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("expected two default origins got %v", cfg.AllowedOrigins)
	}
	if cfg.MedGemma.ModelID != "google/medgemma-4b-it" {
		t.Fatalf("unexpected model id %s", cfg.MedGemma.ModelID)
	}
	if got := cfg.ConfiguredProviders(); len(got) != 0 {
		t.Fatalf("expected no providers got %v", got)
	}
}

func TestCrossRequestStateIsOptIn(t *testing.T) {
	cfg, err := LoadFrom(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Resilience.BreakerFailures != 0 || cfg.Resilience.TextCacheSize != 0 {
		t.Fatalf("expected breaker and text cache off by default, got %d failures and %d entries",
			cfg.Resilience.BreakerFailures, cfg.Resilience.TextCacheSize)
	}

	cfg, err = LoadFrom(map[string]string{"BREAKER_FAILURES": "5", "TEXT_CACHE_SIZE": "256"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Resilience.BreakerFailures != 5 || cfg.Resilience.TextCacheSize != 256 {
		t.Fatalf("overrides not applied: %+v", cfg.Resilience)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"MEDGEMMA_MOCK":        "false",
		"GOOGLE_GENAI_API_KEY": " legacy-key ",
		"VIDEO_POLL_INTERVAL":  "250ms",
		"VIDEO_MAX_POLLS":      "4",
		"VEO_MAX_POLLS":        "2",
		"ALLOWED_ORIGINS":      "https://a.example, ,https://b.example",
		"PROVIDER_RETRIES":     "0",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MedGemmaMock {
		t.Fatalf("expected mock override")
	}
	if cfg.Gemini.APIKey != "legacy-key" {
		t.Fatalf("expected legacy key fallback got %q", cfg.Gemini.APIKey)
	}
	if cfg.Video.PollInterval != 250*time.Millisecond || cfg.Video.MaxPolls != 4 {
		t.Fatalf("unexpected video budget %s x %d", cfg.Video.PollInterval, cfg.Video.MaxPolls)
	}
	if cfg.Veo.MaxPolls != 2 {
		t.Fatalf("expected veo override got %d", cfg.Veo.MaxPolls)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("expected blank origins dropped got %v", cfg.AllowedOrigins)
	}
	if cfg.Resilience.ProviderRetries != 0 {
		t.Fatalf("expected retries 0 got %d", cfg.Resilience.ProviderRetries)
	}

	snap := cfg.Redacted()
	if snap.MockMode {
		t.Fatalf("snapshot should report mock off")
	}
	found := false
	for _, name := range snap.Providers {
		if name == "gemini" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected gemini in configured providers %v", snap.Providers)
	}
}

func TestLoadFromRejectsUnknownBackend(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"unknown backend", map[string]string{"ARTIFACT_BACKEND": "ftp"}},
		{"s3 without bucket", map[string]string{"ARTIFACT_BACKEND": "s3"}},
		{"bad duration", map[string]string{"VIDEO_POLL_INTERVAL": "soon"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadFrom(tc.values); err == nil {
				t.Fatalf("expected error for %v", tc.values)
			}
		})
	}
}

func TestOffline(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"MEDGEMMA_MOCK":            "false",
		"EMERGENCY_MOCK":           "true",
		"VIDEO_GENERATION_ENABLED": "true",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cases := []struct {
		domain ai.Domain
		want   bool
	}{
		{ai.DomainDiagnosis, false},
		{ai.DomainExplain, true},
		{ai.DomainVideoNarration, true},
		{ai.DomainMentor, false},
		{ai.DomainEmergency, true},
		{ai.DomainImageAnalysis, true},
		{ai.DomainKeyframe, true},
		{ai.DomainVideo, false},
		{ai.Domain("unknown"), true},
	}
	for _, tc := range cases {
		t.Run(string(tc.domain), func(t *testing.T) {
			if got := cfg.Offline(tc.domain); got != tc.want {
				t.Fatalf("Offline(%s) = %v want %v", tc.domain, got, tc.want)
			}
		})
	}
	if got := len(cfg.OfflineDomains()); got != 10 {
		t.Fatalf("expected 10 domains got %d", got)
	}
}

func TestAuditCanBeSwitchedOff(t *testing.T) {
	for _, value := range []string{"off", "None", " disabled "} {
		cfg, err := LoadFrom(map[string]string{"AUDIT_DB_PATH": value})
		if err != nil {
			t.Fatalf("load %q: %v", value, err)
		}
		if cfg.AuditDBPath != "" || cfg.Redacted().AuditEnabled {
			t.Fatalf("expected audit disabled for %q, got %q", value, cfg.AuditDBPath)
		}
	}
}
