package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
)

// Config is the process-wide configuration. It is built once at start-up and
// passed to every component that needs it.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"text"`
	AuditDBPath    string   `env:"AUDIT_DB_PATH" envDefault:"data/cardiosim.db"`
	SilentDB       bool     `env:"AUDIT_DB_SILENT" envDefault:"true"`

	MedGemmaMock           bool `env:"MEDGEMMA_MOCK" envDefault:"true"`
	GeminiMock             bool `env:"GEMINI_MOCK" envDefault:"true"`
	MentorMock             bool `env:"MENTOR_MOCK" envDefault:"false"`
	EmergencyMock          bool `env:"EMERGENCY_MOCK" envDefault:"false"`
	ImageGenerationEnabled bool `env:"IMAGE_GENERATION_ENABLED" envDefault:"false"`
	VideoGenerationEnabled bool `env:"VIDEO_GENERATION_ENABLED" envDefault:"false"`

	Gemini    GeminiConfig    `envPrefix:"GEMINI_"`
	OpenAI    OpenAIConfig    `envPrefix:"OPENAI_"`
	MedGemma  MedGemmaConfig  `envPrefix:"MEDGEMMA_"`
	Flux      FluxConfig      `envPrefix:"FLUX_"`
	Veo       VeoConfig       `envPrefix:"VEO_"`
	Replicate ReplicateConfig `envPrefix:"REPLICATE_"`

	// GenAIKey is the legacy name for the Gemini credential.
	GenAIKey string `env:"GOOGLE_GENAI_API_KEY"`

	Video      PollConfig `envPrefix:"VIDEO_"`
	Image      PollConfig `envPrefix:"IMAGE_"`
	Resilience ResilienceConfig
	Artifacts  ArtifactConfig `envPrefix:"ARTIFACT_"`
}

// GeminiConfig configures the Gemini generateContent adapter.
type GeminiConfig struct {
	APIKey      string        `env:"API_KEY"`
	Model       string        `env:"MODEL" envDefault:"gemini-1.5-flash"`
	BaseURL     string        `env:"BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	Temperature float64       `env:"TEMPERATURE" envDefault:"0.4"`
	MaxTokens   int           `env:"MAX_TOKENS" envDefault:"1024"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// OpenAIConfig configures the OpenAI chat adapter.
type OpenAIConfig struct {
	APIKey      string        `env:"API_KEY"`
	Model       string        `env:"MODEL" envDefault:"gpt-4.1-mini"`
	BaseURL     string        `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	Temperature float64       `env:"TEMPERATURE" envDefault:"0.2"`
	MaxTokens   int           `env:"MAX_TOKENS" envDefault:"1024"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// MedGemmaConfig points at an OpenAI-compatible server hosting the MedGemma model.
type MedGemmaConfig struct {
	APIKey       string        `env:"API_KEY"`
	BaseURL      string        `env:"BASE_URL"`
	ModelID      string        `env:"MODEL_ID" envDefault:"google/medgemma-4b-it"`
	Quantization string        `env:"QUANTIZATION" envDefault:"4-bit NF4"`
	MaxTokens    int           `env:"MAX_TOKENS" envDefault:"512"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// FluxConfig configures the asynchronous image generation adapter.
type FluxConfig struct {
	APIKey       string        `env:"API_KEY"`
	BaseURL      string        `env:"BASE_URL" envDefault:"https://api.bfl.ml/v1"`
	Model        string        `env:"MODEL" envDefault:"flux-pro-1.1"`
	Steps        int           `env:"STEPS" envDefault:"28"`
	Guidance     float64       `env:"GUIDANCE" envDefault:"3"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"30s"`
	PollInterval time.Duration `env:"POLL_INTERVAL"`
	MaxPolls     int           `env:"MAX_POLLS"`
}

// VeoConfig configures the primary video adapter. It shares the Gemini key.
type VeoConfig struct {
	Model        string        `env:"MODEL" envDefault:"veo-2.0-generate-001"`
	AspectRatio  string        `env:"ASPECT_RATIO" envDefault:"16:9"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"60s"`
	PollInterval time.Duration `env:"POLL_INTERVAL"`
	MaxPolls     int           `env:"MAX_POLLS"`
}

// ReplicateConfig configures the secondary hosted video model.
type ReplicateConfig struct {
	APIToken     string        `env:"API_TOKEN"`
	BaseURL      string        `env:"BASE_URL" envDefault:"https://api.replicate.com/v1"`
	ModelVersion string        `env:"MODEL_VERSION"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"60s"`
	PollInterval time.Duration `env:"POLL_INTERVAL"`
	MaxPolls     int           `env:"MAX_POLLS"`
}

// PollConfig is the default polling budget for one asynchronous capability.
// Zero values are replaced by per-capability defaults.
type PollConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL"`
	MaxPolls     int           `env:"MAX_POLLS"`
}

// ResilienceConfig tunes retries, breakers, rate limits and caching of provider calls.
type ResilienceConfig struct {
	ProviderRetries int           `env:"PROVIDER_RETRIES" envDefault:"2"`
	RetryBackoff    time.Duration `env:"PROVIDER_RETRY_BACKOFF" envDefault:"500ms"`
	BreakerFailures uint32        `env:"BREAKER_FAILURES" envDefault:"0"`
	BreakerCooldown time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
	ProviderRPS     float64       `env:"PROVIDER_RPS" envDefault:"0"`
	TextCacheSize   int           `env:"TEXT_CACHE_SIZE" envDefault:"0"`
}

// ArtifactConfig selects where generated media is written.
type ArtifactConfig struct {
	Backend     string `env:"BACKEND" envDefault:"local"`
	Dir         string `env:"DIR" envDefault:"data/artifacts"`
	PublicPath  string `env:"PUBLIC_PATH" envDefault:"/api/video-generation/files"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Prefix    string `env:"S3_PREFIX" envDefault:"cardiosim/"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3PathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
}

var errInvalidBackend = errors.New("artifact backend must be local or s3")

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg.normalize()
}

// LoadFrom builds a Config from an explicit key/value map instead of the
// process environment.
func LoadFrom(values map[string]string) (*Config, error) {
	if values == nil {
		values = map[string]string{}
	}
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: values}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg.normalize()
}

func (c *Config) normalize() (*Config, error) {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = strings.TrimSpace(c.GenAIKey)
	}
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	c.MedGemma.APIKey = strings.TrimSpace(c.MedGemma.APIKey)
	c.Flux.APIKey = strings.TrimSpace(c.Flux.APIKey)
	c.Replicate.APIToken = strings.TrimSpace(c.Replicate.APIToken)

	origins := c.AllowedOrigins[:0]
	for _, origin := range c.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.AllowedOrigins = origins

	c.AuditDBPath = strings.TrimSpace(c.AuditDBPath)
	switch strings.ToLower(c.AuditDBPath) {
	case "off", "none", "disabled":
		c.AuditDBPath = ""
	}

	c.Artifacts.Backend = strings.ToLower(strings.TrimSpace(c.Artifacts.Backend))
	switch c.Artifacts.Backend {
	case "", "local":
		c.Artifacts.Backend = "local"
	case "s3":
		if strings.TrimSpace(c.Artifacts.S3Bucket) == "" {
			return nil, errors.New("ARTIFACT_S3_BUCKET is required for the s3 artifact backend")
		}
	default:
		return nil, fmt.Errorf("%w: %q", errInvalidBackend, c.Artifacts.Backend)
	}

	if c.Video.MaxPolls <= 0 {
		c.Video.MaxPolls = 30
	}
	if c.Video.PollInterval <= 0 {
		c.Video.PollInterval = 10 * time.Second
	}
	if c.Image.MaxPolls <= 0 {
		c.Image.MaxPolls = 30
	}
	if c.Image.PollInterval <= 0 {
		c.Image.PollInterval = 2 * time.Second
	}
	return c, nil
}

// Snapshot is a secret-free view of the configuration for diagnostics.
type Snapshot struct {
	MockMode               bool     `json:"mock_mode"`
	GeminiMock             bool     `json:"gemini_mock"`
	MentorMock             bool     `json:"mentor_mock"`
	EmergencyMock          bool     `json:"emergency_mock"`
	ImageGenerationEnabled bool     `json:"image_generation_enabled"`
	VideoGenerationEnabled bool     `json:"video_generation_enabled"`
	ModelID                string   `json:"model_id"`
	GeminiModel            string   `json:"gemini_model"`
	Providers              []string `json:"configured_providers"`
	VideoPollInterval      string   `json:"video_poll_interval"`
	VideoMaxPolls          int      `json:"video_max_polls"`
	ImagePollInterval      string   `json:"image_poll_interval"`
	ImageMaxPolls          int      `json:"image_max_polls"`
	ArtifactBackend        string   `json:"artifact_backend"`
	AuditEnabled           bool     `json:"audit_enabled"`
}

// Redacted returns a snapshot with credentials reduced to provider names.
func (c *Config) Redacted() Snapshot {
	return Snapshot{
		MockMode:               c.MedGemmaMock,
		GeminiMock:             c.GeminiMock,
		MentorMock:             c.MentorMock,
		EmergencyMock:          c.EmergencyMock,
		ImageGenerationEnabled: c.ImageGenerationEnabled,
		VideoGenerationEnabled: c.VideoGenerationEnabled,
		ModelID:                c.MedGemma.ModelID,
		GeminiModel:            c.Gemini.Model,
		Providers:              c.ConfiguredProviders(),
		VideoPollInterval:      c.Video.PollInterval.String(),
		VideoMaxPolls:          c.Video.MaxPolls,
		ImagePollInterval:      c.Image.PollInterval.String(),
		ImageMaxPolls:          c.Image.MaxPolls,
		ArtifactBackend:        c.Artifacts.Backend,
		AuditEnabled:           strings.TrimSpace(c.AuditDBPath) != "",
	}
}

// ConfiguredProviders lists the providers whose credentials are present.
func (c *Config) ConfiguredProviders() []string {
	var out []string
	if c.MedGemma.BaseURL != "" {
		out = append(out, "medgemma")
	}
	if c.Gemini.APIKey != "" {
		out = append(out, "gemini", "veo")
	}
	if c.OpenAI.APIKey != "" {
		out = append(out, "openai")
	}
	if c.Flux.APIKey != "" {
		out = append(out, "flux")
	}
	if c.Replicate.APIToken != "" && c.Replicate.ModelVersion != "" {
		out = append(out, "replicate")
	}
	return out
}

// Offline reports whether requests in a domain must be answered from fallback
// content without contacting any provider.
func (c *Config) Offline(domain ai.Domain) bool {
	switch domain {
	case ai.DomainDiagnosis:
		return c.MedGemmaMock
	case ai.DomainExplain, ai.DomainTechnique, ai.DomainVideoDescription, ai.DomainVideoNarration:
		return c.GeminiMock
	case ai.DomainMentor:
		return c.MentorMock
	case ai.DomainEmergency, ai.DomainImageAnalysis:
		return c.EmergencyMock
	case ai.DomainKeyframe:
		return !c.ImageGenerationEnabled
	case ai.DomainVideo:
		return !c.VideoGenerationEnabled
	default:
		return true
	}
}

// OfflineDomains returns the offline switch for every known domain.
func (c *Config) OfflineDomains() map[ai.Domain]bool {
	domains := []ai.Domain{
		ai.DomainDiagnosis, ai.DomainExplain, ai.DomainMentor, ai.DomainEmergency,
		ai.DomainImageAnalysis, ai.DomainTechnique, ai.DomainVideoDescription,
		ai.DomainVideoNarration, ai.DomainKeyframe, ai.DomainVideo,
	}
	out := make(map[ai.Domain]bool, len(domains))
	for _, d := range domains {
		out[d] = c.Offline(d)
	}
	return out
}
