package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// VeoConfig configures the primary video provider.
type VeoConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	AspectRatio string
	Timeout     time.Duration
	Retry       RetryPolicy
	RPS         float64
	Sink        ArtifactSink
}

// Veo generates video through Gemini's long-running predict operations and
// stores the finished file in the artifact sink.
type Veo struct {
	client      *resty.Client
	apiKey      string
	model       string
	aspectRatio string
	sink        ArtifactSink
	retry       RetryPolicy
	limiter     *rate.Limiter
}

const (
	veoMinSeconds = 5
	veoMaxSeconds = 8
)

// NewVeo constructs the adapter.
func NewVeo(cfg VeoConfig) *Veo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "veo-2.0-generate-001"
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "16:9"
	}
	return &Veo{
		client:      newRestyClient(cfg.BaseURL, cfg.Timeout),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		aspectRatio: cfg.AspectRatio,
		sink:        cfg.Sink,
		retry:       cfg.Retry,
		limiter:     newLimiter(cfg.RPS),
	}
}

func (v *Veo) Name() string { return "veo" }

func (v *Veo) Capability() Capability { return CapabilityVideo }

func (v *Veo) Configured() bool { return v != nil && v.apiKey != "" && v.sink != nil }

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType"`
}

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	SampleCount     int    `json:"sampleCount"`
}

type veoPredictRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// Attempt starts a long-running video prediction. The first image reference,
// if any, conditions the video.
func (v *Veo) Attempt(ctx context.Context, req Request) Result {
	if !v.Configured() {
		return Failure(ErrNotConfigured)
	}
	if err := waitTurn(ctx, v.limiter); err != nil {
		return Failure(err)
	}

	instance := veoInstance{Prompt: req.UserContent()}
	for _, ref := range req.References() {
		if len(ref.Data) > 0 && strings.HasPrefix(ref.MIMEType, "image/") {
			instance.Image = &veoImage{
				BytesBase64Encoded: base64.StdEncoding.EncodeToString(ref.Data),
				MIMEType:           ref.MIMEType,
			}
			break
		}
	}
	body := veoPredictRequest{
		Instances: []veoInstance{instance},
		Parameters: veoParameters{
			AspectRatio:     v.aspectRatio,
			DurationSeconds: veoSeconds(req.Duration()),
			SampleCount:     1,
		},
	}

	var op veoOperation
	err := v.retry.Do(ctx, func() error {
		resp, err := v.client.R().
			SetContext(ctx).
			SetHeader("x-goog-api-key", v.apiKey).
			SetBody(body).
			Post(fmt.Sprintf("/models/%s:predictLongRunning", v.model))
		return callJSON(v.Name(), resp, err, &op)
	})
	if err != nil {
		return Failure(err)
	}
	if op.Name == "" {
		return Failure(fmt.Errorf("%w: veo returned no operation name", ErrMalformed))
	}
	return Accepted(PendingOperation{
		ID:        op.Name,
		Handle:    "/" + strings.TrimPrefix(op.Name, "/"),
		Provider:  v.Name(),
		Procedure: req.Procedure(),
	})
}

// Poll fetches the operation once and stores the video when it is done.
func (v *Veo) Poll(ctx context.Context, op PendingOperation) PollResult {
	resp, err := v.client.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", v.apiKey).
		Get(op.Handle)
	var status veoOperation
	if err := callJSON(v.Name(), resp, err, &status); err != nil {
		return PollFailed(err)
	}
	if !status.Done {
		return StillPending()
	}
	if status.Error != nil {
		return PollFailed(fmt.Errorf("%w: veo %d %s", ErrJobFailed, status.Error.Code, status.Error.Message))
	}
	if status.Response == nil || len(status.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		reasons := ""
		if status.Response != nil {
			reasons = strings.Join(status.Response.GenerateVideoResponse.RAIMediaFilteredReasons, "; ")
		}
		return PollFailed(fmt.Errorf("%w: veo produced no samples %s", ErrJobFailed, reasons))
	}

	uri := status.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI
	artifact, err := persist(ctx, v.Name(), v.client, v.sink, uri, op.Procedure, map[string]string{"x-goog-api-key": v.apiKey})
	if err != nil {
		return PollFailed(err)
	}
	return Completed(artifact)
}

func veoSeconds(d time.Duration) int {
	seconds := int(d / time.Second)
	if seconds < veoMinSeconds {
		return veoMinSeconds
	}
	if seconds > veoMaxSeconds {
		return veoMaxSeconds
	}
	return seconds
}
