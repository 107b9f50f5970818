package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ReplicateConfig configures the secondary hosted video model.
type ReplicateConfig struct {
	APIToken     string
	BaseURL      string
	ModelVersion string
	Timeout      time.Duration
	Retry        RetryPolicy
	RPS          float64
	Sink         ArtifactSink
}

// Replicate runs a hosted text/image-to-video model through the predictions
// API.
type Replicate struct {
	client  *resty.Client
	token   string
	version string
	sink    ArtifactSink
	retry   RetryPolicy
	limiter *rate.Limiter
}

// NewReplicate constructs the adapter.
func NewReplicate(cfg ReplicateConfig) *Replicate {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.replicate.com/v1"
	}
	return &Replicate{
		client:  newRestyClient(cfg.BaseURL, cfg.Timeout),
		token:   strings.TrimSpace(cfg.APIToken),
		version: strings.TrimSpace(cfg.ModelVersion),
		sink:    cfg.Sink,
		retry:   cfg.Retry,
		limiter: newLimiter(cfg.RPS),
	}
}

func (r *Replicate) Name() string { return "replicate" }

func (r *Replicate) Capability() Capability { return CapabilityVideo }

func (r *Replicate) Configured() bool {
	return r != nil && r.token != "" && r.version != "" && r.sink != nil
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// outputURL accepts both a single URL and a list of URLs.
func (p replicatePrediction) outputURL() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[len(many)-1]
	}
	return ""
}

// Attempt creates a prediction.
func (r *Replicate) Attempt(ctx context.Context, req Request) Result {
	if !r.Configured() {
		return Failure(ErrNotConfigured)
	}
	if err := waitTurn(ctx, r.limiter); err != nil {
		return Failure(err)
	}

	input := map[string]any{"prompt": req.UserContent()}
	if seconds := int(req.Duration() / time.Second); seconds > 0 {
		input["duration"] = seconds
	}
	for _, ref := range req.References() {
		if len(ref.Data) > 0 && strings.HasPrefix(ref.MIMEType, "image/") {
			input["image"] = "data:" + ref.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(ref.Data)
			break
		}
	}

	var created replicatePrediction
	err := r.retry.Do(ctx, func() error {
		resp, err := r.client.R().
			SetContext(ctx).
			SetAuthToken(r.token).
			SetBody(map[string]any{"version": r.version, "input": input}).
			Post("/predictions")
		return callJSON(r.Name(), resp, err, &created)
	})
	if err != nil {
		return Failure(err)
	}
	if created.ID == "" {
		return Failure(fmt.Errorf("%w: replicate returned no prediction id", ErrMalformed))
	}
	handle := created.URLs.Get
	if handle == "" {
		handle = "/predictions/" + created.ID
	}
	return Accepted(PendingOperation{
		ID:        created.ID,
		Handle:    handle,
		Provider:  r.Name(),
		Procedure: req.Procedure(),
	})
}

// Poll reads the prediction once and stores the output when it succeeded.
func (r *Replicate) Poll(ctx context.Context, op PendingOperation) PollResult {
	resp, err := r.client.R().SetContext(ctx).SetAuthToken(r.token).Get(op.Handle)
	var prediction replicatePrediction
	if err := callJSON(r.Name(), resp, err, &prediction); err != nil {
		return PollFailed(err)
	}

	switch prediction.Status {
	case "succeeded":
		artifact, err := persist(ctx, r.Name(), r.client, r.sink, prediction.outputURL(), op.Procedure, nil)
		if err != nil {
			return PollFailed(err)
		}
		return Completed(artifact)
	case "failed", "canceled":
		return PollFailed(fmt.Errorf("%w: replicate %s: %v", ErrJobFailed, prediction.Status, prediction.Error))
	default:
		return StillPending()
	}
}
