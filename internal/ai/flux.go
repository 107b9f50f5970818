package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// FluxConfig configures the asynchronous image provider.
type FluxConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Steps    int
	Guidance float64
	Timeout  time.Duration
	Retry    RetryPolicy
	RPS      float64
}

// Flux generates images through a submit / get_result job API.
type Flux struct {
	client   *resty.Client
	apiKey   string
	model    string
	steps    int
	guidance float64
	retry    RetryPolicy
	limiter  *rate.Limiter
}

// NewFlux constructs the adapter.
func NewFlux(cfg FluxConfig) *Flux {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.bfl.ml/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "flux-pro-1.1"
	}
	if cfg.Steps <= 0 {
		cfg.Steps = 28
	}
	if cfg.Guidance <= 0 {
		cfg.Guidance = 3
	}
	return &Flux{
		client:   newRestyClient(cfg.BaseURL, cfg.Timeout),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    cfg.Model,
		steps:    cfg.Steps,
		guidance: cfg.Guidance,
		retry:    cfg.Retry,
		limiter:  newLimiter(cfg.RPS),
	}
}

func (f *Flux) Name() string { return "flux" }

func (f *Flux) Capability() Capability { return CapabilityImage }

func (f *Flux) Configured() bool { return f != nil && f.apiKey != "" }

type fluxSubmitRequest struct {
	Prompt   string  `json:"prompt"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Steps    int     `json:"steps,omitempty"`
	Guidance float64 `json:"guidance,omitempty"`
}

type fluxSubmitResponse struct {
	ID         string `json:"id"`
	PollingURL string `json:"polling_url"`
}

type fluxResultResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result *struct {
		Sample string `json:"sample"`
	} `json:"result"`
}

// Attempt submits a generation job and hands back the pending operation.
func (f *Flux) Attempt(ctx context.Context, req Request) Result {
	if !f.Configured() {
		return Failure(ErrNotConfigured)
	}
	if err := waitTurn(ctx, f.limiter); err != nil {
		return Failure(err)
	}
	width, height := parseSize(req.Size(), 1024, 768)
	body := fluxSubmitRequest{
		Prompt:   req.UserContent(),
		Width:    width,
		Height:   height,
		Steps:    f.steps,
		Guidance: f.guidance,
	}

	var submitted fluxSubmitResponse
	err := f.retry.Do(ctx, func() error {
		resp, err := f.client.R().
			SetContext(ctx).
			SetHeader("x-key", f.apiKey).
			SetBody(body).
			Post("/" + f.model)
		return callJSON(f.Name(), resp, err, &submitted)
	})
	if err != nil {
		return Failure(err)
	}
	if submitted.ID == "" {
		return Failure(fmt.Errorf("%w: flux submit returned no id", ErrMalformed))
	}
	return Accepted(PendingOperation{
		ID:        submitted.ID,
		Handle:    submitted.PollingURL,
		Provider:  f.Name(),
		Procedure: req.Procedure(),
	})
}

// Poll checks the job once and downloads the image when it is ready.
func (f *Flux) Poll(ctx context.Context, op PendingOperation) PollResult {
	r := f.client.R().SetContext(ctx).SetHeader("x-key", f.apiKey)
	target := op.Handle
	if target == "" {
		target = "/get_result"
		r = r.SetQueryParam("id", op.ID)
	}
	resp, err := r.Get(target)
	var status fluxResultResponse
	if err := callJSON(f.Name(), resp, err, &status); err != nil {
		return PollFailed(err)
	}

	switch strings.ToLower(strings.TrimSpace(status.Status)) {
	case "ready":
		if status.Result == nil {
			return PollFailed(fmt.Errorf("%w: flux ready without result", ErrMalformed))
		}
		data, mime, err := download(ctx, f.Name(), f.client, status.Result.Sample, nil)
		if err != nil {
			return PollFailed(err)
		}
		return Completed(Artifact{Capability: CapabilityImage, Data: data, MIMEType: mime})
	case "pending", "queued", "processing", "":
		return StillPending()
	default:
		return PollFailed(fmt.Errorf("%w: flux status %q", ErrJobFailed, status.Status))
	}
}

// parseSize reads "WIDTHxHEIGHT", falling back to the defaults.
func parseSize(size string, defWidth, defHeight int) (int, int) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(size)), "x", 2)
	if len(parts) != 2 {
		return defWidth, defHeight
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return defWidth, defHeight
	}
	return w, h
}
