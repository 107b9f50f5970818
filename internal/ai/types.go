package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Capability is a class of AI-backed operation.
type Capability string

const (
	CapabilityText  Capability = "text-completion"
	CapabilityImage Capability = "image-generation"
	CapabilityVideo Capability = "video-generation"
)

// Domain names the feature a request belongs to. Offline switches, fallback
// content and provider ordering are all keyed by domain.
type Domain string

const (
	DomainDiagnosis        Domain = "diagnosis"
	DomainExplain          Domain = "explain"
	DomainMentor           Domain = "mentor"
	DomainEmergency        Domain = "emergency"
	DomainImageAnalysis    Domain = "image-analysis"
	DomainTechnique        Domain = "technique"
	DomainVideoDescription Domain = "video-description"
	DomainVideoNarration   Domain = "video-narration"
	DomainKeyframe         Domain = "keyframe"
	DomainVideo            Domain = "video"
)

var (
	ErrNotConfigured = errors.New("provider not configured")
	ErrMalformed     = errors.New("malformed provider response")
	ErrEmptyArtifact = errors.New("provider returned an empty artifact")
	ErrJobFailed     = errors.New("provider job failed")
	ErrPollTimeout   = errors.New("provider job did not complete before the poll ceiling")
)

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.Code, body)
}

// Temporary reports whether the call is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

// Artifact is the product of a capability: text, image bytes or a stored
// media location. Fallback video content is a frame sequence.
type Artifact struct {
	Capability Capability `json:"capability"`
	Text       string     `json:"text,omitempty"`
	Data       []byte     `json:"-"`
	MIMEType   string     `json:"mime_type,omitempty"`
	Location   string     `json:"location,omitempty"`
	Frames     []string   `json:"frames,omitempty"`
}

// Empty reports whether the artifact carries no content at all.
func (a Artifact) Empty() bool {
	return strings.TrimSpace(a.Text) == "" && len(a.Data) == 0 && a.Location == "" && len(a.Frames) == 0
}

// PendingOperation tracks an accepted asynchronous job. Adapters fill ID and
// Handle; the cascade stamps the timing fields and owns the value until the
// poll loop ends.
type PendingOperation struct {
	ID          string
	Handle      string
	Provider    string
	Procedure   string
	SubmittedAt time.Time
	Interval    time.Duration
	Deadline    time.Time
}

// Result is the outcome of one Attempt: exactly one of success, failure or
// accepted-and-pending.
type Result struct {
	Artifact Artifact
	Pending  *PendingOperation
	Err      error
}

func Success(artifact Artifact) Result { return Result{Artifact: artifact} }

func Failure(err error) Result {
	if err == nil {
		err = errors.New("unknown provider failure")
	}
	return Result{Err: err}
}

func Accepted(op PendingOperation) Result { return Result{Pending: &op} }

// Failed reports whether the attempt failed.
func (r Result) Failed() bool { return r.Err != nil }

// IsPending reports whether the attempt produced an asynchronous job.
func (r Result) IsPending() bool { return r.Err == nil && r.Pending != nil }

// PollResult is the answer to one status query of a pending job.
type PollResult struct {
	Done     bool
	Artifact Artifact
	Err      error
}

func StillPending() PollResult { return PollResult{} }

func Completed(artifact Artifact) PollResult {
	return PollResult{Done: true, Artifact: artifact}
}

func PollFailed(err error) PollResult { return PollResult{Done: true, Err: err} }

// Provider wraps a single external model behind a uniform attempt contract.
// Attempt must never panic on provider errors; every failure is a Result.
type Provider interface {
	Name() string
	Capability() Capability
	Configured() bool
	Attempt(ctx context.Context, req Request) Result
}

// Poller is implemented by asynchronous providers.
type Poller interface {
	Poll(ctx context.Context, op PendingOperation) PollResult
}

// Float64 returns a pointer to v, for optional adapter settings.
func Float64(v float64) *float64 { return &v }
