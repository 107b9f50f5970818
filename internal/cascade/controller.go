package cascade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
)

// ProvenanceFallback tags artifacts that came from fallback content.
const ProvenanceFallback = "fallback"

const (
	defaultPollInterval = 10 * time.Second
	defaultMaxPolls     = 30
)

// Outcome values recorded per attempt.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// ErrProviderPanic marks an attempt whose provider, poller or decoder
// panicked. The cascade treats it as an ordinary failure.
var ErrProviderPanic = errors.New("provider panicked")

// FallbackSource supplies the terminal artifact for a request. It must be
// total and never return an empty artifact.
type FallbackSource interface {
	Fallback(req ai.Request) ai.Artifact
}

// FallbackFunc adapts a function to FallbackSource.
type FallbackFunc func(ai.Request) ai.Artifact

func (f FallbackFunc) Fallback(req ai.Request) ai.Artifact { return f(req) }

// AttemptRecord is the audit trail of one provider in a resolution.
type AttemptRecord struct {
	Provider string        `json:"provider"`
	Outcome  string        `json:"outcome"`
	Polls    int           `json:"polls,omitempty"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Resolution is the answer to a request: always an artifact, tagged with the
// provider that produced it or "fallback".
type Resolution struct {
	Artifact   ai.Artifact
	Provenance string
	Attempts   []AttemptRecord
	Elapsed    time.Duration
	Cached     bool
}

// Fallback reports whether the artifact came from fallback content.
func (r Resolution) Fallback() bool { return r.Provenance == ProvenanceFallback }

type pollBudget struct {
	interval time.Duration
	max      int
}

type cacheEntry struct {
	artifact   ai.Artifact
	provenance string
}

// Controller walks provider cascades. It holds no per-request state and is
// safe for concurrent use.
type Controller struct {
	registry *Registry
	fallback FallbackSource
	offline  func(ai.Domain) bool
	logger   logrus.FieldLogger
	observer Observer

	breakerFailures uint32
	breakerCooldown time.Duration
	breakers        map[string]*gobreaker.CircuitBreaker

	cacheSize int
	cache     *lru.Cache

	budgets map[ai.Capability]pollBudget
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithOffline installs the per-domain offline switch. Offline domains are
// answered from fallback content without touching any provider.
func WithOffline(offline func(ai.Domain) bool) Option {
	return func(c *Controller) { c.offline = offline }
}

// WithBreaker opens a provider's breaker after the given number of
// consecutive failures. Zero disables breaking.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(c *Controller) {
		c.breakerFailures = failures
		c.breakerCooldown = cooldown
	}
}

// WithTextCache keeps up to size successful text artifacts. Zero disables
// caching.
func WithTextCache(size int) Option {
	return func(c *Controller) { c.cacheSize = size }
}

// WithPollBudget sets the default polling budget for a capability.
func WithPollBudget(capability ai.Capability, interval time.Duration, maxPolls int) Option {
	return func(c *Controller) {
		c.budgets[capability] = pollBudget{interval: interval, max: maxPolls}
	}
}

// WithClock replaces time.Now and the poll sleep, for tests.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewController builds a controller over a complete registry.
func NewController(registry *Registry, fallback FallbackSource, opts ...Option) (*Controller, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	if fallback == nil {
		return nil, errors.New("cascade requires a fallback source")
	}
	c := &Controller{
		registry: registry,
		fallback: fallback,
		offline:  func(ai.Domain) bool { return false },
		logger:   logrus.StandardLogger(),
		observer: nopObserver{},
		budgets:  make(map[ai.Capability]pollBudget),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.offline == nil {
		c.offline = func(ai.Domain) bool { return false }
	}
	if c.breakerFailures > 0 {
		for _, name := range registry.Names() {
			c.breakers[name] = c.newBreaker(name)
		}
	}
	if c.cacheSize > 0 {
		cache, err := lru.New(c.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("text cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

func (c *Controller) newBreaker(name string) *gobreaker.CircuitBreaker {
	threshold := c.breakerFailures
	logger := c.logger
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: c.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// the caller giving up is not the provider's fault
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("provider breaker state changed")
		},
	})
}

// Resolve produces an artifact for the request. It never fails: when no
// provider succeeds the fallback source answers.
func (c *Controller) Resolve(ctx context.Context, req ai.Request) Resolution {
	start := c.now()
	log := c.logger.WithFields(logrus.Fields{
		"request_id": req.ID(),
		"capability": string(req.Capability()),
		"domain":     string(req.Domain()),
	})

	if c.offline(req.Domain()) {
		log.Debug("domain offline, serving fallback")
		return c.finishFallback(req, start, nil, "offline")
	}
	descriptors := c.registry.Lookup(req.Capability(), req.Domain())
	if len(descriptors) == 0 {
		log.Debug("no providers registered, serving fallback")
		return c.finishFallback(req, start, nil, "no providers registered")
	}

	key, cacheable := c.cacheKey(req)
	if cacheable {
		if v, ok := c.cache.Get(key); ok {
			entry := v.(cacheEntry)
			res := Resolution{Artifact: entry.artifact, Provenance: entry.provenance, Cached: true, Elapsed: c.now().Sub(start)}
			c.record(req, res)
			return res
		}
	}

	var attempts []AttemptRecord
	for _, d := range descriptors {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Info("resolution cancelled, serving fallback")
			return c.finishFallback(req, start, attempts, "cancelled")
		}
		if !d.Provider.Configured() {
			log.WithField("provider", d.Name).Debug("provider not configured, skipping")
			attempts = append(attempts, AttemptRecord{Provider: d.Name, Outcome: OutcomeSkipped})
			attemptsTotal.WithLabelValues(d.Name, string(d.Capability), OutcomeSkipped).Inc()
			continue
		}

		rec := AttemptRecord{Provider: d.Name}
		attemptStart := c.now()
		c.emit(req, Event{Type: EventAttempt, Provider: d.Name})
		artifact, err := c.run(ctx, req, d, &rec)
		rec.Elapsed = c.now().Sub(attemptStart)

		if err != nil {
			rec.Outcome = OutcomeFailure
			rec.Error = err.Error()
			attempts = append(attempts, rec)
			attemptsTotal.WithLabelValues(d.Name, string(d.Capability), OutcomeFailure).Inc()
			log.WithFields(logrus.Fields{
				"provider": d.Name,
				"reason":   err.Error(),
			}).Warn("provider attempt failed")
			c.emit(req, Event{Type: EventFailure, Provider: d.Name, Reason: err.Error()})
			continue
		}

		rec.Outcome = OutcomeSuccess
		attempts = append(attempts, rec)
		attemptsTotal.WithLabelValues(d.Name, string(d.Capability), OutcomeSuccess).Inc()
		if cacheable {
			c.cache.Add(key, cacheEntry{artifact: artifact, provenance: d.Name})
		}
		c.emit(req, Event{Type: EventSuccess, Provider: d.Name})
		res := Resolution{Artifact: artifact, Provenance: d.Name, Attempts: attempts, Elapsed: c.now().Sub(start)}
		c.record(req, res)
		log.WithFields(logrus.Fields{
			"provider":   d.Name,
			"elapsed_ms": res.Elapsed.Milliseconds(),
		}).Info("resolved by provider")
		return res
	}

	log.WithField("attempts", len(attempts)).Info("providers exhausted, serving fallback")
	return c.finishFallback(req, start, attempts, "providers exhausted")
}

func (c *Controller) finishFallback(req ai.Request, start time.Time, attempts []AttemptRecord, reason string) Resolution {
	artifact := c.fallback.Fallback(req)
	if artifact.Capability == "" {
		artifact.Capability = req.Capability()
	}
	c.emit(req, Event{Type: EventFallback, Reason: reason})
	res := Resolution{
		Artifact:   artifact,
		Provenance: ProvenanceFallback,
		Attempts:   attempts,
		Elapsed:    c.now().Sub(start),
	}
	c.record(req, res)
	return res
}

func (c *Controller) record(req ai.Request, res Resolution) {
	resolutionsTotal.WithLabelValues(string(req.Capability()), string(req.Domain()), res.Provenance, strconv.FormatBool(res.Cached)).Inc()
	resolveDuration.WithLabelValues(string(req.Capability())).Observe(res.Elapsed.Seconds())
}

func (c *Controller) emit(req ai.Request, e Event) {
	e.RequestID = req.ID()
	e.Capability = string(req.Capability())
	e.Domain = string(req.Domain())
	e.Timestamp = c.now().UTC()
	c.observer.Observe(e)
}

// run executes one descriptor, through its breaker when one is configured.
func (c *Controller) run(ctx context.Context, req ai.Request, d Descriptor, rec *AttemptRecord) (ai.Artifact, error) {
	breaker, ok := c.breakers[d.Name]
	if !ok {
		return c.attempt(ctx, req, d, rec)
	}
	out, err := breaker.Execute(func() (interface{}, error) {
		artifact, err := c.attempt(ctx, req, d, rec)
		return artifact, err
	})
	if err != nil {
		return ai.Artifact{}, err
	}
	return out.(ai.Artifact), nil
}

func (c *Controller) attempt(ctx context.Context, req ai.Request, d Descriptor, rec *AttemptRecord) (artifact ai.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			artifact = ai.Artifact{}
			err = fmt.Errorf("%w: %s (%s): %v", ErrProviderPanic, d.Name, d.Capability, r)
		}
	}()

	result := d.Provider.Attempt(ctx, req)
	switch {
	case result.Failed():
		return ai.Artifact{}, result.Err
	case result.IsPending():
		if !d.Async {
			return ai.Artifact{}, fmt.Errorf("%s returned a pending job but cannot be polled", d.Name)
		}
		return c.poll(ctx, req, d, *result.Pending, rec)
	}
	if result.Artifact.Empty() {
		return ai.Artifact{}, ai.ErrEmptyArtifact
	}
	return result.Artifact, nil
}

func (c *Controller) budget(d Descriptor) pollBudget {
	b, ok := c.budgets[d.Capability]
	if !ok {
		b = pollBudget{interval: defaultPollInterval, max: defaultMaxPolls}
	}
	if d.PollInterval > 0 {
		b.interval = d.PollInterval
	}
	if d.MaxPolls > 0 {
		b.max = d.MaxPolls
	}
	return b
}

// poll sleeps one interval before every status query and gives up after the
// poll ceiling, so a job that never finishes costs ceiling x interval.
func (c *Controller) poll(ctx context.Context, req ai.Request, d Descriptor, op ai.PendingOperation, rec *AttemptRecord) (ai.Artifact, error) {
	poller := d.Provider.(ai.Poller)
	b := c.budget(d)

	op.Provider = d.Name
	op.SubmittedAt = c.now()
	op.Interval = b.interval
	op.Deadline = op.SubmittedAt.Add(time.Duration(b.max) * b.interval)
	c.emit(req, Event{Type: EventPending, Provider: d.Name, MaxPolls: b.max})

	for i := 1; i <= b.max; i++ {
		if err := c.sleep(ctx, b.interval); err != nil {
			return ai.Artifact{}, err
		}
		rec.Polls = i
		pollsTotal.WithLabelValues(d.Name).Inc()
		c.emit(req, Event{Type: EventPoll, Provider: d.Name, Poll: i, MaxPolls: b.max})

		status := poller.Poll(ctx, op)
		if !status.Done {
			continue
		}
		if status.Err != nil {
			return ai.Artifact{}, status.Err
		}
		if status.Artifact.Empty() {
			return ai.Artifact{}, ai.ErrEmptyArtifact
		}
		return status.Artifact, nil
	}
	return ai.Artifact{}, fmt.Errorf("%w: %d polls every %s", ai.ErrPollTimeout, b.max, b.interval)
}

// cacheKey identifies a text request by everything a provider sees. Requests
// carrying reference media are never cached.
func (c *Controller) cacheKey(req ai.Request) (string, bool) {
	if c.cache == nil || req.Capability() != ai.CapabilityText || req.HasReferences() {
		return "", false
	}
	h := sha256.New()
	for _, part := range []string{string(req.Domain()), req.System(), req.UserContent(), req.FallbackKey()} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
