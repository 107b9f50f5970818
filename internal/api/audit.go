package api

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/cascade"
	"github.com/Ariya-rithvik/cardiosim-ai/internal/store"
)

const auditQueueSize = 512

type auditEntry struct {
	resolution store.Resolution
	artifact   *store.StoredArtifact
}

// auditRecorder writes resolutions to the audit database off the request
// path. A nil recorder is valid and records nothing.
type auditRecorder struct {
	db     *store.Database
	queue  chan auditEntry
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func newAuditRecorder(db *store.Database) *auditRecorder {
	if db == nil {
		return nil
	}
	a := &auditRecorder{db: db, queue: make(chan auditEntry, auditQueueSize)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *auditRecorder) run() {
	defer a.wg.Done()
	for entry := range a.queue {
		res := entry.resolution
		if err := a.db.SaveResolution(&res); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"request_id": res.RequestID,
				"domain":     res.Domain,
			}).Warn("audit resolution")
		}
		if entry.artifact != nil {
			if err := a.db.SaveArtifact(entry.artifact); err != nil {
				logrus.WithError(err).WithField("location", entry.artifact.Location).Warn("audit artifact")
			}
		}
	}
}

// Record queues one resolution. Entries are dropped when the queue is full.
func (a *auditRecorder) Record(req ai.Request, res cascade.Resolution) {
	if a == nil {
		return
	}
	row := store.Resolution{
		RequestID:  req.ID(),
		Domain:     string(req.Domain()),
		Capability: string(req.Capability()),
		Provenance: res.Provenance,
		Cached:     res.Cached,
		ElapsedMs:  res.Elapsed.Milliseconds(),
	}
	summaries := make([]store.AttemptSummary, 0, len(res.Attempts))
	for _, attempt := range res.Attempts {
		summaries = append(summaries, store.AttemptSummary{
			Provider: attempt.Provider,
			Outcome:  attempt.Outcome,
			Polls:    attempt.Polls,
			Error:    attempt.Error,
		})
	}
	row.SetAttempts(summaries)

	entry := auditEntry{resolution: row}
	if !res.Fallback() && res.Artifact.Location != "" {
		entry.artifact = &store.StoredArtifact{
			RequestID: req.ID(),
			Procedure: req.Procedure(),
			Provider:  res.Provenance,
			Location:  res.Artifact.Location,
			MIMEType:  res.Artifact.MIMEType,
		}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- entry:
	default:
		logrus.WithField("request_id", req.ID()).Warn("audit queue full, dropping resolution")
	}
}

// Close drains pending entries.
func (a *auditRecorder) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}
