package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Resolution is one audited cascade run.
type Resolution struct {
	ID           uint   `gorm:"primaryKey"`
	RequestID    string `gorm:"size:64;index"`
	Domain       string `gorm:"size:32;index"`
	Capability   string `gorm:"size:32"`
	Provenance   string `gorm:"size:64;index"`
	Cached       bool
	ElapsedMs    int64
	AttemptsJSON string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
}

// AttemptSummary is the stored form of a single provider attempt.
type AttemptSummary struct {
	Provider string `json:"provider"`
	Outcome  string `json:"outcome"`
	Polls    int    `json:"polls,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SetAttempts persists the attempt list as JSON.
func (r *Resolution) SetAttempts(attempts []AttemptSummary) {
	if attempts == nil {
		r.AttemptsJSON = "[]"
		return
	}
	payload, _ := json.Marshal(attempts)
	r.AttemptsJSON = string(payload)
}

// Attempts returns the decoded attempt list.
func (r *Resolution) Attempts() []AttemptSummary {
	if strings.TrimSpace(r.AttemptsJSON) == "" {
		return nil
	}
	var out []AttemptSummary
	if err := json.Unmarshal([]byte(r.AttemptsJSON), &out); err != nil {
		return nil
	}
	return out
}

// StoredArtifact indexes a generated media file.
type StoredArtifact struct {
	ID        uint      `gorm:"primaryKey"`
	RequestID string    `gorm:"size:64;index"`
	Procedure string    `gorm:"size:64;index"`
	Provider  string    `gorm:"size:64"`
	Location  string    `gorm:"size:512;uniqueIndex"`
	MIMEType  string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// ProvenanceCount is an aggregate row of resolutions per domain and source.
type ProvenanceCount struct {
	Domain     string `json:"domain"`
	Provenance string `json:"provenance"`
	Total      int64  `json:"total"`
}
