package cascade

import "time"

// EventType marks a step of a resolution.
type EventType string

const (
	EventAttempt  EventType = "attempt"
	EventFailure  EventType = "failure"
	EventPending  EventType = "pending"
	EventPoll     EventType = "poll"
	EventSuccess  EventType = "success"
	EventFallback EventType = "fallback"
)

// Event is emitted to the observer as a resolution progresses.
type Event struct {
	Type       EventType `json:"type"`
	RequestID  string    `json:"request_id,omitempty"`
	Capability string    `json:"capability"`
	Domain     string    `json:"domain"`
	Provider   string    `json:"provider,omitempty"`
	Poll       int       `json:"poll,omitempty"`
	MaxPolls   int       `json:"max_polls,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Observer receives resolution progress. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
