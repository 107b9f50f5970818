package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/cascade"
)

const notifierBuffer = 256

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// EventNotifier fans cascade events out to websocket clients. Observe never
// blocks the cascade: events are queued and dropped when the queue is full.
type EventNotifier struct {
	mu        sync.Mutex
	clients   map[*wsClient]struct{}
	lastEvent *cascade.Event

	events  chan cascade.Event
	done    chan struct{}
	once    sync.Once
	dropped int
}

// NewEventNotifier constructs a notifier and starts its delivery loop.
func NewEventNotifier() *EventNotifier {
	n := &EventNotifier{
		clients: make(map[*wsClient]struct{}),
		events:  make(chan cascade.Event, notifierBuffer),
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

// Observe implements cascade.Observer.
func (n *EventNotifier) Observe(event cascade.Event) {
	select {
	case <-n.done:
		return
	default:
	}
	select {
	case n.events <- event:
	default:
		n.mu.Lock()
		n.dropped++
		dropped := n.dropped
		n.mu.Unlock()
		if dropped%100 == 1 {
			logrus.WithField("dropped", dropped).Warn("event stream queue full")
		}
	}
}

func (n *EventNotifier) loop() {
	for {
		select {
		case <-n.done:
			return
		case event := <-n.events:
			n.Broadcast(event)
		}
	}
}

// Close stops delivery and disconnects every client.
func (n *EventNotifier) Close() {
	n.once.Do(func() {
		close(n.done)
		n.mu.Lock()
		for client := range n.clients {
			_ = client.conn.Close()
			delete(n.clients, client)
		}
		n.mu.Unlock()
	})
}

// Register attaches a websocket connection and replays the last event.
func (n *EventNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	last := n.lastEvent
	n.mu.Unlock()

	if last != nil {
		_ = client.writeJSON(*last)
	}
	return client
}

// Unregister removes the websocket client from the notifier and closes the socket.
func (n *EventNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the supplied event to all registered websocket clients.
func (n *EventNotifier) Broadcast(event cascade.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	n.mu.Lock()
	snapshot := event
	n.lastEvent = &snapshot
	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

// Clients reports the number of connected websocket clients.
func (n *EventNotifier) Clients() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients)
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}

// LastEvent returns a copy of the most recent broadcast event.
func (n *EventNotifier) LastEvent() *cascade.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastEvent == nil {
		return nil
	}
	copy := *n.lastEvent
	return &copy
}
