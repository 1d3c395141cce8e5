// Package events records what the sync controller did: connections, session
// rebuilds, history loads and user transactions.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies controller events.
type EventType string

const (
	EventConnecting      EventType = "session.connecting"
	EventReady           EventType = "session.ready"
	EventConnectFailed   EventType = "session.connect_failed"
	EventTeardown        EventType = "session.teardown"
	EventAccountChanged  EventType = "session.account_changed"
	EventHistoryLoaded   EventType = "history.loaded"
	EventHistoryFailed   EventType = "history.failed"
	EventOwnerLoaded     EventType = "owner.loaded"
	EventOwnerFailed     EventType = "owner.failed"
	EventLiveSubscribed  EventType = "live.subscribed"
	EventLiveFailed      EventType = "live.failed"
	EventTipSent         EventType = "tip.sent"
	EventTipConfirmed    EventType = "tip.confirmed"
	EventTipFailed       EventType = "tip.failed"
	EventWithdrawDenied  EventType = "withdraw.denied"
	EventWithdrawSent    EventType = "withdraw.sent"
	EventWithdrawDone    EventType = "withdraw.confirmed"
	EventWithdrawFailed  EventType = "withdraw.failed"
	EventResyncCompleted EventType = "resync.completed"
)

// Severity indicates the importance of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one controller occurrence.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	Account   string            `json:"account,omitempty"`
	TxHash    string            `json:"tx_hash,omitempty"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// String returns the JSON form of the event.
func (e Event) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// Handler processes events as they are logged.
type Handler func(Event)

// Log is the sink the controller writes to.
type Log interface {
	Log(event Event)
}

// RingBuffer is a bounded, thread-safe event log.
type RingBuffer struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	handler Handler
}

// NewRingBuffer creates a buffer keeping the last size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 256
	}
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

// Log stores the event and notifies subscribers outside the lock.
func (rb *RingBuffer) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
		if event.Error != "" {
			event.Severity = SeverityError
		}
	}

	rb.mu.Lock()
	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
	handlers := make([]handlerEntry, len(rb.handlers))
	copy(handlers, rb.handlers)
	rb.mu.Unlock()

	for _, h := range handlers {
		h.handler(event)
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
func (rb *RingBuffer) Subscribe(handler Handler) func() {
	rb.mu.Lock()
	id := rb.nextID
	rb.nextID++
	rb.handlers = append(rb.handlers, handlerEntry{id: id, handler: handler})
	rb.mu.Unlock()

	return func() {
		rb.mu.Lock()
		defer rb.mu.Unlock()
		for i, h := range rb.handlers {
			if h.id == id {
				rb.handlers = append(rb.handlers[:i:i], rb.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns up to n events, most recent first.
func (rb *RingBuffer) Recent(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}

	result := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		result[i] = rb.events[idx]
	}
	return result
}

// RecentByType returns up to n events of one type, most recent first.
func (rb *RingBuffer) RecentByType(eventType EventType, n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < rb.count && len(result) < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		if rb.events[idx].Type == eventType {
			result = append(result, rb.events[idx])
		}
	}
	return result
}

// Count returns the number of buffered events.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Discard is a Log that drops everything.
type Discard struct{}

func (Discard) Log(Event) {}
