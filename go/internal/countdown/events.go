package countdown

import (
	"sync"
	"time"
)

// EventType identifies a countdown lifecycle event.
type EventType string

const (
	// EventSynced fires after a validated pair is installed, live or cached.
	EventSynced EventType = "Synced"
	// EventExpired fires once when remaining first reaches zero.
	EventExpired EventType = "Expired"
	// EventDeadlineAnomaly fires when a deadline bump beyond tolerance is
	// reverted.
	EventDeadlineAnomaly EventType = "DeadlineAnomaly"
	// EventDegraded fires when retries and cache are both exhausted and the
	// session can no longer vouch for its timestamps.
	EventDegraded EventType = "Degraded"
	// EventConnectivity fires on online/offline transitions reported to the
	// driver.
	EventConnectivity EventType = "Connectivity"
)

// Event is a countdown lifecycle notification.
type Event struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id"`
	Key         string    `json:"key"`
	At          time.Time `json:"at"`
	Detail      string    `json:"detail,omitempty"`
	RemainingMS int64     `json:"remaining_ms"`
	Online      bool      `json:"online,omitempty"`
}

// Handler consumes lifecycle events.
type Handler func(Event)

// Emitter fans lifecycle events out to registered handlers. Emission is
// synchronous and ordered; handlers must not block.
type Emitter struct {
	mu       sync.Mutex
	handlers []Handler
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a handler for all subsequent events.
func (e *Emitter) Subscribe(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Emit delivers ev to every registered handler in subscription order.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
