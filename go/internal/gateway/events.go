package gateway

import (
	"encoding/json"
	"time"
)

// EventType identifies a websocket push event.
type EventType string

const (
	// EventTypeTick carries the current countdown state, pushed once per
	// broadcast interval.
	EventTypeTick EventType = "Tick"
	// EventTypeDeadlineChanged announces an operator-initiated deadline
	// change.
	EventTypeDeadlineChanged EventType = "DeadlineChanged"
	// EventTypeExpired announces that the countdown reached zero.
	EventTypeExpired EventType = "Expired"
)

// CountdownEvent is the envelope pushed to websocket clients.
type CountdownEvent struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// TickPayload is the EventTypeTick payload.
type TickPayload struct {
	ServerNow     int64 `json:"server_now"`
	ServerEndTime int64 `json:"server_end_time"`
	RemainingMS   int64 `json:"remaining_ms"`
	Expired       bool  `json:"expired"`
}

// DeadlineChangedPayload is the EventTypeDeadlineChanged payload.
type DeadlineChangedPayload struct {
	ServerEndTime int64 `json:"server_end_time"`
	ChangedAt     int64 `json:"changed_at"`
}
