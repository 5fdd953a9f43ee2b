package countdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SyncState is the canonical reconciled snapshot: the last validated
// (serverEndTime, serverNow) pair in epoch milliseconds, paired with the
// local clock reading at the moment the pair was accepted. The triple is
// replaced atomically under the session mutex, never partially updated.
type SyncState struct {
	ServerEndTime int64
	ServerNow     int64
	ClientNow     int64
}

// DisplayState is what UI collaborators render.
type DisplayState struct {
	RemainingMS    int64  `json:"remaining_ms"`
	Expired        bool   `json:"expired"`
	TimestampValid bool   `json:"timestamp_valid"`
	Syncing        bool   `json:"syncing"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Notice         string `json:"notice,omitempty"`
}

// Breakdown decomposes remaining time for display. All units floor; centis
// is the sub-second remainder in hundredths.
type Breakdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
	Centis  int `json:"centis"`
}

// DebugInfo is a diagnostic snapshot of the whole session.
type DebugInfo struct {
	SessionID       string `json:"session_id"`
	Key             string `json:"key"`
	ServerEndTime   int64  `json:"server_end_time"`
	ServerNow       int64  `json:"server_now"`
	ClientNow       int64  `json:"client_now"`
	RemainingMS     int64  `json:"remaining_ms"`
	Expired         bool   `json:"expired"`
	TimestampValid  bool   `json:"timestamp_valid"`
	Syncing         bool   `json:"syncing"`
	SyncDisabled    bool   `json:"sync_disabled"`
	RetryCount      int    `json:"retry_count"`
	RequestSendTime int64  `json:"request_send_time"`
	ErrorMessage    string `json:"error_message,omitempty"`
	Notice          string `json:"notice,omitempty"`
}

// SessionConfig configures a countdown session.
type SessionConfig struct {
	// Key identifies the countdown for snapshot persistence.
	Key string
	// Transport performs sync round trips. Required for live syncing; a
	// session without one can still restore from cache and tick.
	Transport Transport
	// Store persists the last valid snapshot. Optional.
	Store SnapshotStore
	// Clock defaults to the real clock. Tests inject a FakeClock.
	Clock clockwork.Clock
	// Events receives lifecycle events. Optional; a fresh emitter is
	// created when nil.
	Events *Emitter
}

// Session owns one countdown: the SyncState, the displayed remaining time,
// and the retry/degradation bookkeeping. It is the explicit per-countdown
// context object; all mutable state lives here, guarded by one mutex, so a
// Tick never observes a torn SyncState.
type Session struct {
	id        string
	key       string
	clock     clockwork.Clock
	transport Transport
	store     SnapshotStore
	events    *Emitter

	mu              sync.Mutex
	syncState       *SyncState
	remaining       int64
	hasRemaining    bool
	expired         bool
	expiredNotified bool
	timestampValid  bool
	syncing         bool
	syncDisabled    bool
	errorMessage    string
	notice          string
	retryCount      int
	requestSendTime int64
	lastSyncEnd     time.Time
	pendingEvents   []Event
}

// NewSession creates a session in the uninitialized state. Call Restore to
// seed it from a persisted snapshot and SyncNow (or run a Driver) to sync.
func NewSession(cfg SessionConfig) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	events := cfg.Events
	if events == nil {
		events = NewEmitter()
	}
	return &Session{
		id:             uuid.New().String()[:8],
		key:            cfg.Key,
		clock:          clock,
		transport:      cfg.Transport,
		store:          cfg.Store,
		events:         events,
		timestampValid: true,
	}
}

// Events exposes the session's lifecycle emitter for subscribers.
func (s *Session) Events() *Emitter {
	return s.events
}

// Tick re-derives remaining time from the last validated pair plus locally
// elapsed time and returns the resulting display state. Between two
// installs, remaining can only move toward zero: the previously displayed
// value is a ceiling. The ceiling resets to the fresh projection exactly
// once per SyncState installation.
func (s *Session) Tick() DisplayState {
	s.mu.Lock()
	s.tickLocked()
	st := s.displayLocked()
	s.mu.Unlock()
	s.flushEvents()
	return st
}

func (s *Session) tickLocked() {
	if s.syncState == nil {
		s.remaining = 0
		s.expired = true
		return
	}

	clientElapsed := nowMillis(s.clock) - s.syncState.ClientNow
	projectedServerNow := s.syncState.ServerNow + clientElapsed
	candidate := s.syncState.ServerEndTime - projectedServerNow

	if s.hasRemaining && s.remaining < candidate {
		candidate = s.remaining
	}
	if candidate < 0 {
		candidate = 0
	}

	s.remaining = candidate
	s.hasRemaining = true
	s.expired = candidate == 0

	if s.expired && !s.expiredNotified {
		s.expiredNotified = true
		s.queueEventLocked(EventExpired, "")
	}
}

// installLocked atomically replaces the SyncState with a validated pair.
// A deadline increase beyond tolerance is reverted to the previous
// deadline: the fresh (serverNow, clientNow) reference is still the best
// clock evidence, but the bump itself is suspect.
func (s *Session) installLocked(pair ValidatedPair, clientNow int64) {
	if s.syncState != nil {
		if jump := pair.ServerEndTime - s.syncState.ServerEndTime; jump > millis(DeadlineJumpTolerance) {
			log.Warn().
				Str("session", s.id).
				Str("key", s.key).
				Int64("jump_ms", jump).
				Msg("deadline increase beyond tolerance - keeping previous deadline")
			pair.ServerEndTime = s.syncState.ServerEndTime
			s.notice = "time anomaly corrected"
			s.queueEventLocked(EventDeadlineAnomaly, fmt.Sprintf("deadline jump of %dms rejected", jump))
		}
	}

	s.syncState = &SyncState{
		ServerEndTime: pair.ServerEndTime,
		ServerNow:     pair.ServerNow,
		ClientNow:     clientNow,
	}
	s.hasRemaining = false
	s.expiredNotified = false
	s.timestampValid = true
	s.queueEventLocked(EventSynced, "")
}

func (s *Session) displayLocked() DisplayState {
	return DisplayState{
		RemainingMS:    s.remaining,
		Expired:        s.expired,
		TimestampValid: s.timestampValid,
		Syncing:        s.syncing,
		ErrorMessage:   s.errorMessage,
		Notice:         s.notice,
	}
}

// Remaining returns the last displayed remaining time.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.remaining) * time.Millisecond
}

// Breakdown decomposes the last displayed remaining time. Every unit
// floors; centiseconds are (ms % 1000) / 10.
func (s *Session) Breakdown() Breakdown {
	s.mu.Lock()
	ms := s.remaining
	s.mu.Unlock()
	return breakdownMillis(ms)
}

func breakdownMillis(ms int64) Breakdown {
	if ms < 0 {
		ms = 0
	}
	return Breakdown{
		Days:    int(ms / 86_400_000),
		Hours:   int(ms / 3_600_000 % 24),
		Minutes: int(ms / 60_000 % 60),
		Seconds: int(ms / 1_000 % 60),
		Centis:  int(ms % 1_000 / 10),
	}
}

// IsExpired reports whether the countdown has reached zero (or has no valid
// sync yet).
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// IsTimestampValid reports whether the session can still vouch for its
// remaining time. False is the hard degraded state: retries and cache both
// exhausted.
func (s *Session) IsTimestampValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timestampValid
}

// Syncing reports whether a sync cycle is in flight.
func (s *Session) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// ErrorMessage returns the accumulated error text of the last sync cycle.
func (s *Session) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorMessage
}

// Notice returns the last informational notice (e.g. anomaly correction).
func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// SyncDisabled reports whether syncing has been switched off.
func (s *Session) SyncDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncDisabled
}

// SetSyncDisabled switches live syncing on or off. Ticking continues either
// way.
func (s *Session) SetSyncDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncDisabled = disabled
}

// DebugInfo returns a diagnostic snapshot.
func (s *Session) DebugInfo() DebugInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := DebugInfo{
		SessionID:       s.id,
		Key:             s.key,
		RemainingMS:     s.remaining,
		Expired:         s.expired,
		TimestampValid:  s.timestampValid,
		Syncing:         s.syncing,
		SyncDisabled:    s.syncDisabled,
		RetryCount:      s.retryCount,
		RequestSendTime: s.requestSendTime,
		ErrorMessage:    s.errorMessage,
		Notice:          s.notice,
	}
	if s.syncState != nil {
		info.ServerEndTime = s.syncState.ServerEndTime
		info.ServerNow = s.syncState.ServerNow
		info.ClientNow = s.syncState.ClientNow
	}
	return info
}

// queueEventLocked stages an event for emission after the mutex is
// released; emitting under the lock would let handlers deadlock by calling
// back into the session.
func (s *Session) queueEventLocked(t EventType, detail string) {
	s.pendingEvents = append(s.pendingEvents, Event{
		Type:        t,
		SessionID:   s.id,
		Key:         s.key,
		At:          s.clock.Now(),
		Detail:      detail,
		RemainingMS: s.remaining,
	})
}

func (s *Session) flushEvents() {
	s.mu.Lock()
	pending := s.pendingEvents
	s.pendingEvents = nil
	s.mu.Unlock()
	for _, ev := range pending {
		s.events.Emit(ev)
	}
}

func (s *Session) setErrorLocked(msg string) {
	s.errorMessage = msg
}

// appendErrorLocked accumulates rather than replaces, so the original
// validation reason survives a failed cache fallback.
func (s *Session) appendErrorLocked(msg string) {
	if s.errorMessage == "" {
		s.errorMessage = msg
		return
	}
	s.errorMessage = s.errorMessage + "; " + msg
}
