package countdown

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Snapshot is the persisted form of a successful sync: raw
// pre-normalization server timestamps plus the local reference point and
// the local time of persistence.
type Snapshot struct {
	ServerEndTime int64 `json:"server_end_time"`
	ServerNow     int64 `json:"server_now"`
	ClientNow     int64 `json:"client_now"`
	SyncedAt      int64 `json:"synced_at"`
}

// SnapshotStore persists the last valid snapshot across process restarts.
// Load returns (nil, nil) when no snapshot exists for the key.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snap Snapshot) error
	Clear(ctx context.Context, key string) error
}

// Restore seeds the session from the persisted snapshot when one is usable.
// Meant for startup, before the first live sync.
func (s *Session) Restore(ctx context.Context) bool {
	ok := s.tryUseCache(ctx)
	if ok {
		s.Tick()
	}
	s.flushEvents()
	return ok
}

// tryUseCache loads the persisted snapshot, re-derives a current server
// time from it, and routes the result through the same validator path as
// live data. The installed clientNow is the current local time, never the
// stale cached one.
func (s *Session) tryUseCache(ctx context.Context) bool {
	if s.store == nil {
		return false
	}

	snap, err := s.store.Load(ctx, s.key)
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Str("key", s.key).Msg("failed to load snapshot")
		return false
	}
	if snap == nil {
		return false
	}
	if snap.ServerEndTime <= 0 || snap.ServerNow <= 0 || snap.ClientNow <= 0 || snap.SyncedAt <= 0 {
		log.Warn().Str("session", s.id).Str("key", s.key).Msg("snapshot missing required fields")
		return false
	}

	now := nowMillis(s.clock)
	if now-snap.SyncedAt >= millis(MaxCacheAge) {
		log.Info().
			Str("session", s.id).
			Str("key", s.key).
			Int64("age_ms", now-snap.SyncedAt).
			Msg("snapshot too old - discarding")
		return false
	}

	// Project what the server clock should read right now, then validate
	// exactly as a live pair would be. The deviation bound doubles as the
	// staleness check: a cache whose projected remaining is expired beyond
	// tolerance is rejected here.
	currentServerTime := NormalizeMillis(snap.ServerNow) + (now - snap.ClientNow)
	pair, err := ValidatePair(snap.ServerEndTime, currentServerTime, 0, now)
	if err != nil {
		log.Info().Err(err).Str("session", s.id).Str("key", s.key).Msg("snapshot rejected by validation")
		return false
	}

	s.mu.Lock()
	s.installLocked(pair, now)
	s.mu.Unlock()
	return true
}
