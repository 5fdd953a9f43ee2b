package countdown

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// SyncNow runs one full sync cycle: fetch with bounded retries, validate,
// install, persist, and fall back to the cached snapshot when live data is
// unavailable or rejected. It never returns an error; every failure path
// terminates in session state. A call while a cycle is in flight, within
// the post-cycle cooldown, or while syncing is disabled is a no-op.
func (s *Session) SyncNow(ctx context.Context) {
	s.mu.Lock()
	if s.syncDisabled {
		s.mu.Unlock()
		log.Debug().Str("session", s.id).Msg("sync disabled - ignoring trigger")
		return
	}
	if s.syncing {
		s.mu.Unlock()
		log.Debug().Str("session", s.id).Msg("sync already in flight - ignoring trigger")
		return
	}
	if !s.lastSyncEnd.IsZero() && s.clock.Now().Sub(s.lastSyncEnd) < SyncCooldown {
		s.mu.Unlock()
		log.Debug().Str("session", s.id).Msg("sync cooldown active - ignoring trigger")
		return
	}
	s.syncing = true
	s.errorMessage = ""
	preSyncRemaining := int64(-1)
	if s.hasRemaining {
		preSyncRemaining = s.remaining
	}
	s.mu.Unlock()

	s.syncWithRetry(ctx)

	s.mu.Lock()
	// Coarse cross-sync guard: whatever the cycle did, the freshly
	// projected remaining may not exceed what was displayed before it.
	s.tickLocked()
	if preSyncRemaining > 0 && s.remaining > preSyncRemaining {
		log.Warn().
			Str("session", s.id).
			Int64("pre_sync_ms", preSyncRemaining).
			Int64("post_sync_ms", s.remaining).
			Msg("post-sync remaining exceeded pre-sync value - clamping")
		s.remaining = preSyncRemaining
	}
	s.syncing = false
	s.lastSyncEnd = s.clock.Now()
	s.mu.Unlock()
	s.flushEvents()
}

// syncWithRetry is the bounded retry loop around the transport. Timeouts
// and generic network failures are retried on the backoff schedule; an
// abort short-circuits the chain. On exhaustion the cached snapshot is the
// fallback, and if that too is unusable the session enters the degraded
// state.
func (s *Session) syncWithRetry(ctx context.Context) {
	defer func() {
		// The recorded send timestamp must never leak latency
		// compensation into an unrelated later call.
		s.mu.Lock()
		s.requestSendTime = 0
		s.mu.Unlock()
	}()

	if s.transport == nil {
		s.fallBackToCache(ctx, "no sync transport configured", true)
		return
	}

	for {
		sendTime := nowMillis(s.clock)
		s.mu.Lock()
		s.requestSendTime = sendTime
		s.mu.Unlock()

		resp, err := s.transport.FetchSync(ctx, sendTime)
		if err == nil {
			s.acceptResponse(ctx, resp, sendTime)
			return
		}

		if errors.Is(err, ErrSyncAborted) || errors.Is(err, context.Canceled) {
			s.mu.Lock()
			s.setErrorLocked("sync cancelled")
			s.mu.Unlock()
			log.Debug().Str("session", s.id).Msg("sync aborted - not retrying")
			return
		}

		failure := "network error"
		if errors.Is(err, ErrSyncTimeout) {
			failure = "timeout"
		}

		s.mu.Lock()
		attempt := s.retryCount
		canRetry := attempt < MaxRetries
		if canRetry {
			s.retryCount++
		}
		s.mu.Unlock()

		if canRetry {
			delay := retryDelayFor(attempt)
			log.Warn().
				Err(err).
				Str("session", s.id).
				Str("failure", failure).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("sync failed - retrying")
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.setErrorLocked("sync cancelled")
				s.mu.Unlock()
				return
			case <-s.clock.After(delay):
			}
			continue
		}

		log.Error().
			Err(err).
			Str("session", s.id).
			Int("retries", MaxRetries).
			Msg("sync retries exhausted - falling back to cache")
		s.mu.Lock()
		s.retryCount = 0
		s.setErrorLocked("sync failed: " + failure)
		s.mu.Unlock()
		s.fallBackToCache(ctx, "", true)
		return
	}
}

// acceptResponse validates a successful transport response and installs it,
// or falls back to cache when validation rejects it.
func (s *Session) acceptResponse(ctx context.Context, resp SyncResponse, sendTime int64) {
	s.mu.Lock()
	s.retryCount = 0
	s.mu.Unlock()

	localNow := nowMillis(s.clock)
	pair, err := ValidatePair(resp.ServerEndTime, resp.ServerNow, sendTime, localNow)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session", s.id).
			Int64("raw_end", resp.ServerEndTime).
			Int64("raw_now", resp.ServerNow).
			Msg("sync response rejected by validation")
		s.mu.Lock()
		s.setErrorLocked(err.Error())
		s.mu.Unlock()
		s.fallBackToCache(ctx, "", false)
		return
	}

	s.mu.Lock()
	s.installLocked(pair, localNow)
	s.mu.Unlock()

	if s.store != nil {
		// Raw pre-normalization values go to disk; the validator reruns on
		// the way back in.
		snap := Snapshot{
			ServerEndTime: resp.ServerEndTime,
			ServerNow:     resp.ServerNow,
			ClientNow:     localNow,
			SyncedAt:      localNow,
		}
		if err := s.store.Save(ctx, s.key, snap); err != nil {
			log.Warn().Err(err).Str("session", s.id).Str("key", s.key).Msg("failed to persist snapshot")
		}
	}

	log.Debug().
		Str("session", s.id).
		Int64("server_end", pair.ServerEndTime).
		Int64("server_now", pair.ServerNow).
		Msg("sync accepted")
}

// fallBackToCache attempts the cached snapshot. initialErr, when non-empty,
// becomes the first accumulated error message. When escalate is set (retry
// exhaustion) an unusable cache drops the session into the degraded state;
// a validation rejection with no usable cache only accumulates the message.
func (s *Session) fallBackToCache(ctx context.Context, initialErr string, escalate bool) {
	if initialErr != "" {
		s.mu.Lock()
		s.setErrorLocked(initialErr)
		s.mu.Unlock()
	}
	if s.tryUseCache(ctx) {
		log.Info().Str("session", s.id).Str("key", s.key).Msg("fell back to cached snapshot")
		return
	}
	s.mu.Lock()
	s.appendErrorLocked("cache invalid")
	if escalate {
		s.timestampValid = false
		s.queueEventLocked(EventDegraded, s.errorMessage)
	}
	s.mu.Unlock()
	if escalate {
		log.Error().Str("session", s.id).Msg("cache fallback failed - timestamps degraded")
	}
}
