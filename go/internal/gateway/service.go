package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config holds gateway service configuration.
type Config struct {
	ConnectionConfig  ConnectionConfig
	BroadcastInterval time.Duration
	// Keys are the countdown keys this gateway serves and broadcasts.
	Keys []string
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:  DefaultConnectionConfig(),
		BroadcastInterval: time.Second,
	}
}

// Service is the server side of the countdown system: it answers sync
// requests from its own clock and pushes authoritative countdown ticks to
// websocket subscribers.
type Service struct {
	clock       clockwork.Clock
	hub         *Hub
	syncHandler *SyncHandler
	source      DeadlineSource
	config      Config

	expired   map[string]bool
	deadlines map[string]int64
}

// NewService wires the hub and sync handler around one deadline source.
func NewService(clock clockwork.Clock, source DeadlineSource, config Config) *Service {
	defaultKey := ""
	if len(config.Keys) > 0 {
		defaultKey = config.Keys[0]
	}
	return &Service{
		clock:       clock,
		hub:         NewHub(config.ConnectionConfig),
		syncHandler: NewSyncHandler(clock, source, defaultKey),
		source:      source,
		config:      config,
		expired:     make(map[string]bool),
		deadlines:   make(map[string]int64),
	}
}

// Start runs the hub and the tick broadcast loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Strs("keys", s.config.Keys).Msg("starting countdown gateway")

	go s.hub.Start(ctx)

	ticker := s.clock.NewTicker(s.config.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("countdown gateway shutting down")
			return nil
		case <-ticker.Chan():
			s.broadcastTicks(ctx)
		}
	}
}

// broadcastTicks pushes the current authoritative state of every served key.
func (s *Service) broadcastTicks(ctx context.Context) {
	now := s.clock.Now()
	for _, key := range s.config.Keys {
		deadline, err := s.source.Deadline(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping tick broadcast")
			continue
		}

		endMs := deadline.UnixMilli()
		if prev, seen := s.deadlines[key]; seen && prev != endMs {
			s.broadcastEvent(key, EventTypeDeadlineChanged, DeadlineChangedPayload{
				ServerEndTime: endMs,
				ChangedAt:     now.UnixMilli(),
			})
			s.expired[key] = false
			log.Info().Str("key", key).Int64("deadline_ms", endMs).Msg("deadline changed")
		}
		s.deadlines[key] = endMs

		remaining := deadline.Sub(now).Milliseconds()
		if remaining < 0 {
			remaining = 0
		}
		expired := remaining == 0

		s.broadcastEvent(key, EventTypeTick, TickPayload{
			ServerNow:     now.UnixMilli(),
			ServerEndTime: deadline.UnixMilli(),
			RemainingMS:   remaining,
			Expired:       expired,
		})

		if expired && !s.expired[key] {
			s.expired[key] = true
			s.broadcastEvent(key, EventTypeExpired, TickPayload{
				ServerNow:     now.UnixMilli(),
				ServerEndTime: deadline.UnixMilli(),
			})
			log.Info().Str("key", key).Msg("countdown expired")
		}
	}
}

func (s *Service) broadcastEvent(key string, eventType EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to marshal broadcast payload")
		return
	}
	s.hub.Broadcast(key, &CountdownEvent{
		ID:        uuid.New().String(),
		Key:       key,
		Type:      eventType,
		Timestamp: s.clock.Now(),
		Data:      data,
	})
}

// RegisterRoutes attaches the gateway endpoints to mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sync", CORSHandler(s.syncHandler.HandleSync))
	mux.HandleFunc("/ws/countdown", s.hub.HandleCountdownConnection)
	mux.HandleFunc("/ws/stats", s.handleStats)
	log.Info().Msg("countdown gateway routes registered")
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	total, byKey := s.hub.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_connections": total,
		"subscriptions":     byKey,
	})
}
