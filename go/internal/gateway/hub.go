package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub manages websocket connections subscribed to countdown keys and fans
// events out to them.
type Hub struct {
	keyConnections map[string]map[*Connection]bool
	mu             sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// Connection is one websocket subscriber.
type Connection struct {
	ID   string
	Key  string
	Conn *websocket.Conn
	Send chan []byte
	hub  *Hub

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds websocket tuning.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	Key   string
	Event *CountdownEvent
}

// DefaultConnectionConfig returns sane websocket defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production.
			return true
		},
	}
}

// NewHub creates a hub with the given connection configuration.
func NewHub(config ConnectionConfig) *Hub {
	return &Hub{
		keyConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("countdown hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("countdown hub shutting down")
			return
		case message := <-h.broadcastCh:
			h.handleBroadcast(message)
		}
	}
}

// HandleCountdownConnection upgrades an HTTP request into a subscription to
// one countdown key (?key= query parameter).
func (h *Hub) HandleCountdownConnection(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	if err := h.upgrade(w, r, key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to upgrade websocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

func (h *Hub) upgrade(w http.ResponseWriter, r *http.Request, key string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Key:         key,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		hub:         h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	h.register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("key", key).
		Msg("websocket connection established")
	return nil
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.keyConnections[conn.Key] == nil {
		h.keyConnections[conn.Key] = make(map[*Connection]bool)
	}
	h.keyConnections[conn.Key][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("key", conn.Key).
		Int("subscribers", len(h.keyConnections[conn.Key])).
		Msg("connection registered")
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if connections, exists := h.keyConnections[conn.Key]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)
			if len(connections) == 0 {
				delete(h.keyConnections, conn.Key)
			}
			log.Info().
				Str("connection_id", conn.ID).
				Str("key", conn.Key).
				Msg("connection unregistered")
		}
	}
}

// Broadcast queues an event for every subscriber of key. Drops the event
// when the queue is full rather than blocking the caller.
func (h *Hub) Broadcast(key string, event *CountdownEvent) {
	select {
	case h.broadcastCh <- broadcastMessage{Key: key, Event: event}:
	default:
		log.Warn().Str("key", key).Msg("broadcast channel full - dropping event")
	}
}

func (h *Hub) handleBroadcast(message broadcastMessage) {
	h.mu.RLock()
	connections, exists := h.keyConnections[message.Key]
	if !exists {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- eventData:
		default:
			// Slow or dead subscriber; cut it loose.
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full - closing connection")
			h.unregister(conn)
			conn.Conn.Close()
		}
	}
}

// Stats returns subscriber counts by key.
func (h *Hub) Stats() (total int, byKey map[string]int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byKey = make(map[string]int, len(h.keyConnections))
	for key, connections := range h.keyConnections {
		byKey[key] = len(connections)
		total += len(connections)
	}
	return total, byKey
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		// Subscribers are read-only; inbound frames are logged and dropped.
		log.Debug().Str("connection_id", c.ID).RawJSON("message", message).Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
