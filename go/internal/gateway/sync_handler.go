package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DeadlineSource provides the authoritative deadline for a countdown key.
type DeadlineSource interface {
	Deadline(ctx context.Context, key string) (time.Time, error)
}

// DeadlineSourceFunc adapts a function to DeadlineSource.
type DeadlineSourceFunc func(ctx context.Context, key string) (time.Time, error)

// Deadline calls f.
func (f DeadlineSourceFunc) Deadline(ctx context.Context, key string) (time.Time, error) {
	return f(ctx, key)
}

// ErrUnknownKey is returned by deadline sources for keys they do not serve.
var ErrUnknownKey = errors.New("gateway: unknown countdown key")

// StaticDeadlines is a DeadlineSource over a fixed key→deadline map.
type StaticDeadlines map[string]time.Time

// Deadline looks the key up in the map.
func (d StaticDeadlines) Deadline(ctx context.Context, key string) (time.Time, error) {
	deadline, ok := d[key]
	if !ok {
		return time.Time{}, ErrUnknownKey
	}
	return deadline, nil
}

// SyncHandler serves the sync endpoint: POST {"t": <clientSendTime ms>}
// answered with {"s": <serverNow ms>, "e": <serverEndTime ms>, "t": <echo>}.
type SyncHandler struct {
	clock         clockwork.Clock
	source        DeadlineSource
	defaultKey    string
	lookupTimeout time.Duration
}

// NewSyncHandler creates a handler. defaultKey is used when the request
// does not name a key via the ?key= query parameter.
func NewSyncHandler(clock clockwork.Clock, source DeadlineSource, defaultKey string) *SyncHandler {
	return &SyncHandler{
		clock:         clock,
		source:        source,
		defaultKey:    defaultKey,
		lookupTimeout: 5 * time.Second,
	}
}

type syncRequestBody struct {
	T json.Number `json:"t"`
}

type syncResponseBody struct {
	S int64 `json:"s"`
	E int64 `json:"e"`
	T int64 `json:"t"`
}

type syncErrorBody struct {
	Err string `json:"err"`
}

// HandleSync implements the sync exchange. Deadline lookup failures map to
// 500, lookup timeouts to 504, both with an {err} body.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, syncErrorBody{Err: "method not allowed"})
		return
	}

	var body syncRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, syncErrorBody{Err: "invalid request body"})
		return
	}
	sendTime, _ := body.T.Int64()

	key := r.URL.Query().Get("key")
	if key == "" {
		key = h.defaultKey
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.lookupTimeout)
	defer cancel()

	deadline, err := h.source.Deadline(ctx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error().Err(err).Str("key", key).Msg("deadline lookup timed out")
			writeJSON(w, http.StatusGatewayTimeout, syncErrorBody{Err: "server timeout"})
			return
		}
		log.Error().Err(err).Str("key", key).Msg("deadline lookup failed")
		writeJSON(w, http.StatusInternalServerError, syncErrorBody{Err: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, syncResponseBody{
		S: h.clock.Now().UnixMilli(),
		E: deadline.UnixMilli(),
		T: sendTime,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
