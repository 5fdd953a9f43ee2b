package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mcdev12/tickdown/go/internal/countdown"
)

// SyncClient is the HTTP implementation of countdown.Transport. One round
// trip: POST {"t": <sendTime ms>} to the sync path, expect
// {"s": <serverNow>, "e": <serverEndTime>, "t": <echoed sendTime>} on 2xx
// or {"err": <string>} otherwise. Long-form field names
// (serverNow/serverEndTime) are accepted as aliases.
type SyncClient struct {
	baseURL string
	path    string
	client  *http.Client
	timeout time.Duration
	headers map[string]string
}

// NewSyncClient creates a client against baseURL with the default sync path
// and timeout.
func NewSyncClient(baseURL string) *SyncClient {
	return &SyncClient{
		baseURL: baseURL,
		path:    "/api/sync",
		client:  &http.Client{},
		timeout: countdown.DefaultSyncTimeout,
		headers: make(map[string]string),
	}
}

// SetTimeout overrides the per-call hard timeout.
func (c *SyncClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SetPath overrides the sync endpoint path.
func (c *SyncClient) SetPath(path string) {
	c.path = path
}

// SetHeader adds a header to every request.
func (c *SyncClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// HTTPStatusError is returned for non-2xx sync responses.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("sync endpoint returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sync endpoint returned status %d", e.StatusCode)
}

type syncRequest struct {
	T int64 `json:"t"`
}

// wireSyncResponse covers every accepted response shape; ingress
// normalization maps it onto the canonical countdown.SyncResponse before
// anything downstream sees it.
type wireSyncResponse struct {
	S             json.Number `json:"s"`
	E             json.Number `json:"e"`
	T             json.Number `json:"t"`
	ServerNow     json.Number `json:"serverNow"`
	ServerEndTime json.Number `json:"serverEndTime"`
	Err           string      `json:"err"`
}

func (w wireSyncResponse) canonical() countdown.SyncResponse {
	resp := countdown.SyncResponse{
		ServerNow:      pickNumber(w.ServerNow, w.S),
		ServerEndTime:  pickNumber(w.ServerEndTime, w.E),
		EchoedSendTime: parseNumber(w.T),
	}
	return resp
}

// pickNumber prefers the long-form field when both appear.
func pickNumber(long, short json.Number) int64 {
	if v := parseNumber(long); v != 0 {
		return v
	}
	return parseNumber(short)
}

// parseNumber tolerates integer and float encodings; anything unparseable
// becomes 0 and is rejected by the validator downstream.
func parseNumber(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

// FetchSync performs one sync exchange carrying sendTime, bounded by the
// configured hard timeout. Timeout errors wrap countdown.ErrSyncTimeout;
// caller-initiated cancellation wraps countdown.ErrSyncAborted.
func (c *SyncClient) FetchSync(ctx context.Context, sendTime int64) (countdown.SyncResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(syncRequest{T: sendTime})
	if err != nil {
		return countdown.SyncResponse{}, fmt.Errorf("failed to marshal sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return countdown.SyncResponse{}, fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return countdown.SyncResponse{}, fmt.Errorf("%w: %v", countdown.ErrSyncAborted, err)
		}
		if reqCtx.Err() == context.DeadlineExceeded {
			return countdown.SyncResponse{}, fmt.Errorf("%w after %v: %v", countdown.ErrSyncTimeout, c.timeout, err)
		}
		return countdown.SyncResponse{}, fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return countdown.SyncResponse{}, fmt.Errorf("failed to read sync response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode}
		var wire wireSyncResponse
		if json.Unmarshal(respBody, &wire) == nil {
			statusErr.Message = wire.Err
		}
		return countdown.SyncResponse{}, statusErr
	}

	var wire wireSyncResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return countdown.SyncResponse{}, fmt.Errorf("failed to parse sync response: %w", err)
	}

	return wire.canonical(), nil
}
