package countdown

import (
	"context"
	"errors"
)

var (
	// ErrSyncTimeout marks a sync round trip that hit its hard timeout.
	// Timeouts are retryable.
	ErrSyncTimeout = errors.New("countdown: sync request timed out")

	// ErrSyncAborted marks a sync cancelled from outside (caller context).
	// Aborts are terminal: no retry is attempted after one.
	ErrSyncAborted = errors.New("countdown: sync cancelled")
)

// SyncResponse is the canonical form of one sync exchange, after ingress
// normalization of whatever field names the wire used.
type SyncResponse struct {
	ServerNow      int64
	ServerEndTime  int64
	EchoedSendTime int64
}

// Transport performs one sync round trip against the authority. sendTime is
// the local epoch-ms timestamp the request leaves with; implementations must
// carry it to the server and enforce a hard per-call timeout.
type Transport interface {
	FetchSync(ctx context.Context, sendTime int64) (SyncResponse, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, sendTime int64) (SyncResponse, error)

// FetchSync calls f.
func (f TransportFunc) FetchSync(ctx context.Context, sendTime int64) (SyncResponse, error) {
	return f(ctx, sendTime)
}
