package countdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncNowSuccess(t *testing.T) {
	clock := newFakeClock()
	store := newStubStore()
	var calls atomic.Int32
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		calls.Add(1)
		return SyncResponse{ServerNow: baseMillis, ServerEndTime: baseMillis + 60_000, EchoedSendTime: sendTime}, nil
	})
	s := newTestSession(t, clock, transport, store)
	events := recordEvents(s)

	s.SyncNow(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 60*time.Second, s.Remaining())
	assert.True(t, s.IsTimestampValid())
	assert.Empty(t, s.ErrorMessage())
	assert.False(t, s.Syncing())
	assert.Len(t, events.ofType(EventSynced), 1)

	info := s.DebugInfo()
	assert.Zero(t, info.RetryCount)
	assert.Zero(t, info.RequestSendTime)

	snap, err := store.Load(context.Background(), "launch")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, baseMillis+60_000, snap.ServerEndTime)
	assert.Equal(t, baseMillis, snap.ServerNow)
	assert.Equal(t, baseMillis, snap.ClientNow)
	assert.Equal(t, baseMillis, snap.SyncedAt)
}

func TestSyncNowSkippedWhenDisabled(t *testing.T) {
	var calls atomic.Int32
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		calls.Add(1)
		return SyncResponse{}, nil
	})
	s := newTestSession(t, newFakeClock(), transport, nil)
	s.SetSyncDisabled(true)

	s.SyncNow(context.Background())
	assert.Zero(t, calls.Load())
}

func TestSyncNowCooldown(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		calls.Add(1)
		return SyncResponse{ServerNow: nowMillis(clock), ServerEndTime: baseMillis + 60_000}, nil
	})
	s := newTestSession(t, clock, transport, nil)

	s.SyncNow(context.Background())
	require.Equal(t, int32(1), calls.Load())

	// Second trigger inside the cooldown window is a no-op.
	s.SyncNow(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(2 * time.Second)
	s.SyncNow(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryExhaustionDegradesWithoutCache(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		calls.Add(1)
		return SyncResponse{}, ErrSyncTimeout
	})
	s := newTestSession(t, clock, transport, nil)
	events := recordEvents(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SyncNow(context.Background())
	}()

	for i := 0; i < MaxRetries; i++ {
		clock.BlockUntil(1)
		clock.Advance(retryDelayFor(i))
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync cycle did not finish")
	}

	assert.Equal(t, int32(MaxRetries+1), calls.Load())
	assert.False(t, s.IsTimestampValid())
	assert.Equal(t, "sync failed: timeout; cache invalid", s.ErrorMessage())

	info := s.DebugInfo()
	assert.Zero(t, info.RetryCount)
	assert.Zero(t, info.RequestSendTime)

	assert.Len(t, events.ofType(EventDegraded), 1)
}

func TestRetryExhaustionFallsBackToCache(t *testing.T) {
	clock := newFakeClock()
	store := newStubStore()
	store.snaps["launch"] = Snapshot{
		ServerEndTime: baseMillis + 60_000,
		ServerNow:     baseMillis - 1_000,
		ClientNow:     baseMillis - 1_000,
		SyncedAt:      baseMillis - 500,
	}
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		return SyncResponse{}, ErrSyncTimeout
	})
	s := newTestSession(t, clock, transport, store)
	events := recordEvents(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.SyncNow(context.Background())
	}()

	for i := 0; i < MaxRetries; i++ {
		clock.BlockUntil(1)
		clock.Advance(retryDelayFor(i))
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync cycle did not finish")
	}

	// The retry backoffs consumed nine seconds, so the cached pair projects
	// 51 seconds of remaining time.
	assert.Equal(t, 51*time.Second, s.Remaining())
	assert.True(t, s.IsTimestampValid())
	assert.Equal(t, "sync failed: timeout", s.ErrorMessage())
	assert.Len(t, events.ofType(EventSynced), 1)
	assert.Empty(t, events.ofType(EventDegraded))
}

func TestAbortIsTerminal(t *testing.T) {
	var calls atomic.Int32
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		calls.Add(1)
		return SyncResponse{}, ErrSyncAborted
	})
	s := newTestSession(t, newFakeClock(), transport, nil)
	events := recordEvents(s)

	s.SyncNow(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "sync cancelled", s.ErrorMessage())
	assert.True(t, s.IsTimestampValid())
	assert.Empty(t, events.ofType(EventDegraded))
}

func TestValidationRejectionDoesNotDegrade(t *testing.T) {
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		// Deadline sits far enough in the past to fail validation.
		return SyncResponse{ServerNow: baseMillis, ServerEndTime: baseMillis - 400_000}, nil
	})
	s := newTestSession(t, newFakeClock(), transport, nil)
	events := recordEvents(s)

	s.SyncNow(context.Background())

	assert.Equal(t, ErrExpiredBeyondTolerance.Error()+"; cache invalid", s.ErrorMessage())
	assert.True(t, s.IsTimestampValid())
	assert.True(t, s.IsExpired())
	assert.Empty(t, events.ofType(EventDegraded))
}

func TestSyncNowClampsToPreSyncRemaining(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		calls.Add(1)
		// The server clock reads the same on both calls; on the second one
		// it is ten seconds stale relative to local time.
		return SyncResponse{ServerNow: baseMillis, ServerEndTime: baseMillis + 30_000}, nil
	})
	s := newTestSession(t, clock, transport, nil)

	// The very first sync is unclamped: the full projection is displayed.
	s.SyncNow(context.Background())
	require.Equal(t, 30*time.Second, s.Remaining())

	clock.Advance(10 * time.Second)
	st := s.Tick()
	require.Equal(t, int64(20_000), st.RemainingMS)

	// The stale response would project 30s again; the pre-sync display wins.
	s.SyncNow(context.Background())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 20*time.Second, s.Remaining())
}

func TestSyncNowWithoutTransportDegradesWithoutCache(t *testing.T) {
	s := newTestSession(t, newFakeClock(), nil, nil)
	events := recordEvents(s)

	s.SyncNow(context.Background())

	assert.False(t, s.IsTimestampValid())
	assert.Equal(t, "no sync transport configured; cache invalid", s.ErrorMessage())
	assert.Len(t, events.ofType(EventDegraded), 1)
}
