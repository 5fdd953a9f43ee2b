package countdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreWithoutStore(t *testing.T) {
	s := newTestSession(t, newFakeClock(), nil, nil)
	assert.False(t, s.Restore(context.Background()))
}

func TestRestoreRejectsOldSnapshot(t *testing.T) {
	store := newStubStore()
	store.snaps["launch"] = Snapshot{
		ServerEndTime: baseMillis + 60_000,
		ServerNow:     baseMillis - 25*3_600_000,
		ClientNow:     baseMillis - 25*3_600_000,
		SyncedAt:      baseMillis - 25*3_600_000,
	}
	s := newTestSession(t, newFakeClock(), nil, store)

	assert.False(t, s.Restore(context.Background()))
}

func TestRestoreRejectsIncompleteSnapshot(t *testing.T) {
	store := newStubStore()
	store.snaps["launch"] = Snapshot{
		ServerEndTime: baseMillis + 60_000,
		ServerNow:     baseMillis,
		SyncedAt:      baseMillis,
	}
	s := newTestSession(t, newFakeClock(), nil, store)

	assert.False(t, s.Restore(context.Background()))
}

func TestRestoreRejectsStaleProjection(t *testing.T) {
	// One hour old, within the age bound, but the deadline passed more than
	// five minutes ago once projected to the current server time.
	store := newStubStore()
	store.snaps["launch"] = Snapshot{
		ServerEndTime: baseMillis - 400_000,
		ServerNow:     baseMillis - 3_600_000,
		ClientNow:     baseMillis - 3_600_000,
		SyncedAt:      baseMillis - 3_600_000,
	}
	s := newTestSession(t, newFakeClock(), nil, store)

	assert.False(t, s.Restore(context.Background()))
}

func TestRestoreProjectsCurrentServerTime(t *testing.T) {
	store := newStubStore()
	store.snaps["launch"] = Snapshot{
		ServerEndTime: baseMillis + 60_000,
		ServerNow:     baseMillis - 1_000,
		ClientNow:     baseMillis - 1_000,
		SyncedAt:      baseMillis - 500,
	}
	s := newTestSession(t, newFakeClock(), nil, store)
	events := recordEvents(s)

	require.True(t, s.Restore(context.Background()))
	assert.Equal(t, 60*time.Second, s.Remaining())
	assert.True(t, s.IsTimestampValid())
	assert.False(t, s.IsExpired())
	assert.Len(t, events.ofType(EventSynced), 1)

	// The installed reference point is the current local time, not the
	// cached one.
	assert.Equal(t, baseMillis, s.DebugInfo().ClientNow)
}

func TestRestoreNormalizesSecondsSnapshot(t *testing.T) {
	store := newStubStore()
	store.snaps["launch"] = Snapshot{
		ServerEndTime: (baseMillis + 60_000) / 1000,
		ServerNow:     baseMillis / 1000,
		ClientNow:     baseMillis,
		SyncedAt:      baseMillis,
	}
	s := newTestSession(t, newFakeClock(), nil, store)

	require.True(t, s.Restore(context.Background()))
	assert.Equal(t, 60*time.Second, s.Remaining())
}

func TestLiveSyncAfterRestoreNeverRaisesRemaining(t *testing.T) {
	clock := newFakeClock()
	store := newStubStore()
	store.snaps["launch"] = Snapshot{
		ServerEndTime: baseMillis + 60_000,
		ServerNow:     baseMillis - 1_000,
		ClientNow:     baseMillis - 1_000,
		SyncedAt:      baseMillis - 500,
	}
	transport := TransportFunc(func(ctx context.Context, sendTime int64) (SyncResponse, error) {
		// Stale by the five seconds that passed locally since the restore.
		return SyncResponse{ServerNow: baseMillis, ServerEndTime: baseMillis + 60_000}, nil
	})
	s := newTestSession(t, clock, transport, store)

	require.True(t, s.Restore(context.Background()))
	require.Equal(t, 60*time.Second, s.Remaining())

	clock.Advance(5 * time.Second)
	st := s.Tick()
	require.Equal(t, int64(55_000), st.RemainingMS)

	s.SyncNow(context.Background())
	assert.Equal(t, 55*time.Second, s.Remaining())
}
