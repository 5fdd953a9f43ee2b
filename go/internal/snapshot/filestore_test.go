package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdev12/tickdown/go/internal/countdown"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	snap, err := store.Load(ctx, "launch")
	require.NoError(t, err)
	assert.Nil(t, snap)

	want := countdown.Snapshot{
		ServerEndTime: 1_700_000_060_000,
		ServerNow:     1_700_000_000_000,
		ClientNow:     1_700_000_000_100,
		SyncedAt:      1_700_000_000_100,
	}
	require.NoError(t, store.Save(ctx, "launch", want))

	snap, err = store.Load(ctx, "launch")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, want, *snap)

	require.NoError(t, store.Clear(ctx, "launch"))
	snap, err = store.Load(ctx, "launch")
	require.NoError(t, err)
	assert.Nil(t, snap)

	// Clearing an absent key is not an error.
	require.NoError(t, store.Clear(ctx, "launch"))
}

func TestFileStoreSanitizesKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	want := countdown.Snapshot{ServerEndTime: 1, ServerNow: 2, ClientNow: 3, SyncedAt: 4}
	require.NoError(t, store.Save(ctx, "a/b c:d", want))

	snap, err := store.Load(ctx, "a/b c:d")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, want, *snap)

	// The key never escapes the snapshot directory.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a_b_c_d.json", entries[0].Name())
}

func TestFileStoreToleratesCorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "launch.json"), []byte("{not json"), 0o644))

	snap, err := store.Load(ctx, "launch")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestMemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	snap, err := store.Load(ctx, "launch")
	require.NoError(t, err)
	assert.Nil(t, snap)

	want := countdown.Snapshot{ServerEndTime: 1, ServerNow: 2, ClientNow: 3, SyncedAt: 4}
	require.NoError(t, store.Save(ctx, "launch", want))

	snap, err = store.Load(ctx, "launch")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, want, *snap)

	require.NoError(t, store.Clear(ctx, "launch"))
	snap, err = store.Load(ctx, "launch")
	require.NoError(t, err)
	assert.Nil(t, snap)
}
