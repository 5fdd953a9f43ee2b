package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/tickdown/go/internal/countdown"
)

// PGStore persists snapshots in Postgres, one row per countdown key. Meant
// for server-side deployments where sessions must survive node restarts.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an existing pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS countdown_snapshots (
			key             TEXT PRIMARY KEY,
			server_end_time BIGINT NOT NULL,
			server_now      BIGINT NOT NULL,
			client_now      BIGINT NOT NULL,
			synced_at       BIGINT NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure snapshot schema: %w", err)
	}
	return nil
}

// Load returns the snapshot for key, or (nil, nil) when absent.
func (s *PGStore) Load(ctx context.Context, key string) (*countdown.Snapshot, error) {
	var snap countdown.Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT server_end_time, server_now, client_now, synced_at
		FROM countdown_snapshots
		WHERE key = $1`, key).
		Scan(&snap.ServerEndTime, &snap.ServerNow, &snap.ClientNow, &snap.SyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &snap, nil
}

// Save upserts the snapshot for key.
func (s *PGStore) Save(ctx context.Context, key string, snap countdown.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO countdown_snapshots (key, server_end_time, server_now, client_now, synced_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (key) DO UPDATE SET
			server_end_time = EXCLUDED.server_end_time,
			server_now      = EXCLUDED.server_now,
			client_now      = EXCLUDED.client_now,
			synced_at       = EXCLUDED.synced_at,
			updated_at      = now()`,
		key, snap.ServerEndTime, snap.ServerNow, snap.ClientNow, snap.SyncedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Clear removes the snapshot row for key.
func (s *PGStore) Clear(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM countdown_snapshots WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}
