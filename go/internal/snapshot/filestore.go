package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcdev12/tickdown/go/internal/countdown"
	"github.com/rs/zerolog/log"
)

// FileStore persists one JSON snapshot file per countdown key under a
// directory. Writes go through a temp file and rename so a crash never
// leaves a torn snapshot; a corrupt file is treated as absent.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) pathFor(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// sanitizeKey maps an arbitrary countdown key onto a safe filename.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}

// Load reads the snapshot for key. Missing or unreadable files are reported
// as absent, not as errors - a bad cache must never block a live sync.
func (s *FileStore) Load(ctx context.Context, key string) (*countdown.Snapshot, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap countdown.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("corrupt snapshot file - treating as absent")
		return nil, nil
	}
	return &snap, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(ctx context.Context, key string, snap countdown.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := s.pathFor(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}

// Clear removes the snapshot file for key.
func (s *FileStore) Clear(ctx context.Context, key string) error {
	err := os.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot file: %w", err)
	}
	return nil
}
