package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInMemoryStore indicates the store uses an in-memory DB and cannot be
// snapshotted.
var ErrInMemoryStore = errors.New("store: in-memory store cannot be snapshotted")

// SnapshotTo writes a consistent copy of the database to dstPath using
// VACUUM INTO. The copy is a compacted standalone database file; WAL
// content is folded in. Serialized with all other store operations.
func (s *Store) SnapshotTo(dstPath string) error {
	if s.dbPath == "" {
		return ErrInMemoryStore
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	// VACUUM INTO refuses to overwrite; clear a stale partial snapshot.
	if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dstPath); err != nil {
		return storageErr("snapshot", err)
	}
	return nil
}
