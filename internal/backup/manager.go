// Package backup takes periodic snapshots of the database file with
// keep-last pruning, bounding the recovery point after a crash or a bad
// clear_logs call.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/magpie/internal/diag"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24
)

// Snapshotter is the store contract backups need.
type Snapshotter interface {
	SnapshotTo(dstPath string) error
	DBPath() string
}

// Config holds backup parameters.
type Config struct {
	Enabled  bool
	Interval time.Duration
	LocalDir string
	KeepLast int
}

// Manager runs periodic local snapshots.
type Manager struct {
	store Snapshotter
	cfg   Config

	done chan struct{}
	wg   sync.WaitGroup
}

// NewManager initializes the backup manager. It returns nil when backups
// are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, fmt.Errorf("backup: db path is empty (in-memory store)")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: snapshot-dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create snapshot-dir: %w", err)
	}

	m := &Manager{
		store: store,
		cfg:   cfg,
		done:  make(chan struct{}),
	}

	// Startup snapshot to reduce the recovery point after restarts.
	if err := m.RunOnce(); err != nil {
		diag.Errorf("Backup", "startup snapshot failed: %v", err)
	}

	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RunOnce(); err != nil {
				diag.Errorf("Backup", "periodic snapshot failed: %v", err)
			}
		case <-m.done:
			return
		}
	}
}

// RunOnce creates one local snapshot and prunes old copies.
func (m *Manager) RunOnce() error {
	fileName := fmt.Sprintf("magpie-%s.db", time.Now().UTC().Format("20060102-150405"))
	localPath := filepath.Join(m.cfg.LocalDir, fileName)

	if err := m.store.SnapshotTo(localPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	diag.Logf("Backup", "created snapshot %s", localPath)

	if err := pruneLocalBackups(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return fmt.Errorf("prune local backups: %w", err)
	}
	return nil
}

// Stop terminates the periodic backup loop.
func (m *Manager) Stop() {
	close(m.done)
	m.wg.Wait()
}

func pruneLocalBackups(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(localDir, "magpie-*.db"))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		// timestamp is embedded in filename and lexical sort matches chronology
		return matches[i] > matches[j]
	})

	for _, oldPath := range matches[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
