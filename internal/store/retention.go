package store

import (
	"sync"
	"time"

	"github.com/tinytelemetry/magpie/internal/diag"
)

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
}

// RetentionCleaner periodically deletes records older than the configured
// retention period, by receive time.
type RetentionCleaner struct {
	store         *Store
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner creates a retention cleaner that deletes expired
// records. Returns nil when retention is 0 (disabled).
func NewRetentionCleaner(store *Store, conf RetentionConfig) *RetentionCleaner {
	if conf.RetentionDays <= 0 {
		return nil
	}

	rc := &RetentionCleaner{
		store:         store,
		retentionDays: conf.RetentionDays,
		done:          make(chan struct{}),
	}

	// Startup cleanup to catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()

	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := time.Now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	deleted, err := rc.store.DeleteReceivedBefore(cutoff)
	if err != nil {
		diag.Errorf("Retention", "cleanup error: %v", err)
		return
	}
	if deleted > 0 {
		diag.Logf("Retention", "deleted %d expired records (older than %d days)", deleted, rc.retentionDays)
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}

// DeleteReceivedBefore removes records whose receive time is before the
// cutoff, regardless of session or source. The full-text index follows via
// the delete trigger.
func (s *Store) DeleteReceivedBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM logs WHERE received_at < ?",
		float64(cutoff.UnixNano())/1e9)
	if err != nil {
		return 0, storageErr("retention delete", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("retention delete count", err)
	}
	return deleted, nil
}
