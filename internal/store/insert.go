package store

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/magpie/internal/diag"
	"github.com/tinytelemetry/magpie/internal/model"
)

// Insert persists one record, assigns its ID, stamps ReceivedAt with the
// current time unless the caller already set a non-zero value, updates the
// full-text index (via triggers), and notifies every subscriber with the
// fully populated record before returning. Subscriber failures are reported
// to the diagnostic sink and swallowed; they never abort the insert.
func (s *Store) Insert(rec model.LogRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	receivedAt := rec.ReceivedAt
	if receivedAt == 0 {
		receivedAt = float64(time.Now().UnixNano()) / 1e9
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (source, category, verbosity, message, timestamp, frame, file, line, received_at, session_id, instance_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Source, rec.Category, int(rec.Severity), rec.Message, rec.Timestamp,
		nullInt64(rec.Frame), nullString(rec.File), nullInt(rec.Line),
		receivedAt, rec.SessionID, rec.InstanceID,
	)
	if err != nil {
		return 0, storageErr("insert", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert id", err)
	}

	rec.ID = id
	rec.ReceivedAt = receivedAt

	for _, cb := range s.subscribers {
		s.notify(cb, rec)
	}

	return id, nil
}

// notify runs one subscriber, containing panics so a misbehaving observer
// cannot take down ingest.
func (s *Store) notify(cb model.Subscriber, rec model.LogRecord) {
	defer func() {
		if r := recover(); r != nil {
			diag.Error("Store", fmt.Sprintf("subscriber panic: %v", r))
		}
	}()
	cb(rec)
}

// Subscribe registers a callback for post-insert notification. Callbacks
// fire in registration order, synchronously, while the store guard is held,
// so they must be fast; wrap slow observers in their own mailbox.
func (s *Store) Subscribe(cb model.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, cb)
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
