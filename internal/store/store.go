package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tinytelemetry/magpie/internal/model"
	"github.com/tinytelemetry/magpie/internal/store/migrate"
)

// ErrStorage marks persistence or index failures raised out of the store.
// Callers that need the category can test for it with errors.Is.
var ErrStorage = errors.New("storage error")

// ErrInput marks a caller-supplied value the store rejects, such as a
// syntactically invalid full-text expression. Never raised for engine
// failures.
var ErrInput = errors.New("input error")

func storageErr(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, ErrStorage, err)
}

// Store is the durable, indexed, full-text-searchable log repository.
// A single mutex serializes every operation; subscribers run inside the
// guard so observers see inserts in serialization order.
type Store struct {
	db           *sql.DB
	mu           sync.Mutex
	dbPath       string
	subscribers  []model.Subscriber
	QueryTimeout time.Duration
}

// NewStore opens or creates the SQLite database at dbPath.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ":memory:"
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One connection: the store serializes access itself, and a single
	// conn keeps the in-memory database coherent across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the configured database path. Empty means in-memory.
func (s *Store) DBPath() string {
	return s.dbPath
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}
