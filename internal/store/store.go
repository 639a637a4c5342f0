package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/litequery/internal/dberr"
)

// DefaultBusyTimeout is how long SQLite waits on a locked database before
// failing with SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// Store owns the database handle connections are leased from.
// Uses SQLite with WAL mode and a single open connection: one writer at a
// time, statements executed in issuance order.
type Store struct {
	db          *sql.DB
	logger      *slog.Logger
	clock       *Clock
	ids         IDGenerator
	busyTimeout time.Duration
	logStmts    bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger statements and transitions are logged to.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.busyTimeout = d
	}
}

// WithIDGenerator sets the generator for lease and transaction IDs.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithStatementLog makes every leased Conn keep the statements it executes,
// readable through Conn.Statements. Off by default: the log grows for the
// whole lifetime of a lease.
func WithStatementLog() Option {
	return func(s *Store) {
		s.logStmts = true
	}
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention (default 5 seconds)
//   - Foreign key enforcement
//
// The pool is limited to one connection, so a leased Conn has exclusive use
// of the database until it is released.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		logger:      slog.Default(),
		clock:       NewClock(),
		ids:         UUIDv7Generator{},
		busyTimeout: DefaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	// An in-memory database lives only as long as its connection.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := applyPragmas(db, s.busyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s.db = db
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - it blocks while a Conn is leased.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Lease borrows the connection. The caller must Release it; until then
// every other Lease blocks.
func (s *Store) Lease(ctx context.Context) (*Conn, error) {
	native, err := s.db.Conn(ctx)
	if err != nil {
		return nil, dberr.Normalize(err)
	}
	c := &Conn{
		store:  s,
		native: native,
		id:     s.ids.Generate(),
	}
	c.tx = &Tx{conn: c}
	s.logger.Debug("connection leased", "lease", c.id)
	return c, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
