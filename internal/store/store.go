// Package store persists reminders, events, the delivery outbox and sync
// tombstones in SQLite. Every record is scoped by owner.
//
// The package does not register a database/sql driver; binaries import
// either github.com/mattn/go-sqlite3 ("sqlite3") or modernc.org/sqlite ("sqlite").
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
)

// DefaultDriver is the cgo driver used by the bot binary
const DefaultDriver = "sqlite3"

// DBFilename is the database file inside the state directory
const DBFilename = "agenda.db"

var (
	// ErrNotFound means no live record matched the owner and id
	ErrNotFound = errors.New("not found")
	// ErrPastDue means a reminder's due time is not after its creation time
	ErrPastDue = errors.New("due time is not in the future")
)

// Store wraps the SQLite connection
type Store struct {
	db   *sql.DB
	path string
	loc  *time.Location
	now  func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures Open
type Option func(*options)

type options struct {
	driver string
	loc    *time.Location
	now    func() time.Time
}

// WithDriver selects the registered database/sql driver name
func WithDriver(name string) Option { return func(o *options) { o.driver = name } }

// WithLocation sets the location read timestamps are converted to
func WithLocation(loc *time.Location) Option { return func(o *options) { o.loc = loc } }

// WithClock overrides time.Now for created/updated stamps
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Open opens or creates the database at path
func Open(path string, opts ...Option) (*Store, error) {
	o := options{driver: DefaultDriver, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(o.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers; the pragmas below bind to it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, loc: o.loc, now: o.now, locks: make(map[string]*sync.Mutex)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// OpenDir opens the default database file inside a state directory
func OpenDir(statePath string, opts ...Option) (*Store, error) {
	return Open(filepath.Join(statePath, DBFilename), opts...)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS counters (
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		next INTEGER NOT NULL,
		PRIMARY KEY (owner_id, kind)
	);

	CREATE TABLE IF NOT EXISTS reminders (
		owner_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		channel_id TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		due_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		fired_at INTEGER,
		PRIMARY KEY (owner_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, due_at);

	CREATE TABLE IF NOT EXISTS events (
		owner_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		title TEXT NOT NULL,
		start_at INTEGER NOT NULL,
		end_at INTEGER,
		all_day INTEGER NOT NULL DEFAULT 0,
		location TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		alarm INTEGER NOT NULL DEFAULT 0,
		external_ref TEXT NOT NULL DEFAULT '',
		sync_key TEXT NOT NULL,
		status TEXT NOT NULL,
		sync_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (owner_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(owner_id, start_at);
	CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_sync_key ON events(sync_key);

	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		attachment BLOB,
		reminder_id INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		sent_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status, id);

	CREATE TABLE IF NOT EXISTS tombstones (
		owner_id TEXT NOT NULL,
		external_ref TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (owner_id, external_ref)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LockUser takes the owner's exclusion scope, blocking until it is free.
// All resolve-then-mutate sequences for one owner run under it.
func (s *Store) LockUser(owner string) (unlock func()) {
	m := s.userLock(owner)
	m.Lock()
	return m.Unlock
}

// TryLockUser takes the owner's exclusion scope only if it is free
func (s *Store) TryLockUser(owner string) (unlock func(), ok bool) {
	m := s.userLock(owner)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}

func (s *Store) userLock(owner string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[owner]
	if !ok {
		m = &sync.Mutex{}
		s.locks[owner] = m
	}
	return m
}

// nextID allocates the next per-owner id for kind inside tx
func nextID(ctx context.Context, tx *sql.Tx, owner, kind string) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO counters (owner_id, kind, next) VALUES (?, ?, 1)
		ON CONFLICT(owner_id, kind) DO UPDATE SET next = next + 1`, owner, kind)
	if err != nil {
		return 0, fmt.Errorf("failed to bump %s counter: %w", kind, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT next FROM counters WHERE owner_id = ? AND kind = ?`, owner, kind).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read %s counter: %w", kind, err)
	}
	return id, nil
}

// withTx runs fn in a transaction, committing on nil error
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func (s *Store) fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).In(s.loc)
}

func (s *Store) fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := s.fromMillis(ms.Int64)
	return &t
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

// Stats summarises one owner's records, or all owners when owner is empty
type Stats struct {
	RemindersScheduled int
	RemindersFired     int
	EventsLive         int
	EventsUnsynced     int
	DeliveriesPending  int
	Tombstones         int
}

// Stats counts live records
func (s *Store) Stats(ctx context.Context, owner string) (Stats, error) {
	var st Stats
	queries := []struct {
		dst *int
		sql string
	}{
		{&st.RemindersScheduled, `SELECT COUNT(*) FROM reminders WHERE status = 'scheduled' AND (? = '' OR owner_id = ?)`},
		{&st.RemindersFired, `SELECT COUNT(*) FROM reminders WHERE status = 'fired' AND (? = '' OR owner_id = ?)`},
		{&st.EventsLive, `SELECT COUNT(*) FROM events WHERE status != 'deleted' AND (? = '' OR owner_id = ?)`},
		{&st.EventsUnsynced, `SELECT COUNT(*) FROM events WHERE status IN ('draft', 'modified') AND (? = '' OR owner_id = ?)`},
		{&st.DeliveriesPending, `SELECT COUNT(*) FROM deliveries WHERE status = 'pending' AND (? = '' OR owner_id = ?)`},
		{&st.Tombstones, `SELECT COUNT(*) FROM tombstones WHERE (? = '' OR owner_id = ?)`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql, owner, owner).Scan(q.dst); err != nil {
			return st, fmt.Errorf("failed to count: %w", err)
		}
	}
	return st, nil
}

// Owners returns every owner with at least one record
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id FROM reminders UNION SELECT owner_id FROM events ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}
