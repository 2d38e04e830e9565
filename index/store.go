package index

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a transactional handle on one user's index file.
type Store struct {
	db *sql.DB

	mu sync.Mutex
	txName string
	tx *sql.Tx
	lastID int64
}

// Open opens (creating if absent) the SQLite index file at path and runs
// any outstanding schema upgrades inside a single (deferred) transaction.
// A backup session holds its exclusive data-file lock while doing this.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer per session; avoid sqlite lock contention within the process
	s := &Store{db: db}
	if err := s.upgrade(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Empty reports whether the index has no chunks recorded yet, used by
// session-open validation to distinguish a fresh index
// from a missing one.
func (s *Store) Empty() (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chunk`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("index: count chunks: %w", err)
	}
	return n == 0, nil
}

func (s *Store) upgrade() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("index: begin upgrade: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS backup_meta (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("index: create backup_meta: %w", err)
	}
	version := 0
	row := tx.QueryRow(`SELECT version FROM backup_meta LIMIT 1`)
	switch err := row.Scan(&version); err {
	case nil:
	case sql.ErrNoRows:
		version = 0
	default:
		return fmt.Errorf("index: read schema version: %w", err)
	}

	for version < CurrentSchemaVersion {
		for _, stmt := range upgrades[version] {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("index: upgrade to v%d: %w", version+1, err)
			}
		}
		version++
	}

	if _, err := tx.Exec(`DELETE FROM backup_meta`); err != nil {
		return fmt.Errorf("index: reset backup_meta: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO backup_meta (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("index: stamp schema version: %w", err)
	}
	return tx.Commit()
}

// Begin starts a named transaction. Only one named transaction may be
// active on a Store at a time.
func (s *Store) Begin(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return fmt.Errorf("index: transaction %q already active", s.txName)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("index: begin %q: %w", name, err)
	}
	s.tx = tx
	s.txName = name
	return nil
}

// Commit commits the named transaction, which must be the currently
// active one.
func (s *Store) Commit(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil || s.txName != name {
		return fmt.Errorf("index: commit %q: no such active transaction", name)
	}
	tx := s.tx
	s.tx, s.txName = nil, ""
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit %q: %w", name, err)
	}
	return nil
}

// Rollback rolls back the named transaction, which must be the currently
// active one. Rolling back an already-finished transaction is a no-op.
func (s *Store) Rollback(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return nil
	}
	if s.txName != name {
		return fmt.Errorf("index: rollback %q: no such active transaction", name)
	}
	tx := s.tx
	s.tx, s.txName = nil, ""
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("index: rollback %q: %w", name, err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args...any) (sql.Result, error)
	Query(query string, args...any) (*sql.Rows, error)
	QueryRow(query string, args...any) *sql.Row
}

// conn returns the active named transaction if one is open, else the plain
// database handle, so read APIs work both inside and outside an append.
func (s *Store) conn() querier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// exec runs a statement against the active transaction (or the bare
// connection, if none is active) and records the last insert id.
func (s *Store) exec(query string, args...any) (sql.Result, error) {
	res, err := s.conn().Exec(query, args...)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err == nil {
		s.mu.Lock()
		s.lastID = id
		s.mu.Unlock()
	}
	return res, nil
}

// LastInsertID returns the rowid assigned by the most recent exec-ed
// INSERT, read inside the same transaction as the insert.
func (s *Store) LastInsertID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}
