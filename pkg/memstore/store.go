// Package memstore is the persistent store collaborator: it durably holds
// identity/experience/knowledge entries and the router's weights and
// correction log, behind a small transactional KV-with-secondary-index
// interface. The storage engine itself (SQLite via modernc.org/sqlite) is
// an implementation detail; callers only see Store.
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Collection names the three record collections. The fourth logical slot,
// the router's, is held as the named blobs below.
type Collection string

const (
	CollIdentity   Collection = "identity"
	CollExperience Collection = "experience"
	CollKnowledge  Collection = "knowledge"
)

// Router blob names, held in a dedicated table rather than a Collection
// since they are two singleton named values, not a keyed set of records.
const (
	BlobWeights     = "weights"
	BlobCorrections = "corrections"
)

// Record is one stored entry: an opaque JSON-encoded Value plus an optional
// IndexKey used for secondary-index lookup (e.g. an identity fact's Key).
type Record struct {
	ID       string
	IndexKey string
	Value    []byte
}

// Store is the persistent collaborator consumed by every layer adapter.
type Store interface {
	Init(ctx context.Context) error

	Put(ctx context.Context, coll Collection, rec Record) error
	Get(ctx context.Context, coll Collection, id string) (Record, error)
	Delete(ctx context.Context, coll Collection, id string) error
	Clear(ctx context.Context, coll Collection) error
	Count(ctx context.Context, coll Collection) (int, error)
	All(ctx context.Context, coll Collection) ([]Record, error)
	ByIndexKey(ctx context.Context, coll Collection, key string) ([]Record, error)

	PutBlob(ctx context.Context, name string, value []byte) error
	GetBlob(ctx context.Context, name string) ([]byte, error)

	Close() error
}

// SQLiteStore implements Store on top of a single SQLite database file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open creates a SQLiteStore backed by path. Call Init before use.
func Open(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database connection, tunes pragmas, and creates tables.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrapError("init", ErrStoreClosed)
	}

	// WAL for concurrent readers, NORMAL sync as a speed/durability balance,
	// a generous busy timeout so a decay sweep never trips over a concurrent
	// write, and a small page cache - this is a single-user agent memory,
	// not a multi-tenant database.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=cache_size(-2000)", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return wrapError("init", fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(2 * time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return wrapError("init", fmt.Errorf("enable foreign keys: %w", err))
	}

	s.db = db
	if err := s.createTables(ctx); err != nil {
		return wrapError("init", err)
	}
	return nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		index_key TEXT,
		value BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
	CREATE INDEX IF NOT EXISTS idx_records_index_key ON records(collection, index_key);

	CREATE TABLE IF NOT EXISTS blobs (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Put inserts or replaces a record.
func (s *SQLiteStore) Put(ctx context.Context, coll Collection, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wrapError("put", ErrStoreClosed)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, index_key, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET index_key = excluded.index_key, value = excluded.value`,
		string(coll), rec.ID, rec.IndexKey, rec.Value)
	if err != nil {
		return wrapError("put", err)
	}
	return nil
}

// Get retrieves a single record by ID.
func (s *SQLiteStore) Get(ctx context.Context, coll Collection, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, wrapError("get", ErrStoreClosed)
	}

	var rec Record
	rec.ID = id
	row := s.db.QueryRowContext(ctx, `SELECT index_key, value FROM records WHERE collection = ? AND id = ?`, string(coll), id)
	var indexKey sql.NullString
	if err := row.Scan(&indexKey, &rec.Value); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, wrapError("get", ErrNotFound)
		}
		return Record{}, wrapError("get", err)
	}
	rec.IndexKey = indexKey.String
	return rec, nil
}

// Delete removes a record by ID. Deleting a missing ID is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, coll Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wrapError("delete", ErrStoreClosed)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, string(coll), id); err != nil {
		return wrapError("delete", err)
	}
	return nil
}

// Clear removes every record in a collection.
func (s *SQLiteStore) Clear(ctx context.Context, coll Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wrapError("clear", ErrStoreClosed)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, string(coll)); err != nil {
		return wrapError("clear", err)
	}
	return nil
}

// Count returns the number of records in a collection.
func (s *SQLiteStore) Count(ctx context.Context, coll Collection) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, wrapError("count", ErrStoreClosed)
	}
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, string(coll))
	if err := row.Scan(&n); err != nil {
		return 0, wrapError("count", err)
	}
	return n, nil
}

// All returns every record in a collection, in no particular order.
func (s *SQLiteStore) All(ctx context.Context, coll Collection) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("all", ErrStoreClosed)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, index_key, value FROM records WHERE collection = ?`, string(coll))
	if err != nil {
		return nil, wrapError("all", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByIndexKey returns every record whose IndexKey matches key exactly.
func (s *SQLiteStore) ByIndexKey(ctx context.Context, coll Collection, key string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("by_index_key", ErrStoreClosed)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, index_key, value FROM records WHERE collection = ? AND index_key = ?`, string(coll), key)
	if err != nil {
		return nil, wrapError("by_index_key", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var indexKey sql.NullString
		if err := rows.Scan(&rec.ID, &indexKey, &rec.Value); err != nil {
			return nil, wrapError("scan", err)
		}
		rec.IndexKey = indexKey.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("scan", err)
	}
	return out, nil
}

// PutBlob stores a named router blob (weights or corrections).
func (s *SQLiteStore) PutBlob(ctx context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wrapError("put_blob", ErrStoreClosed)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		name, value)
	if err != nil {
		return wrapError("put_blob", err)
	}
	return nil
}

// GetBlob retrieves a named router blob. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetBlob(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("get_blob", ErrStoreClosed)
	}
	var value []byte
	row := s.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE name = ?`, name)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, wrapError("get_blob", ErrNotFound)
		}
		return nil, wrapError("get_blob", err)
	}
	return value, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
