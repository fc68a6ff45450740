package receipt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Store implementations when no receipt exists
// for the given key.
var ErrNotFound = errors.New("receipt: not found")

// Store indexes receipts by the decision that produced them, so the gate
// can detect a retried decision and avoid a second service dispatch.
type Store interface {
	Get(ctx context.Context, decisionID string) (*Receipt, error)
	Store(ctx context.Context, decisionID string, r *Receipt) error
}

// MemoryStore is the default in-process Store, sufficient for a single
// gate instance's lifetime.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*Receipt
}

// NewMemoryStore builds an empty in-memory receipt index.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Receipt)}
}

func (m *MemoryStore) Get(_ context.Context, decisionID string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[decisionID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) Store(_ context.Context, decisionID string, r *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[decisionID] = r
	return nil
}

// SQLiteStore is a durable Store for processes that need receipts to
// survive a restart, using the pure-Go modernc.org/sqlite driver (no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a SQLite database at path and
// ensures the receipts table exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receipt: open sqlite: %w", err)
	}
	const schema = `
		CREATE TABLE IF NOT EXISTS receipts (
			decision_id TEXT PRIMARY KEY,
			body TEXT NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("receipt: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, decisionID string) (*Receipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM receipts WHERE decision_id = ?`, decisionID)
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("receipt: query: %w", err)
	}
	var r Receipt
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("receipt: decode stored receipt: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) Store(ctx context.Context, decisionID string, r *Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("receipt: encode receipt: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (decision_id, body) VALUES (?, ?)
		ON CONFLICT(decision_id) DO UPDATE SET body = excluded.body
	`, decisionID, string(body))
	if err != nil {
		return fmt.Errorf("receipt: insert: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
