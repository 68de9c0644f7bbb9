// Package store provides SQLite-backed persistence for convertible notes with
// optimistic concurrency control.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/seedround/noteledger/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id                TEXT PRIMARY KEY,
	principal         TEXT NOT NULL,
	interest_rate     TEXT NOT NULL,
	compounding       TEXT NOT NULL,
	issued_at         DATETIME NOT NULL,
	maturity_date     DATETIME NOT NULL,
	discount_rate     TEXT,
	valuation_cap     TEXT,
	qf_threshold      TEXT,
	auto_conversion   INTEGER NOT NULL DEFAULT 0,
	accrued_interest  TEXT NOT NULL DEFAULT '0',
	last_accrual_date DATETIME NOT NULL,
	status            TEXT NOT NULL DEFAULT 'ACTIVE',
	conversion_price  TEXT,
	version           INTEGER NOT NULL DEFAULT 1,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_status ON notes(status);
CREATE INDEX IF NOT EXISTS idx_notes_maturity ON notes(status, maturity_date);
`

// NoteStore defines the persistence port for note ledger operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteStore interface {
	Insert(ctx context.Context, n *models.ConvertibleNote) error
	Get(ctx context.Context, id string) (*models.ConvertibleNote, error)
	Save(ctx context.Context, n *models.ConvertibleNote) error
	List(ctx context.Context, limit, offset int, status models.Status) ([]models.ConvertibleNote, int, error)
	ListActive(ctx context.Context) ([]models.ConvertibleNote, error)
	ListMaturing(ctx context.Context, now time.Time, within time.Duration) ([]models.ConvertibleNote, error)
	Close() error
}

// Verify *DB satisfies NoteStore at compile time.
var _ NoteStore = (*DB)(nil)

// DB wraps a sql.DB with note-ledger operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
