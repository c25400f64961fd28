// Package index provides the SQLite-backed copy of the dataset and the
// descriptive profiles computed over it.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS sources (
	name        TEXT PRIMARY KEY,
	checksum    TEXT NOT NULL DEFAULT '',
	report_date TEXT,
	header      TEXT NOT NULL DEFAULT '[]',
	rows        INTEGER NOT NULL DEFAULT 0,
	indexed_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS records (
	source       TEXT NOT NULL REFERENCES sources(name) ON DELETE CASCADE,
	line         INTEGER NOT NULL,
	region       TEXT NOT NULL,
	sub_area     TEXT NOT NULL,
	hour         INTEGER NOT NULL CHECK (hour BETWEEN 1 AND 24),
	generation   REAL NOT NULL,
	imports      REAL NOT NULL,
	exports      REAL NOT NULL,
	net_exchange REAL,
	demand       REAL NOT NULL,
	PRIMARY KEY (source, line)
);

CREATE INDEX IF NOT EXISTS idx_records_region ON records(region, sub_area);
CREATE INDEX IF NOT EXISTS idx_records_hour ON records(hour);

CREATE TABLE IF NOT EXISTS failures (
	name      TEXT PRIMARY KEY,
	checksum  TEXT NOT NULL DEFAULT '',
	line      INTEGER NOT NULL DEFAULT 0,
	error     TEXT NOT NULL,
	failed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB with dataset-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
