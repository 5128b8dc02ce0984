// Package auditlog records the disposition of every envelope the daemon
// processes: a durable forensic trail independent of the plain-JSON
// active/pending policy files, which stay canonical JSON on disk. Backed
// by SQLite in WAL mode with a single-writer connection pool and
// ON CONFLICT DO NOTHING idempotent inserts.
package auditlog

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Log is a durable, append-only record of accepted and rejected envelopes.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database at path, applying WAL mode and
// a single-writer connection pool (SQLite only ever supports one writer;
// forcing the pool to size 1 avoids SQLITE_BUSY under concurrent daemon
// connections).
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Log{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// DB returns the underlying *sql.DB for read-only queries beyond Recent.
func (l *Log) DB() *sql.DB {
	return l.db
}
