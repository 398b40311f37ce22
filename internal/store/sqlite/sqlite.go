// Package sqlite persists trades and observed prices in a local SQLite
// database.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the database at path in WAL mode and creates the schema.
// Use ":memory:" only with a single connection; tests use a temp file.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_strategy TEXT    NOT NULL,
			exit_strategy  TEXT    NOT NULL,
			period_ns      INTEGER NOT NULL,
			profit         TEXT,
			closed         INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_trades_open ON trades(entry_strategy, closed);

		CREATE TABLE IF NOT EXISTS trade_orders (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_id   INTEGER NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
			type       TEXT    NOT NULL,
			signal     TEXT    NOT NULL,
			price      TEXT    NOT NULL,
			volume     TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			status     TEXT    NOT NULL,
			asset_code TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS prices (
			asset TEXT    NOT NULL,
			ts    INTEGER NOT NULL,
			price TEXT    NOT NULL,
			PRIMARY KEY (asset, ts)
		);
	`)
	return err
}
