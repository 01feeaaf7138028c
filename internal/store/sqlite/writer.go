// Package sqlite persists the script registry and trade ledger: the source
// text of every compiled script and every closed trade any running script's
// strategy book produced. It follows the teacher's single-writer pattern —
// one *sql.DB, WAL mode, one connection, schema created on open.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"barlang/internal/strategy"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to the SQLite database file, e.g. "data/barlang.db"
}

// Writer is a single-connection SQLite writer for scripts and trades.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens (creating if needed) the SQLite database in WAL mode and
// ensures its schema exists.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scripts (
			id               TEXT PRIMARY KEY,
			source           TEXT    NOT NULL,
			content_hash     TEXT    NOT NULL,
			diagnostic_count INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trades (
			row_id      INTEGER PRIMARY KEY AUTOINCREMENT,
			script_id   TEXT    NOT NULL,
			trade_id    TEXT    NOT NULL,
			direction   TEXT    NOT NULL,
			entry_price REAL    NOT NULL,
			exit_price  REAL    NOT NULL,
			entry_time  INTEGER NOT NULL,
			exit_time   INTEGER NOT NULL,
			size        REAL    NOT NULL,
			pnl         REAL    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_trades_script_id ON trades(script_id);
	`)
	return err
}

// SaveScript upserts a script's source text, content hash, and diagnostic
// count, keyed by its caller-assigned id.
func (w *Writer) SaveScript(id, source, contentHash string, diagnosticCount int) error {
	_, err := w.db.Exec(`
		INSERT INTO scripts (id, source, content_hash, diagnostic_count, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			content_hash = excluded.content_hash,
			diagnostic_count = excluded.diagnostic_count,
			updated_at = excluded.updated_at
	`, id, source, contentHash, diagnosticCount, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save script %s: %w", id, err)
	}
	return nil
}

// DeleteScript removes a script from the registry.
func (w *Writer) DeleteScript(id string) error {
	_, err := w.db.Exec(`DELETE FROM scripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite delete script %s: %w", id, err)
	}
	return nil
}

// RecordTrade appends a closed trade to the ledger for the script scriptID.
func (w *Writer) RecordTrade(scriptID string, tr strategy.Trade) error {
	dir := "long"
	if tr.Direction == strategy.Short {
		dir = "short"
	}
	_, err := w.db.Exec(`
		INSERT INTO trades (script_id, trade_id, direction, entry_price, exit_price, entry_time, exit_time, size, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scriptID, tr.ID, dir, tr.EntryPrice, tr.ExitPrice, tr.EntryTime, tr.ExitTime, tr.Size, tr.PnL)
	if err != nil {
		return fmt.Errorf("sqlite record trade %s: %w", scriptID, err)
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
