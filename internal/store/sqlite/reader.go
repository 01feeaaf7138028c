package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the script registry and trade ledger.
type Reader struct {
	db *sql.DB
}

// NewReader opens a read-only-intent SQLite connection.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// LoadScript returns a script's stored source, or ("", false) if unknown.
func (r *Reader) LoadScript(id string) (string, bool, error) {
	var source string
	err := r.db.QueryRow(`SELECT source FROM scripts WHERE id = ?`, id).Scan(&source)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite load script %s: %w", id, err)
	}
	return source, true, nil
}

// ScriptAudit is a script registry row's audit fields, without its source.
type ScriptAudit struct {
	ID              string
	ContentHash     string
	DiagnosticCount int
	UpdatedAt       int64
}

// LoadScriptAudit returns a script's content hash, diagnostic count, and
// last-update time, or ok=false if id is unknown.
func (r *Reader) LoadScriptAudit(id string) (ScriptAudit, bool, error) {
	var a ScriptAudit
	a.ID = id
	err := r.db.QueryRow(`SELECT content_hash, diagnostic_count, updated_at FROM scripts WHERE id = ?`, id).
		Scan(&a.ContentHash, &a.DiagnosticCount, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return ScriptAudit{}, false, nil
	}
	if err != nil {
		return ScriptAudit{}, false, fmt.Errorf("sqlite load script audit %s: %w", id, err)
	}
	return a, true, nil
}

// ListScriptIDs returns every registered script id.
func (r *Reader) ListScriptIDs() ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM scripts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list scripts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite scan script id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TradeRow is one ledger row as read back from SQLite.
type TradeRow struct {
	ScriptID   string
	TradeID    string
	Direction  string
	EntryPrice float64
	ExitPrice  float64
	EntryTime  int64
	ExitTime   int64
	Size       float64
	PnL        float64
}

// ReadTrades returns every trade recorded for a script, oldest first.
func (r *Reader) ReadTrades(scriptID string) ([]TradeRow, error) {
	rows, err := r.db.Query(`
		SELECT script_id, trade_id, direction, entry_price, exit_price, entry_time, exit_time, size, pnl
		FROM trades WHERE script_id = ? ORDER BY exit_time ASC
	`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("sqlite read trades %s: %w", scriptID, err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.ScriptID, &t.TradeID, &t.Direction, &t.EntryPrice, &t.ExitPrice, &t.EntryTime, &t.ExitTime, &t.Size, &t.PnL); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
