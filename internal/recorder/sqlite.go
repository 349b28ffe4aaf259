package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"FundMe/internal/model"
)

// SQLiteRecorder persists ledger history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers don't block the chain listener.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id        TEXT PRIMARY KEY,
			tx_hash   TEXT NOT NULL,
			method    TEXT,
			sender    TEXT NOT NULL,
			recipient TEXT NOT NULL,
			value     TEXT NOT NULL,
			gas_used  INTEGER NOT NULL,
			fee       TEXT NOT NULL,
			status    TEXT NOT NULL,
			error     TEXT,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS ledger_events (
			id        TEXT PRIMARY KEY,
			tx_hash   TEXT NOT NULL,
			kind      TEXT NOT NULL,
			account   TEXT NOT NULL,
			amount    TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_account ON ledger_events(account)`,

		`CREATE TABLE IF NOT EXISTS price_checks (
			id           TEXT PRIMARY KEY,
			feed         TEXT,
			answer       TEXT,
			decimals     INTEGER,
			usd_per_unit TEXT,
			ok           INTEGER NOT NULL,
			error        TEXT,
			timestamp    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_checks_ts ON price_checks(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordReceipt stores the transaction and, if it committed, its events in one SQL transaction.
func (r *SQLiteRecorder) RecordReceipt(rcpt *model.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := transactionRow(rcpt)
	if _, err := tx.Exec(`INSERT INTO transactions
		(id, tx_hash, method, sender, recipient, value, gas_used, fee, status, error, timestamp)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		row.ID, row.TxHash, row.Method, row.From, row.To, row.Value,
		row.GasUsed, row.Fee, row.Status, row.Error, row.Timestamp.Unix(),
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	for _, e := range eventRows(rcpt) {
		if _, err := tx.Exec(`INSERT INTO ledger_events
			(id, tx_hash, kind, account, amount, timestamp)
			VALUES (?,?,?,?,?,?)`,
			e.ID, e.TxHash, e.Kind, e.Account, e.Amount, e.Timestamp.Unix(),
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordPriceCheck(pc *model.PriceCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := priceCheckRow(pc)
	_, err := r.db.Exec(`INSERT INTO price_checks
		(id, feed, answer, decimals, usd_per_unit, ok, error, timestamp)
		VALUES (?,?,?,?,?,?,?,?)`,
		row.ID, row.Feed, row.Answer, row.Decimals, row.USDPerUnit, row.OK, row.Error, row.Timestamp.Unix(),
	)
	return err
}

// RecentTransactions returns up to limit transactions, newest first.
func (r *SQLiteRecorder) RecentTransactions(limit int) ([]TransactionRow, error) {
	rows, err := r.db.Query(`SELECT id, tx_hash, method, sender, recipient, value, gas_used, fee, status, error, timestamp
		FROM transactions ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransactionRow
	for rows.Next() {
		var (
			row     TransactionRow
			errText sql.NullString
			ts      int64
		)
		if err := rows.Scan(&row.ID, &row.TxHash, &row.Method, &row.From, &row.To, &row.Value,
			&row.GasUsed, &row.Fee, &row.Status, &errText, &ts); err != nil {
			return nil, err
		}
		row.Error = errText.String
		row.Timestamp = time.Unix(ts, 0)
		out = append(out, row)
	}
	return out, rows.Err()
}

// EventsFor returns the recorded events of account in insertion order.
func (r *SQLiteRecorder) EventsFor(account string) ([]EventRow, error) {
	rows, err := r.db.Query(`SELECT id, tx_hash, kind, account, amount, timestamp
		FROM ledger_events WHERE account = ? ORDER BY rowid`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			row EventRow
			ts  int64
		)
		if err := rows.Scan(&row.ID, &row.TxHash, &row.Kind, &row.Account, &row.Amount, &ts); err != nil {
			return nil, err
		}
		row.Timestamp = time.Unix(ts, 0)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info("closing sqlite recorder")
	return r.db.Close()
}
