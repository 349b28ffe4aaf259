package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"FundMe/internal/model"
)

const pgTimeout = 5 * time.Second

// PostgresRecorder persists ledger history to PostgreSQL.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// Compile-time interface checks.
var (
	_ Recorder = (*PostgresRecorder)(nil)
	_ Recorder = (*SQLiteRecorder)(nil)
	_ Recorder = (*NoopRecorder)(nil)
)

// NewPostgresRecorder connects to dsn and creates the tables if needed.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("postgres recorder connected: %s@%s", config.ConnConfig.Database, config.ConnConfig.Host)
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id        UUID PRIMARY KEY,
			seq       BIGSERIAL,
			tx_hash   TEXT NOT NULL,
			method    TEXT NOT NULL,
			sender    TEXT NOT NULL,
			recipient TEXT NOT NULL,
			value     NUMERIC(78, 0) NOT NULL,
			gas_used  BIGINT NOT NULL,
			fee       NUMERIC(78, 0) NOT NULL,
			status    TEXT NOT NULL,
			error     TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS ledger_events (
			id        UUID PRIMARY KEY,
			seq       BIGSERIAL,
			tx_hash   TEXT NOT NULL,
			kind      TEXT NOT NULL,
			account   TEXT NOT NULL,
			amount    NUMERIC(78, 0) NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_account ON ledger_events(account)`,

		`CREATE TABLE IF NOT EXISTS price_checks (
			id           UUID PRIMARY KEY,
			feed         TEXT NOT NULL,
			answer       TEXT NOT NULL,
			decimals     SMALLINT NOT NULL,
			usd_per_unit NUMERIC(78, 0) NOT NULL,
			ok           BOOLEAN NOT NULL,
			error        TEXT NOT NULL,
			timestamp    TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordReceipt stores the transaction and its events atomically.
func (r *PostgresRecorder) RecordReceipt(rcpt *model.Receipt) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := transactionRow(rcpt)
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			id, tx_hash, method, sender, recipient, value, gas_used, fee, status, error, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9, $10, $11)`,
		row.ID, row.TxHash, row.Method, row.From, row.To, row.Value,
		int64(row.GasUsed), row.Fee, row.Status, row.Error, row.Timestamp,
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range eventRows(rcpt) {
		batch.Queue(`
			INSERT INTO ledger_events (id, tx_hash, kind, account, amount, timestamp)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
			e.ID, e.TxHash, e.Kind, e.Account, e.Amount, e.Timestamp)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRecorder) RecordPriceCheck(pc *model.PriceCheck) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	row := priceCheckRow(pc)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO price_checks (id, feed, answer, decimals, usd_per_unit, ok, error, timestamp)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`,
		row.ID, row.Feed, row.Answer, int16(row.Decimals), row.USDPerUnit, row.OK, row.Error, row.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert price check: %w", err)
	}
	return nil
}

// RecentTransactions returns up to limit transactions, newest first.
func (r *PostgresRecorder) RecentTransactions(limit int) ([]TransactionRow, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tx_hash, method, sender, recipient, value::text, gas_used, fee::text, status, error, timestamp
		FROM transactions ORDER BY timestamp DESC, seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []TransactionRow
	for rows.Next() {
		var (
			row     TransactionRow
			gasUsed int64
		)
		if err := rows.Scan(&row.ID, &row.TxHash, &row.Method, &row.From, &row.To, &row.Value,
			&gasUsed, &row.Fee, &row.Status, &row.Error, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		row.GasUsed = uint64(gasUsed)
		out = append(out, row)
	}
	return out, rows.Err()
}

// EventsFor returns the recorded events of account in insertion order.
func (r *PostgresRecorder) EventsFor(account string) ([]EventRow, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pgTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tx_hash, kind, account, amount::text, timestamp
		FROM ledger_events WHERE account = $1 ORDER BY seq`, account)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var row EventRow
		if err := rows.Scan(&row.ID, &row.TxHash, &row.Kind, &row.Account, &row.Amount, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (r *PostgresRecorder) Close() error {
	log.Info("closing postgres recorder")
	r.pool.Close()
	return nil
}
