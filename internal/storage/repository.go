// Package storage keeps transactions in a local SQLite file. It serves as a
// backend in place of the remote sheet and as the sink for discrepancy
// reports.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finanzas/internal/core"
	ports "finanzas/internal/sheets"

	_ "modernc.org/sqlite"
)

// Ensure interface conformance
var _ ports.ReadWriter = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Fetch implements sheets.RecordReader. Rows come back in insertion order,
// keyed the way the remote sheet labels its columns.
func (r *SQLiteRepository) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tx_date, description, merchant, amount, category, account, kind
		FROM transactions
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := []core.RawRecord{}
	for rows.Next() {
		var p core.Payload
		var amount string
		if err := rows.Scan(&p.Date, &p.Description, &p.Merchant, &amount, &p.Category, &p.Account, &p.Kind); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		p.Amount = json.Number(amount)
		out = append(out, p.Record())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Submit implements sheets.RecordWriter.
func (r *SQLiteRepository) Submit(ctx context.Context, p core.Payload) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (tx_date, description, merchant, amount, category, account, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Date, p.Description, p.Merchant, p.Amount.String(), p.Category, p.Account, p.Kind)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	id, _ := res.LastInsertId()
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", id,
		"kind", p.Kind,
		"amount", p.Amount.String(),
		"category", p.Category)
	return nil
}

// RecordDiscrepancy stores a failed remote write. Reports for a transaction
// that is already recorded are ignored, so redelivered messages are harmless.
func (r *SQLiteRepository) RecordDiscrepancy(ctx context.Context, d core.Discrepancy) error {
	occurred := d.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO discrepancies (transaction_id, tx_date, description, amount, category, account, kind, error, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO NOTHING`,
		d.TransactionID, d.Payload.Date, d.Payload.Description, d.Payload.Amount.String(),
		d.Payload.Category, d.Payload.Account, d.Payload.Kind, d.Error, occurred.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert discrepancy: %w", err)
	}
	slog.WarnContext(ctx, "Discrepancy recorded",
		"transaction_id", d.TransactionID,
		"error", d.Error)
	return nil
}

// ListDiscrepancies returns the most recent reports first.
func (r *SQLiteRepository) ListDiscrepancies(ctx context.Context, limit int) ([]core.Discrepancy, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, tx_date, description, amount, category, account, kind, error, occurred_at
		FROM discrepancies
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query discrepancies: %w", err)
	}
	defer rows.Close()

	var out []core.Discrepancy
	for rows.Next() {
		var d core.Discrepancy
		var amount, occurred string
		if err := rows.Scan(&d.TransactionID, &d.Payload.Date, &d.Payload.Description, &amount,
			&d.Payload.Category, &d.Payload.Account, &d.Payload.Kind, &d.Error, &occurred); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		if d.OccurredAt, err = time.Parse(time.RFC3339Nano, occurred); err != nil {
			return nil, fmt.Errorf("parse discrepancy time %q: %w", occurred, err)
		}
		d.Payload.Amount = json.Number(amount)
		d.Payload.Merchant = d.Payload.Description
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discrepancies: %w", err)
	}
	return out, nil
}
