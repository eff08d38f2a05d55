// Package storage persists order reports in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"ordex/internal/reports"
)

// ReportStore handles persistent storage of order reports in SQLite.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a SQLite report store with WAL mode enabled.
func NewReportStore(dbPath string) (*ReportStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			strategy TEXT NOT NULL,
			filled REAL NOT NULL,
			amount REAL NOT NULL,
			closed_at REAL NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS legs (
			internal_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			leg_id TEXT NOT NULL,
			status TEXT NOT NULL,
			filled REAL NOT NULL,
			amount REAL NOT NULL,
			update_attempts INTEGER NOT NULL,
			payload BLOB NOT NULL,
			FOREIGN KEY(order_id) REFERENCES orders(order_id)
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create legs table: %w", err)
	}

	return &ReportStore{db: db}, nil
}

// SaveOrder stores the order report and its leg reports in one
// transaction. Saving the same order again replaces the previous rows.
func (s *ReportStore) SaveOrder(ctx context.Context, order reports.OrderReport, legs []reports.LegReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order report: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (order_id, symbol, side, status, state, strategy, filled, amount, closed_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_id) DO UPDATE SET
		   status=excluded.status, state=excluded.state, filled=excluded.filled,
		   closed_at=excluded.closed_at, payload=excluded.payload`,
		order.OrderID, order.Symbol, order.Side, order.Status, order.State,
		order.Strategy, order.Filled, order.Amount, order.TimestampClose, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order report: %w", err)
	}

	for _, leg := range legs {
		payload, err := json.Marshal(leg)
		if err != nil {
			return fmt.Errorf("failed to marshal leg report: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO legs (internal_id, order_id, leg_id, status, filled, amount, update_attempts, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(internal_id) DO UPDATE SET
			   status=excluded.status, filled=excluded.filled,
			   update_attempts=excluded.update_attempts, payload=excluded.payload`,
			leg.InternalID, leg.OrderID, leg.LegID, leg.Status,
			leg.Filled, leg.Amount, leg.UpdateAttempts, payload,
		)
		if err != nil {
			return fmt.Errorf("failed to insert leg report: %w", err)
		}
	}

	return tx.Commit()
}

// LoadOrder returns the stored report for an order ID, or nil when the
// order was never saved.
func (s *ReportStore) LoadOrder(ctx context.Context, orderID string) (*reports.OrderReport, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM orders WHERE order_id = ?", orderID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order report: %w", err)
	}

	var report reports.OrderReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order report: %w", err)
	}
	return &report, nil
}

// LoadLegs returns the stored leg reports of an order in insertion order.
func (s *ReportStore) LoadLegs(ctx context.Context, orderID string) ([]reports.LegReport, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM legs WHERE order_id = ? ORDER BY rowid ASC", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leg reports: %w", err)
	}
	defer rows.Close()

	var legs []reports.LegReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan leg report: %w", err)
		}
		var leg reports.LegReport
		if err := json.Unmarshal(payload, &leg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal leg report: %w", err)
		}
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

// Close closes the database.
func (s *ReportStore) Close() error {
	return s.db.Close()
}
