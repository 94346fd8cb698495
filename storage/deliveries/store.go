// Package deliveries keeps an audit trail of gateway callback deliveries so
// operators can correlate gateway retries against order transitions. Writes
// are best effort: a failed audit insert never fails the callback itself.
package deliveries

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists webhook delivery records in a local sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initialises) the delivery log at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	const stmt = `CREATE TABLE IF NOT EXISTS webhook_deliveries (
        id TEXT PRIMARY KEY,
        merchant_order_id TEXT NOT NULL,
        outcome TEXT NOT NULL,
        http_status INTEGER NOT NULL,
        received_at TIMESTAMP NOT NULL
    );`
	_, err := s.db.Exec(stmt)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Record is one processed (or rejected) webhook delivery.
type Record struct {
	ID              string
	MerchantOrderID string
	Outcome         string
	HTTPStatus      int
	ReceivedAt      time.Time
}

func (s *Store) Insert(ctx context.Context, rec Record) error {
	const stmt = `INSERT INTO webhook_deliveries(id, merchant_order_id, outcome, http_status, received_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, rec.ID, rec.MerchantOrderID, rec.Outcome, rec.HTTPStatus, rec.ReceivedAt.UTC())
	return err
}

// Recent returns up to limit deliveries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, merchant_order_id, outcome, http_status, received_at FROM webhook_deliveries ORDER BY received_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.MerchantOrderID, &rec.Outcome, &rec.HTTPStatus, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
