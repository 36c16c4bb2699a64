package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"rfm-dashboard/internal/models"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Write stores the snapshot and its customer rows in one transaction.
// Writing the same snapshot id twice replaces it.
func (s *SQLiteStore) Write(ctx context.Context, set Set) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM customer_rfm WHERE snapshot_id = ?`, set.SnapshotID); err != nil {
		return "", fmt.Errorf("clear customer rows: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (id, source, created_at, as_of, customers, total_revenue)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		set.SnapshotID, set.Source,
		set.CreatedAt.UTC().Format(time.RFC3339),
		set.CurrentDate.UTC().Format(time.RFC3339),
		len(set.Customers), set.totalRevenue().String(),
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO customer_rfm (snapshot_id, customer_id, recency_days, frequency, monetary,
		   r_score, f_score, m_score, rfm_code, segment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare customer insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range set.Customers {
		_, err := stmt.ExecContext(ctx, set.SnapshotID, c.CustomerID, c.RecencyDays, c.Frequency,
			c.Monetary.String(), c.RScore, c.FScore, c.MScore, c.RFMCode, c.Segment)
		if err != nil {
			return "", fmt.Errorf("insert customer %s: %w", c.CustomerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot saved to SQLite",
		"snapshot_id", set.SnapshotID,
		"customers", len(set.Customers),
		"path", s.path)

	return s.path, nil
}

// Customers returns the stored RFM rows of a snapshot ordered by customer id.
func (s *SQLiteStore) Customers(ctx context.Context, snapshotID string) ([]models.CustomerRFM, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT customer_id, recency_days, frequency, monetary, r_score, f_score, m_score, rfm_code, segment
		 FROM customer_rfm WHERE snapshot_id = ? ORDER BY customer_id`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var out []models.CustomerRFM
	for rows.Next() {
		var (
			c        models.CustomerRFM
			monetary string
		)
		if err := rows.Scan(&c.CustomerID, &c.RecencyDays, &c.Frequency, &monetary,
			&c.RScore, &c.FScore, &c.MScore, &c.RFMCode, &c.Segment); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		if c.Monetary, err = decimal.NewFromString(monetary); err != nil {
			return nil, fmt.Errorf("parse monetary for %s: %w", c.CustomerID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SnapshotIDs lists stored snapshots, newest first.
func (s *SQLiteStore) SnapshotIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM snapshots ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
