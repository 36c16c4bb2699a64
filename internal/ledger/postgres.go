package ledger

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the ledger table read when none is configured.
const DefaultTable = "transactions"

// PostgresSource reads a ledger table from PostgreSQL. Column names follow
// the CSV header names; every column is read in text form and coerced by
// the normalizer like a CSV cell.
type PostgresSource struct {
	connString string
	table      string
}

func NewPostgresSource(connString, table string) *PostgresSource {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresSource{connString: connString, table: table}
}

// Name hides credentials from the connection string.
func (s *PostgresSource) Name() string {
	u, err := url.Parse(s.connString)
	if err != nil {
		return "postgres/" + s.table
	}
	u.User = nil
	u.RawQuery = ""
	return u.String() + "#" + s.table
}

func (s *PostgresSource) Read(ctx context.Context) (RawTable, error) {
	pool, err := pgxpool.New(ctx, s.connString)
	if err != nil {
		return RawTable{}, fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return RawTable{}, fmt.Errorf("failed to ping database: %w", err)
	}

	query := fmt.Sprintf("SELECT * FROM %s", pgx.Identifier{s.table}.Sanitize())

	// The simple protocol returns every column in text format.
	rows, err := pool.Query(ctx, query, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return RawTable{}, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	table := RawTable{Header: make([]string, len(fields))}
	for i, fd := range fields {
		table.Header[i] = fd.Name
	}

	for rows.Next() {
		raw := rows.RawValues()
		record := make([]*string, len(raw))
		for i, v := range raw {
			if v != nil {
				record[i] = cell(string(v))
			}
		}
		table.Records = append(table.Records, record)
	}
	if err := rows.Err(); err != nil {
		return RawTable{}, fmt.Errorf("read %s: %w", s.table, err)
	}

	if len(table.Header) == 0 {
		return RawTable{}, ErrEmptySource
	}
	return table, nil
}
