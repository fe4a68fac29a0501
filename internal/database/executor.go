package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/seanankenbruck/lab-query/internal/observability"
)

// Row is one result row keyed by column name
type Row = map[string]interface{}

// Executor runs a statement with named placeholders and returns its rows
type Executor interface {
	Execute(ctx context.Context, template string, params map[string]interface{}) ([]Row, error)
}

// PostgresExecutor executes statements against PostgreSQL
type PostgresExecutor struct {
	db      *sql.DB
	timeout time.Duration
	logger  *observability.Logger
}

// NewPostgresExecutor creates an executor; a zero timeout means no limit beyond ctx
func NewPostgresExecutor(db *sql.DB, timeout time.Duration) *PostgresExecutor {
	return &PostgresExecutor{
		db:      db,
		timeout: timeout,
		logger:  observability.NewLogger("executor"),
	}
}

// Execute binds params, runs the statement and scans every row into a map
func (e *PostgresExecutor) Execute(ctx context.Context, template string, params map[string]interface{}) ([]Row, error) {
	start := time.Now()

	query, args, err := BindNamed(template, params)
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		observability.RecordDBMetrics("execute", time.Since(start), 0, err)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	result, err := ScanRows(rows)
	observability.RecordDBMetrics("execute", time.Since(start), len(result), err)
	if err != nil {
		return nil, err
	}

	e.logger.Debug(ctx, "Statement executed", map[string]interface{}{
		"rows":        len(result),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

// Ping checks database connectivity
func (e *PostgresExecutor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// ScanRows reads all rows into maps. []byte values (NUMERIC, TEXT) become strings.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return result, nil
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
