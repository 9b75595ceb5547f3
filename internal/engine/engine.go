// Package engine executes expanded queries against the in-memory fact table.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"github.com/JonMunkholm/HRMetricsQA/internal/dataset"
)

// sourceTable holds the loaded dataset. Queries never see it directly: each session
// registers the public table name as a temporary view over it.
const sourceTable = "__dataset"

// Engine owns an in-memory DuckDB database holding one loaded dataset.
// It is safe for concurrent use; every Execute runs on its own connection.
type Engine struct {
	log  *slog.Logger
	db   *sql.DB
	rows int
}

// ExecutionError is a query rejected or failed by the engine. Its message is the engine's, unmodified.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Open creates an in-memory database and loads tbl into it.
func Open(ctx context.Context, log *slog.Logger, tbl *dataset.Table) (*Engine, error) {
	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create duckdb connector: %w", err)
	}
	db := sql.OpenDB(connector)
	// No idle connections: a released connection is closed, dropping its temporary objects.
	db.SetMaxIdleConns(0)

	e := &Engine{log: log, db: db, rows: len(tbl.Rows)}
	if err := e.load(ctx, tbl); err != nil {
		db.Close()
		return nil, err
	}
	if err := e.lockDown(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("engine: dataset loaded", "columns", len(tbl.Columns), "rows", len(tbl.Rows))
	return e, nil
}

func (e *Engine) load(ctx context.Context, tbl *dataset.Table) error {
	if len(tbl.Columns) == 0 {
		return fmt.Errorf("dataset has no columns")
	}

	defs := make([]string, len(tbl.Columns))
	for i, c := range tbl.Columns {
		defs[i] = quoteIdent(c.Name) + " " + c.Type
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(sourceTable), strings.Join(defs, ", "))
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		appender, err := duckdb.NewAppenderFromConn(dc, "", sourceTable)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		values := make([]driver.Value, len(tbl.Columns))
		for n, row := range tbl.Rows {
			for i := range values {
				values[i] = nil
				if i < len(row) {
					values[i] = row[i]
				}
			}
			if err := appender.AppendRow(values...); err != nil {
				appender.Close()
				return fmt.Errorf("failed to append row %d: %w", n+1, err)
			}
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("failed to flush appender: %w", err)
		}
		return nil
	})
}

// lockDown disables file and network access and freezes the database settings,
// so session queries can neither reach outside the process nor reconfigure it.
func (e *Engine) lockDown(ctx context.Context) error {
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}
	return nil
}

// RowCount returns the number of loaded dataset rows.
func (e *Engine) RowCount() int {
	return e.rows
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Execute runs query in a fresh session where table names the loaded dataset.
// The session is discarded afterwards whether or not the query succeeds, and any
// changes the query made are rolled back. query must be exactly one statement; the
// engine refuses to prepare more. Engine failures are returned as *ExecutionError.
func (e *Engine) Execute(ctx context.Context, query, table string) (*RowSet, error) {
	start := time.Now()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	view := fmt.Sprintf("CREATE TEMPORARY VIEW %s AS SELECT * FROM %s", quoteIdent(table), quoteIdent(sourceTable))
	if _, err := tx.ExecContext(ctx, view); err != nil {
		return nil, fmt.Errorf("failed to register table %q: %w", table, err)
	}

	rs, err := collect(ctx, tx, query)
	if err != nil {
		e.log.Info("engine: query failed", "duration", time.Since(start), "error", err)
		return nil, &ExecutionError{Query: query, Err: err}
	}
	e.log.Debug("engine: query executed", "duration", time.Since(start), "rows", len(rs.Rows))
	return rs, nil
}

func collect(ctx context.Context, tx *sql.Tx, query string) (*RowSet, error) {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &RowSet{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, normalizeRow(values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

func scanRow(rows *sql.Rows, numCols int) ([]any, error) {
	values := make([]any, numCols)
	ptrs := make([]any, numCols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
