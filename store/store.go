// Package store persists run summaries to SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
)

// Driver selects the database backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

const (
	defaultSQLitePath  = "metas.db"
	defaultPostgresDSN = "postgres://localhost/metas?sslmode=disable"
)

var sqlOpen = sql.Open

var schema = map[Driver][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			year INTEGER NOT NULL,
			files INTEGER NOT NULL,
			skipped INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS goal_results (
			run_id TEXT NOT NULL REFERENCES runs(id),
			row_index INTEGER NOT NULL,
			source TEXT NOT NULL,
			court_code TEXT NOT NULL,
			branch_label TEXT NOT NULL,
			goal TEXT NOT NULL,
			value REAL,
			PRIMARY KEY (run_id, row_index, goal)
		)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			year INTEGER NOT NULL,
			files INTEGER NOT NULL,
			skipped INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS goal_results (
			run_id TEXT NOT NULL REFERENCES runs(id),
			row_index INTEGER NOT NULL,
			source TEXT NOT NULL,
			court_code TEXT NOT NULL,
			branch_label TEXT NOT NULL,
			goal TEXT NOT NULL,
			value DOUBLE PRECISION,
			PRIMARY KEY (run_id, row_index, goal)
		)`,
	},
}

// DB is an open results database.
type DB struct {
	db     *sql.DB
	driver Driver
}

// Open connects to the database and creates the tables if needed. For
// SQLite the DSN is a file path.
func Open(ctx context.Context, driver Driver, dsn string) (*DB, error) {
	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	case DriverPostgres:
		sqlDriver = "pgx"
		if dsn == "" {
			dsn = defaultPostgresDSN
		}
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	db, err := sqlOpen(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	for _, stmt := range schema[driver] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	return &DB{db: db, driver: driver}, nil
}

// Close closes the connection pool.
func (d *DB) Close() error { return d.db.Close() }

// Run describes one pipeline execution.
type Run struct {
	ID        string
	StartedAt time.Time
	Year      int
	Files     int
	Skipped   int
	// Sources is the input file of each row, parallel to the rows passed to
	// SaveRun. Missing entries are stored as "".
	Sources []string
}

// SaveRun stores the run and every goal of rows in one transaction. Rows are
// keyed by their position, so two files of the same court are both kept. NA is
// stored as NULL; goals absent from a row are not stored.
func (d *DB) SaveRun(ctx context.Context, run Run, rows []goals.Row) (retErr error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		d.rebind(`INSERT INTO runs(id, started_at, year, files, skipped) VALUES(?,?,?,?,?)`),
		run.ID, run.StartedAt.UTC().Format(time.RFC3339), run.Year, run.Files, run.Skipped); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		d.rebind(`INSERT INTO goal_results(run_id, row_index, source, court_code, branch_label, goal, value) VALUES(?,?,?,?,?,?,?)`))
	if err != nil {
		return fmt.Errorf("prepare goal insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		var source string
		if i < len(run.Sources) {
			source = run.Sources[i]
		}
		for key, v := range r.Goals {
			var value sql.NullFloat64
			value.Float64, value.Valid = v.Float()
			if _, err := stmt.ExecContext(ctx, run.ID, i, source, r.CourtCode, r.Label, key, value); err != nil {
				return fmt.Errorf("insert row %d %s/%s: %w", i, r.CourtCode, key, err)
			}
		}
	}
	return tx.Commit()
}

// StoredResult is one row of goal_results.
type StoredResult struct {
	RowIndex  int
	Source    string
	CourtCode string
	Label     string
	Goal      string
	Value     goals.Result
}

// Results returns the goals stored for runID in row order, then by goal.
func (d *DB) Results(ctx context.Context, runID string) ([]StoredResult, error) {
	rows, err := d.db.QueryContext(ctx,
		d.rebind(`SELECT row_index, source, court_code, branch_label, goal, value FROM goal_results WHERE run_id = ? ORDER BY row_index, goal`),
		runID)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredResult
	for rows.Next() {
		var r StoredResult
		var value sql.NullFloat64
		if err := rows.Scan(&r.RowIndex, &r.Source, &r.CourtCode, &r.Label, &r.Goal, &value); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Value = goals.NA
		if value.Valid {
			r.Value = goals.Value(value.Float64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rebind rewrites '?' placeholders to $n for Postgres.
func (d *DB) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
