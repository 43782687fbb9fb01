// Package duckdb stores tables in an embedded DuckDB database file.
//
// It is the analytics-friendly twin of the sqlite backend: same load
// semantics, columnar storage.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/ivoytov/forqloz/internal/schema"
	"github.com/ivoytov/forqloz/internal/storage"
)

const (
	maxParams    = 32766
	maxBatchRows = 1000
)

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("duckdb", New)
}

// New opens (or creates) the DuckDB file at cfg.DSN. An empty DSN opens an
// in-memory database.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) ReplaceTable(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, buildDropTableSQL(t.Name)); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", t.Name, err)
	}
	if _, err := tx.ExecContext(ctx, buildCreateTableSQL(t)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", t.Name, err)
	}

	cols := t.ColumnNames()
	per := storage.BatchRows(len(cols), maxParams, maxBatchRows)
	args := make([]any, 0, per*len(cols))

	var inserted int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		args = args[:0]
		for i, row := range rows[start:end] {
			if len(row) != len(cols) {
				return 0, fmt.Errorf("insert %s: row %d has %d values, want %d", t.Name, start+i, len(row), len(cols))
			}
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, buildInsertSQL(t.Name, cols, end-start), args...); err != nil {
			return 0, fmt.Errorf("insert %s: %w", t.Name, err)
		}
		inserted += int64(end - start)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *Repo) EnsureIndexes(ctx context.Context, indexes []storage.IndexSpec) error {
	for _, ix := range indexes {
		q, err := buildCreateIndexSQL(ix)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index %s: %w", ix.Name, err)
		}
	}
	return nil
}

func duckType(t schema.ColumnType) string {
	switch t {
	case schema.Integer:
		return "BIGINT"
	case schema.Real:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func ident(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func identList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = ident(c)
	}
	return strings.Join(out, ", ")
}

func buildDropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + ident(table)
}

func buildCreateTableSQL(t storage.TableSpec) string {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, ident(c.Name)+" "+duckType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", ident(t.Name), strings.Join(defs, ", "))
}

func buildInsertSQL(table string, columns []string, nrows int) string {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	tuples := make([]string, nrows)
	for i := range tuples {
		tuples[i] = tuple
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", ident(table), identList(columns), strings.Join(tuples, ", "))
}

func buildCreateIndexSQL(ix storage.IndexSpec) (string, error) {
	if ix.Name == "" || ix.Table == "" || len(ix.Columns) == 0 {
		return "", fmt.Errorf("duckdb: incomplete index spec %+v", ix)
	}
	kw := "INDEX"
	if ix.Unique {
		kw = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kw, ident(ix.Name), ident(ix.Table), identList(ix.Columns)), nil
}
