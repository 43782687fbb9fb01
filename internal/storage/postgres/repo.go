package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivoytov/forqloz/internal/schema"
	"github.com/ivoytov/forqloz/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - Transactional table replacement (DROP + CREATE + COPY in one tx)
  - Idempotent secondary indexes via CREATE INDEX IF NOT EXISTS

Rows are streamed with the COPY protocol, so there is no placeholder limit
to batch around.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// ReplaceTable drops and recreates t, then copies rows into it.
//
// Postgres DDL is transactional, so a failure at any step rolls back to the
// previous table contents.
func (r *Repo) ReplaceTable(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	cols := t.ColumnNames()
	for i, row := range rows {
		if len(row) != len(cols) {
			return 0, fmt.Errorf("insert %s: row %d has %d values, want %d", t.Name, i, len(row), len(cols))
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, buildDropTableSQL(t.Name)); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", t.Name, err)
	}
	if _, err := tx.Exec(ctx, buildCreateTableSQL(t)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", t.Name, err)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, pgx.Identifier{t.Name}, cols, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, fmt.Errorf("copy %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// EnsureIndexes creates every index in one transaction.
func (r *Repo) EnsureIndexes(ctx context.Context, indexes []storage.IndexSpec) error {
	if len(indexes) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, ix := range indexes {
		q, err := buildCreateIndexSQL(ix)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, q); err != nil {
			return fmt.Errorf("create index %s: %w", ix.Name, err)
		}
	}
	return tx.Commit(ctx)
}

// pgType maps a resolved column type to its Postgres column type.
func pgType(t schema.ColumnType) string {
	switch t {
	case schema.Integer:
		return "BIGINT"
	case schema.Real:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// pgIdent quotes a single identifier. Header text such as "SALE PRICE" is
// kept verbatim, including case.
func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, pgIdent(c))
	}
	return strings.Join(out, ", ")
}

func buildDropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + pgIdent(table)
}

func buildCreateTableSQL(t storage.TableSpec) string {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, pgIdent(c.Name)+" "+pgType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", pgIdent(t.Name), strings.Join(defs, ", "))
}

func buildCreateIndexSQL(ix storage.IndexSpec) (string, error) {
	if ix.Name == "" || ix.Table == "" || len(ix.Columns) == 0 {
		return "", fmt.Errorf("postgres: incomplete index spec %+v", ix)
	}
	kw := "INDEX"
	if ix.Unique {
		kw = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kw, pgIdent(ix.Name), pgIdent(ix.Table), joinIdentList(ix.Columns)), nil
}
