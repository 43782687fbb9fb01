package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ivoytov/forqloz/internal/schema"
	"github.com/ivoytov/forqloz/internal/storage"
)

// SQL Server accepts at most 2100 parameters per RPC call and 1000 rows per
// table value constructor.
const (
	maxParams    = 2099
	maxBatchRows = 1000
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Semantics:
//   - ReplaceTable runs DROP TABLE IF EXISTS, CREATE TABLE and batched
//     multi-row INSERTs in one transaction. SQL Server DDL is transactional,
//     so a failed load keeps the previous table.
//   - TEXT columns map to NVARCHAR(4000) rather than NVARCHAR(MAX) so they
//     can participate in index keys.
//   - EnsureIndexes checks sys.indexes before CREATE INDEX since SQL Server
//     has no CREATE INDEX IF NOT EXISTS.
//
// Note on driver registration:
//   - This package does NOT blank-import a SQL Server driver. The
//     application registers the "sqlserver" driver elsewhere (see
//     internal/storage/all).
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
//
// This method validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

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

	var inserted int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		q, args, err := buildBulkInsertSQL(t.Name, cols, rows[start:end])
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", t.Name, err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
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

func mssqlType(t schema.ColumnType) string {
	switch t {
	case schema.Integer:
		return "BIGINT"
	case schema.Real:
		return "FLOAT"
	default:
		return "NVARCHAR(4000)"
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// nstring renders s as an N'' literal for catalog lookups.
func nstring(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func buildDropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + mssqlIdent(table)
}

func buildCreateTableSQL(t storage.TableSpec) string {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, mssqlIdent(c.Name)+" "+mssqlType(c.Type)+" NULL")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", mssqlIdent(t.Name), strings.Join(defs, ", "))
}

// buildBulkInsertSQL builds one multi-row INSERT with @pN placeholders.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args, nil
}

func buildCreateIndexSQL(ix storage.IndexSpec) (string, error) {
	if ix.Name == "" || ix.Table == "" || len(ix.Columns) == 0 {
		return "", fmt.Errorf("mssql: incomplete index spec %+v", ix)
	}
	kw := "INDEX"
	if ix.Unique {
		kw = "UNIQUE INDEX"
	}
	cols := make([]string, 0, len(ix.Columns))
	for _, c := range ix.Columns {
		cols = append(cols, mssqlIdent(c))
	}
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = %s AND object_id = OBJECT_ID(%s)) CREATE %s %s ON %s (%s)",
		nstring(ix.Name), nstring(mssqlIdent(ix.Table)),
		kw, mssqlIdent(ix.Name), mssqlIdent(ix.Table), strings.Join(cols, ", "),
	), nil
}
