package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ivoytov/forqloz/internal/storage"
)

// SQLite caps bound parameters per statement (SQLITE_MAX_VARIABLE_NUMBER,
// 32766 since 3.32). maxBatchRows keeps single statements reasonably small.
const (
	maxParams    = 32766
	maxBatchRows = 500
)

// Repo implements storage.Repository for SQLite.
//
// Key design points:
//   - The DSN is a file path (or any modernc.org/sqlite DSN). The database
//     file is created if missing.
//   - Column types are the SQLite storage classes INTEGER / REAL / TEXT, so
//     declared affinity matches the resolved column type exactly.
//   - DDL is transactional in SQLite, so drop + create + insert run in one
//     transaction and a failed load leaves the previous table in place.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// Single writer for the process lifetime of a run.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// ReplaceTable drops, recreates and fills t in a single transaction.
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

	n, err := insertBatches(ctx, tx, t, rows)
	if err != nil {
		return n, fmt.Errorf("insert %s: %w", t.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// insertBatches inserts rows with multi-row INSERT statements. The
// full-size statement is prepared once and reused; the tail batch gets its
// own statement.
func insertBatches(ctx context.Context, tx *sql.Tx, t storage.TableSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := t.ColumnNames()
	per := storage.BatchRows(len(cols), maxParams, maxBatchRows)

	var full *sql.Stmt
	defer func() {
		if full != nil {
			_ = full.Close()
		}
	}()

	var inserted int64
	args := make([]any, 0, per*len(cols))
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}

		args = args[:0]
		for i, row := range rows[start:end] {
			if len(row) != len(cols) {
				return inserted, fmt.Errorf("row %d has %d values, want %d", start+i, len(row), len(cols))
			}
			args = append(args, row...)
		}

		var err error
		if end-start == per {
			if full == nil {
				full, err = tx.PrepareContext(ctx, buildInsertSQL(t.Name, cols, per))
				if err != nil {
					return inserted, err
				}
			}
			_, err = full.ExecContext(ctx, args...)
		} else {
			_, err = tx.ExecContext(ctx, buildInsertSQL(t.Name, cols, end-start), args...)
		}
		if err != nil {
			return inserted, err
		}
		inserted += int64(end - start)
	}
	return inserted, nil
}

// EnsureIndexes runs CREATE [UNIQUE] INDEX IF NOT EXISTS for each index in
// one transaction.
func (r *Repo) EnsureIndexes(ctx context.Context, indexes []storage.IndexSpec) error {
	if len(indexes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, ix := range indexes {
		q, err := buildCreateIndexSQL(ix)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index %s: %w", ix.Name, err)
		}
	}
	return tx.Commit()
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, sqlIdent(c))
	}
	return strings.Join(out, ", ")
}

func buildDropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + sqlIdent(table)
}

// buildCreateTableSQL renders every column as a quoted identifier with its
// storage class. Header text is preserved verbatim.
func buildCreateTableSQL(t storage.TableSpec) string {
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", sqlIdent(t.Name), strings.Join(parts, ",\n  "))
}

func buildInsertSQL(table string, columns []string, nrows int) string {
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES ")
	for i := 0; i < nrows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
	}
	return b.String()
}

func buildCreateIndexSQL(ix storage.IndexSpec) (string, error) {
	if ix.Name == "" || ix.Table == "" || len(ix.Columns) == 0 {
		return "", fmt.Errorf("sqlite: incomplete index spec %+v", ix)
	}
	kw := "INDEX"
	if ix.Unique {
		kw = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kw, sqlIdent(ix.Name), sqlIdent(ix.Table), joinIdentList(ix.Columns)), nil
}
