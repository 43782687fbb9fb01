package duckdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ivoytov/forqloz/internal/schema"
	"github.com/ivoytov/forqloz/internal/storage"
)

func TestBuilders(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{Name: "pluto", Columns: []storage.ColumnSpec{
		{Name: "BBL", Type: schema.Integer},
		{Name: "LotArea", Type: schema.Real},
		{Name: "Address", Type: schema.Text},
	}}
	if got, want := buildCreateTableSQL(spec), `CREATE TABLE "pluto" ("BBL" BIGINT, "LotArea" DOUBLE, "Address" VARCHAR)`; got != want {
		t.Fatalf("create:\n got  %s\n want %s", got, want)
	}
	if got, want := buildInsertSQL("pluto", []string{"BBL", "Address"}, 2), `INSERT INTO "pluto" ("BBL", "Address") VALUES (?, ?), (?, ?)`; got != want {
		t.Fatalf("insert:\n got  %s\n want %s", got, want)
	}
	got, err := buildCreateIndexSQL(storage.IndexSpec{Name: "idx_pluto_bbl", Table: "pluto", Columns: []string{"BBL"}})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if want := `CREATE INDEX IF NOT EXISTS "idx_pluto_bbl" ON "pluto" ("BBL")`; got != want {
		t.Fatalf("index:\n got  %s\n want %s", got, want)
	}
}

func TestReplaceTable_ReloadsAndIndexes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r, err := New(ctx, storage.Config{Kind: "duckdb", DSN: filepath.Join(t.TempDir(), "foreclosures.duckdb")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	spec := storage.TableSpec{Name: "bids", Columns: []storage.ColumnSpec{
		{Name: "case_number", Type: schema.Text},
		{Name: "winning_bid", Type: schema.Real},
	}}
	rows := [][]any{{"A1", 100.0}, {"A2", nil}, {"A3", 12.5}}
	for i := 0; i < 2; i++ {
		n, err := r.ReplaceTable(ctx, spec, rows)
		if err != nil {
			t.Fatalf("ReplaceTable #%d: %v", i, err)
		}
		if n != 3 {
			t.Fatalf("inserted=%d, want 3", n)
		}
	}

	ix := []storage.IndexSpec{{Name: "idx_bids_key", Table: "bids", Columns: []string{"case_number"}}}
	for i := 0; i < 2; i++ {
		if err := r.EnsureIndexes(ctx, ix); err != nil {
			t.Fatalf("EnsureIndexes #%d: %v", i, err)
		}
	}

	var count int
	var sum float64
	db := r.(*Repo).db
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(winning_bid) FROM bids`).Scan(&count, &sum); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 3 || sum != 112.5 {
		t.Fatalf("count=%d sum=%v", count, sum)
	}
}
