// Package loader turns a normalized source into a typed table: it resolves
// one storage type per header, casts every cell and hands the result to a
// storage.Repository.
package loader

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ivoytov/forqloz/internal/metrics"
	"github.com/ivoytov/forqloz/internal/normalize"
	"github.com/ivoytov/forqloz/internal/schema"
	"github.com/ivoytov/forqloz/internal/storage"
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Stats summarizes one table load.
type Stats struct {
	Table    string
	Columns  []storage.ColumnSpec
	Inserted int64
	CastNull int // non-empty cells that failed their column's cast and were stored as NULL
	Duration time.Duration
}

// Loader writes normalized sources into a repository.
type Loader struct {
	Repo   storage.Repository
	Hints  schema.Hints
	Logger Logger
}

// Load replaces table with the rows of res. Column types come from hints
// first and inference second. Cast failures become NULL and are counted,
// never logged per cell.
func (l *Loader) Load(ctx context.Context, table string, res normalize.Result) (Stats, error) {
	if l.Repo == nil {
		return Stats{}, fmt.Errorf("loader: Repo is required")
	}
	logf := l.logger()
	start := time.Now()

	spec, rows, castNull := Prepare(l.Hints, table, res)

	n, err := l.Repo.ReplaceTable(ctx, spec, rows)
	metrics.RecordStep("load", err, time.Since(start))
	metrics.RecordTable(err)
	if err != nil {
		return Stats{Table: table, Columns: spec.Columns}, fmt.Errorf("load table %s: %w", table, err)
	}

	for _, c := range spec.Columns {
		metrics.RecordColumn(c.Type.String())
	}
	metrics.RecordRecords(table, "inserted", int(n))
	metrics.RecordRecords(table, "cast_null", castNull)

	st := Stats{
		Table:    table,
		Columns:  spec.Columns,
		Inserted: n,
		CastNull: castNull,
		Duration: time.Since(start).Truncate(time.Millisecond),
	}
	logf("stage=load table=%s columns=%d rows=%d cast_null=%d duration=%s",
		table, len(spec.Columns), n, castNull, st.Duration)
	return st, nil
}

// Prepare resolves the table shape for res and casts its rows. It is pure
// and shared with tools that report on a source without loading it.
func Prepare(h schema.Hints, table string, res normalize.Result) (storage.TableSpec, [][]any, int) {
	types := schema.Resolve(h, table, res.Headers, res.Rows)

	spec := storage.TableSpec{Name: table, Columns: make([]storage.ColumnSpec, len(res.Headers))}
	for i, name := range res.Headers {
		spec.Columns[i] = storage.ColumnSpec{Name: name, Type: types[i]}
	}

	rows := make([][]any, len(res.Rows))
	lost := 0
	for i, r := range res.Rows {
		var n int
		rows[i], n = schema.CastRow(r, types)
		lost += n
	}
	return spec, rows, lost
}

func (l *Loader) logger() func(format string, v ...any) {
	if l.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Logger.Printf
}
