// Command probe inspects one CSV source without loading it.
//
// It reads the source (local path, file://, http(s):// or s3://), applies a
// recovery policy, resolves column types the same way a load would and prints
// a per-column report. With -json it instead prints a config table entry
// (name, path, recovery and the resolved types as hints) that can be pasted
// into a pipeline config.
//
// When -table names a table of the built-in foreclosure catalog, that
// table's recovery policy and hints are the defaults.
//
// Examples:
//
//	probe -url web/foreclosures/bids.csv
//	probe -url s3://bucket/exports/lots.csv -table lots -json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ivoytov/forqloz/internal/catalog"
	"github.com/ivoytov/forqloz/internal/config"
	"github.com/ivoytov/forqloz/internal/datasource"
	"github.com/ivoytov/forqloz/internal/loader"
	"github.com/ivoytov/forqloz/internal/normalize"
	csvparser "github.com/ivoytov/forqloz/internal/parser/csv"
	"github.com/ivoytov/forqloz/internal/schema"
	"github.com/ivoytov/forqloz/internal/storage"
)

// options are the parsed probe inputs.
type options struct {
	URL         string
	Table       string
	Recovery    string
	DropHeaders string
	Comma       string
	Limit       int
	NoHints     bool
	JSON        bool
}

// columnReport describes one resolved column.
type columnReport struct {
	Name   string
	Type   schema.ColumnType
	Hinted bool
	Nulls  int
}

// report is the outcome of probing one source.
type report struct {
	Source    string
	Table     string
	Recovery  config.Recovery
	Records   int
	Accepted  int
	Split     int
	Truncated int
	Skipped   int
	Rows      int
	CastNull  int
	Columns   []columnReport
}

func main() {
	var opt options
	flag.StringVar(&opt.URL, "url", "", "URL or path of the CSV source")
	flag.StringVar(&opt.Table, "table", "", "table name (default: source file name without extension)")
	flag.StringVar(&opt.Recovery, "recovery", "", "recovery policy: none|split|truncate (default: catalog policy or split)")
	flag.StringVar(&opt.DropHeaders, "drop-headers", "", "regexp of header names to drop before alignment")
	flag.StringVar(&opt.Comma, "comma", ",", "field delimiter")
	flag.IntVar(&opt.Limit, "limit", 0, "probe at most this many records after the header (0 = all)")
	flag.BoolVar(&opt.NoHints, "no-hints", false, "ignore catalog hints and report inferred types only")
	flag.BoolVar(&opt.JSON, "json", false, "print a config table entry instead of the report")
	flag.Parse()

	if strings.TrimSpace(opt.URL) == "" {
		fmt.Fprintln(os.Stderr, "missing -url")
		flag.Usage()
		os.Exit(2)
	}

	// Probing should be quick; fail rather than hang on a slow source.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	opener := &datasource.Opener{S3: datasource.S3OptionsFromEnv()}
	rep, err := probeSource(ctx, opener.Open, opt, log.New(os.Stderr, "", 0))
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	if opt.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tableEntry(rep)); err != nil {
			log.Fatalf("encode table: %v", err)
		}
		return
	}
	if err := writeReport(os.Stdout, rep); err != nil {
		log.Fatalf("write report: %v", err)
	}
}

// probeSource reads and normalizes one source and resolves its columns.
func probeSource(
	ctx context.Context,
	open func(ctx context.Context, loc string) (io.ReadCloser, error),
	opt options,
	warn *log.Logger,
) (report, error) {
	table := opt.Table
	if table == "" {
		table = tableNameFor(opt.URL)
	}
	rec, hints := defaults(table, opt)

	pol, err := normalize.NewPolicy(rec.Kind, rec.DropHeaders)
	if err != nil {
		return report{}, err
	}

	parserOpts := config.Options{"lazy_quotes": true}
	switch opt.Comma {
	case "", ",":
	case `\t`:
		parserOpts = parserOpts.With("comma", "\t")
	default:
		parserOpts = parserOpts.With("comma", opt.Comma)
	}

	src, err := open(ctx, opt.URL)
	if err != nil {
		return report{}, err
	}
	records, err := csvparser.ReadRecords(ctx, src, parserOpts, func(line int, err error) {
		warn.Printf("warn: skipping unparseable row %d in %s: %v", line, opt.URL, err)
	})
	if err != nil {
		return report{}, fmt.Errorf("read %s: %w", opt.URL, err)
	}
	if len(records) == 0 {
		return report{}, fmt.Errorf("%s has no header row", opt.URL)
	}
	if opt.Limit > 0 && len(records) > opt.Limit+1 {
		records = records[:opt.Limit+1]
	}

	res := (&normalize.Normalizer{Policy: pol, Logger: warn}).Normalize(opt.URL, records)
	if len(res.Headers) == 0 {
		return report{}, fmt.Errorf("%s has no usable headers", opt.URL)
	}

	spec, rows, castNull := loader.Prepare(hints, table, res)
	return report{
		Source:    opt.URL,
		Table:     table,
		Recovery:  rec,
		Records:   len(records) - 1,
		Accepted:  res.Accepted,
		Split:     res.Split,
		Truncated: res.Truncated,
		Skipped:   len(res.Skipped),
		Rows:      len(rows),
		CastNull:  castNull,
		Columns:   columnReports(hints, spec, rows),
	}, nil
}

// defaults picks the recovery policy and hints: explicit flags win, then
// the catalog entry for table, then split recovery with no hints.
func defaults(table string, opt options) (config.Recovery, schema.Hints) {
	rec := config.Recovery{Kind: config.RecoverySplit}
	hints := schema.NewHints(nil)

	p := catalog.Foreclosures("")
	for _, t := range p.Tables {
		if t.Name != table {
			continue
		}
		rec = t.Recovery
		if !opt.NoHints {
			hints = catalog.HintsFrom(p)
		}
	}

	if opt.Recovery != "" {
		rec.Kind = opt.Recovery
	}
	if opt.DropHeaders != "" {
		rec.DropHeaders = opt.DropHeaders
	}
	return rec, hints
}

func columnReports(h schema.Hints, spec storage.TableSpec, rows [][]any) []columnReport {
	out := make([]columnReport, len(spec.Columns))
	for i, c := range spec.Columns {
		_, hinted := h.Lookup(spec.Name, c.Name)
		out[i] = columnReport{Name: c.Name, Type: c.Type, Hinted: hinted}
	}
	for _, r := range rows {
		for i, v := range r {
			if v == nil {
				out[i].Nulls++
			}
		}
	}
	return out
}

// tableNameFor derives a table name from the last path element of loc.
func tableNameFor(loc string) string {
	if i := strings.IndexAny(loc, "?#"); i >= 0 && strings.Contains(loc, "://") {
		loc = loc[:i]
	}
	base := path.Base(strings.ReplaceAll(loc, `\`, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// tableEntry renders rep as a pipeline table entry. Every resolved type is
// emitted as a hint so a later load does not depend on the data sample.
func tableEntry(rep report) config.Table {
	t := config.Table{
		Name:     rep.Table,
		Path:     rep.Source,
		Recovery: rep.Recovery,
		Hints:    make(map[string]schema.ColumnType, len(rep.Columns)),
	}
	for _, c := range rep.Columns {
		t.Hints[c.Name] = c.Type
	}
	return t
}

func writeReport(w io.Writer, rep report) error {
	fmt.Fprintf(w, "source: %s\n", rep.Source)
	fmt.Fprintf(w, "table: %s (recovery=%s", rep.Table, rep.Recovery.Kind)
	if rep.Recovery.DropHeaders != "" {
		fmt.Fprintf(w, " drop_headers=%s", rep.Recovery.DropHeaders)
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "records=%d accepted=%d split=%d truncated=%d skipped=%d rows=%d cast_null=%d\n\n",
		rep.Records, rep.Accepted, rep.Split, rep.Truncated, rep.Skipped, rep.Rows, rep.CastNull)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tHINT\tNULLS")
	for _, c := range rep.Columns {
		hint := "-"
		if c.Hinted {
			hint = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.Name, c.Type, hint, c.Nulls)
	}
	return tw.Flush()
}
