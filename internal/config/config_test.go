package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivoytov/forqloz/internal/schema"
)

func TestOptions_Accessors(t *testing.T) {
	t.Parallel()

	var opts Options
	if err := json.Unmarshal([]byte(`{
		"lazy_quotes": false,
		"trim_space": "true",
		"batch": 250,
		"batch_str": " 10 ",
		"comma": ";",
		"empty": "",
		"headers": {"a": "x", "b": 1}
	}`), &opts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if opts.Bool("lazy_quotes", true) {
		t.Fatalf("lazy_quotes should be false")
	}
	if !opts.Bool("trim_space", false) {
		t.Fatalf("trim_space string should parse")
	}
	if !opts.Bool("missing", true) || opts.Bool("comma", false) {
		t.Fatalf("Bool defaults wrong")
	}
	if got := opts.Int("batch", 0); got != 250 {
		t.Fatalf("Int(batch)=%d", got)
	}
	if got := opts.Int("batch_str", 0); got != 10 {
		t.Fatalf("Int(batch_str)=%d", got)
	}
	if got := opts.Int("comma", 7); got != 7 {
		t.Fatalf("Int on non-number=%d, want default", got)
	}
	if got := opts.String("comma", ","); got != ";" {
		t.Fatalf("String=%q", got)
	}
	if got := opts.Rune("comma", ','); got != ';' {
		t.Fatalf("Rune=%q", got)
	}
	if got := opts.Rune("empty", ','); got != ',' {
		t.Fatalf("Rune(empty)=%q, want default", got)
	}
	if m := opts.StringMap("headers"); len(m) != 1 || m["a"] != "x" {
		t.Fatalf("StringMap=%v", m)
	}

	var nilOpts Options
	if !nilOpts.Bool("lazy_quotes", true) || nilOpts.Rune("comma", ',') != ',' {
		t.Fatalf("nil Options must return defaults")
	}
}

func TestOptions_WithCopies(t *testing.T) {
	t.Parallel()

	base := Options{"lazy_quotes": true}
	next := base.With("comma", "\t")
	if _, ok := base["comma"]; ok {
		t.Fatalf("With mutated receiver")
	}
	if next.Rune("comma", ',') != '\t' || !next.Bool("lazy_quotes", false) {
		t.Fatalf("next=%v", next)
	}
}

func validPipeline() Pipeline {
	return Pipeline{
		Job:     "foreclosures",
		Source:  Source{Dir: "web/foreclosures"},
		Parser:  Parser{Kind: "csv"},
		Storage: Storage{Kind: "sqlite", DSN: "web/foreclosures/foreclosures.sqlite"},
		Tables: []Table{
			{Name: "cases", Path: "cases.csv", Recovery: Recovery{Kind: RecoverySplit}},
			{Name: "lots", Path: "lots.csv", Recovery: Recovery{Kind: RecoveryTruncate, DropHeaders: `^Column\d+$`}},
		},
		Indexes: []Index{{Name: "idx_lots_key", Table: "lots", Columns: []string{"case_number"}}},
	}
}

func TestValidatePipeline(t *testing.T) {
	t.Parallel()

	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Fatalf("valid pipeline has issues: %+v", issues)
	}

	tests := []struct {
		name     string
		mutate   func(p *Pipeline)
		wantPath string
		wantSev  Severity
	}{
		{"empty_job", func(p *Pipeline) { p.Job = "" }, "job", SeverityWarning},
		{"parser_kind", func(p *Pipeline) { p.Parser.Kind = "json" }, "parser.kind", SeverityError},
		{"storage_kind", func(p *Pipeline) { p.Storage.Kind = "" }, "storage.kind", SeverityError},
		{"storage_dsn", func(p *Pipeline) { p.Storage.DSN = " " }, "storage.dsn", SeverityError},
		{"no_tables", func(p *Pipeline) { p.Tables = nil; p.Indexes = nil }, "tables", SeverityError},
		{"table_name", func(p *Pipeline) { p.Tables[0].Name = "" }, "tables[0].name", SeverityError},
		{"duplicate_table", func(p *Pipeline) { p.Tables[1].Name = "cases" }, "tables[1].name", SeverityError},
		{"table_path", func(p *Pipeline) { p.Tables[0].Path = "" }, "tables[0].path", SeverityError},
		{"recovery_kind", func(p *Pipeline) { p.Tables[0].Recovery.Kind = "wrap" }, "tables[0].recovery.kind", SeverityError},
		{"bad_regexp", func(p *Pipeline) { p.Tables[1].Recovery.DropHeaders = "(" }, "tables[1].recovery.drop_headers", SeverityError},
		{"drop_without_truncate", func(p *Pipeline) { p.Tables[0].Recovery.DropHeaders = "x" }, "tables[0].recovery.drop_headers", SeverityWarning},
		{"index_name", func(p *Pipeline) { p.Indexes[0].Name = "" }, "indexes[0].name", SeverityError},
		{"duplicate_index", func(p *Pipeline) { p.Indexes = append(p.Indexes, p.Indexes[0]) }, "indexes[1].name", SeverityError},
		{"index_table", func(p *Pipeline) { p.Indexes[0].Table = "bids" }, "indexes[0].table", SeverityError},
		{"index_columns", func(p *Pipeline) { p.Indexes[0].Columns = nil }, "indexes[0].columns", SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline()
			tt.mutate(&p)

			issues := ValidatePipeline(p)
			found := false
			for _, iss := range issues {
				if iss.Path == tt.wantPath && iss.Severity == tt.wantSev {
					found = true
				}
			}
			if !found {
				t.Fatalf("issues=%+v, want %s at %s", issues, tt.wantSev, tt.wantPath)
			}
			if HasErrors(issues) != (tt.wantSev == SeverityError) {
				t.Fatalf("HasErrors=%v for %+v", HasErrors(issues), issues)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	good := filepath.Join(dir, "pipeline.json")
	if err := os.WriteFile(good, []byte(`{
		"job": "foreclosures",
		"source": {"dir": "s3://bucket/exports"},
		"parser": {"kind": "csv", "options": {"lazy_quotes": true}},
		"storage": {"kind": "postgres", "dsn": "${PG_DSN}"},
		"tables": [
			{"name": "bids", "path": "bids.csv", "recovery": {"kind": "split"},
			 "hints": {"winning_bid": "real", "auction_date": "TEXT"}}
		]
	}`), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(good)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Storage.DSN != "${PG_DSN}" || p.Source.Dir != "s3://bucket/exports" {
		t.Fatalf("pipeline=%+v", p)
	}
	if got := p.Tables[0].Hints["winning_bid"]; got != schema.Real {
		t.Fatalf("hint=%v", got)
	}
	if !p.Parser.Options.Bool("lazy_quotes", false) {
		t.Fatalf("options=%v", p.Parser.Options)
	}

	badHint := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badHint, []byte(`{"tables":[{"name":"t","hints":{"a":"DATE"}}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(badHint); err == nil || !strings.Contains(err.Error(), "unknown column type") {
		t.Fatalf("err=%v, want unknown column type", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("err=%v, want read error", err)
	}
}
