package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ivoytov/forqloz/internal/schema"
)

type fakeRepo struct{ closed int }

func (f *fakeRepo) Close() { f.closed++ }
func (f *fakeRepo) ReplaceTable(ctx context.Context, t TableSpec, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeRepo) EnsureIndexes(ctx context.Context, indexes []IndexSpec) error { return nil }

func TestRegisterAndNew(t *testing.T) {
	want := &fakeRepo{}
	var gotCfg Config
	Register("fake-test", func(ctx context.Context, cfg Config) (Repository, error) {
		gotCfg = cfg
		return want, nil
	})

	r, err := New(context.Background(), Config{Kind: "fake-test", DSN: "mem"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r != Repository(want) {
		t.Fatalf("New returned %v, want registered repo", r)
	}
	if gotCfg.DSN != "mem" {
		t.Fatalf("factory got cfg %+v", gotCfg)
	}

	found := false
	for _, k := range Kinds() {
		if k == "fake-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds()=%v missing fake-test", Kinds())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	_, err := New(context.Background(), Config{Kind: "nope"})
	if err == nil || !strings.Contains(err.Error(), "unsupported storage.kind=nope") {
		t.Fatalf("err=%v, want unsupported kind", err)
	}

	boom := errors.New("boom")
	Register("failing-test", func(ctx context.Context, cfg Config) (Repository, error) { return nil, boom })
	if _, err := New(context.Background(), Config{Kind: "failing-test"}); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want factory error", err)
	}
}

func TestRegister_Panics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected panic", name)
			}
		}()
		fn()
	}
	f := func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil }

	mustPanic("empty kind", func() { Register("", f) })
	mustPanic("nil factory", func() { Register("nil-test", nil) })
	Register("dup-test", f)
	mustPanic("duplicate", func() { Register("dup-test", f) })
}

func TestTableSpec_Validate(t *testing.T) {
	t.Parallel()

	ok := TableSpec{Name: "auction_sales", Columns: []ColumnSpec{
		{Name: "SALE PRICE", Type: schema.Real},
		{Name: "sale price", Type: schema.Text},
	}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v (names differing only in case are distinct)", err)
	}
	if got := ok.ColumnNames(); len(got) != 2 || got[0] != "SALE PRICE" {
		t.Fatalf("ColumnNames=%v", got)
	}

	bad := []TableSpec{
		{Name: "", Columns: ok.Columns},
		{Name: "t"},
		{Name: "t", Columns: []ColumnSpec{{Name: "a"}, {Name: "a"}}},
		{Name: "t", Columns: []ColumnSpec{{Name: ""}}},
		{Name: "t", Columns: []ColumnSpec{{Name: "a", Type: schema.ColumnType(9)}}},
	}
	for i, spec := range bad {
		if err := spec.Validate(); err == nil {
			t.Fatalf("bad[%d] validated: %+v", i, spec)
		}
	}
}

func TestBatchRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cols, maxParams, maxRows, want int
	}{
		{cols: 7, maxParams: 32766, maxRows: 500, want: 500},
		{cols: 100, maxParams: 32766, maxRows: 500, want: 327},
		{cols: 3000, maxParams: 2100, maxRows: 1000, want: 1},
		{cols: 0, maxParams: 10, maxRows: 10, want: 1},
		{cols: 2, maxParams: 10, maxRows: 0, want: 5},
	}
	for _, tt := range tests {
		if got := BatchRows(tt.cols, tt.maxParams, tt.maxRows); got != tt.want {
			t.Fatalf("BatchRows(%d,%d,%d)=%d, want %d", tt.cols, tt.maxParams, tt.maxRows, got, tt.want)
		}
	}
}
