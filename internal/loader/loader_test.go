package loader

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ivoytov/forqloz/internal/normalize"
	"github.com/ivoytov/forqloz/internal/schema"
	"github.com/ivoytov/forqloz/internal/storage"
)

type fakeRepo struct {
	spec storage.TableSpec
	rows [][]any
	err  error
}

func (f *fakeRepo) Close() {}

func (f *fakeRepo) ReplaceTable(ctx context.Context, t storage.TableSpec, rows [][]any) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.spec, f.rows = t, rows
	return int64(len(rows)), nil
}

func (f *fakeRepo) EnsureIndexes(ctx context.Context, indexes []storage.IndexSpec) error { return nil }

func TestLoad_InfersAndCasts(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	l := &Loader{Repo: repo}

	res := normalize.Result{
		Headers: []string{"case_number", "amount"},
		Rows: [][]any{
			{"A1", "100"},
			{"A2", nil},
			{"A3", "12.5"},
		},
	}
	st, err := l.Load(context.Background(), "t", res)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	wantCols := []storage.ColumnSpec{
		{Name: "case_number", Type: schema.Text},
		{Name: "amount", Type: schema.Real},
	}
	if !reflect.DeepEqual(repo.spec.Columns, wantCols) || repo.spec.Name != "t" {
		t.Fatalf("spec=%+v", repo.spec)
	}
	wantRows := [][]any{{"A1", 100.0}, {"A2", nil}, {"A3", 12.5}}
	if !reflect.DeepEqual(repo.rows, wantRows) {
		t.Fatalf("rows=%#v\nwant %#v", repo.rows, wantRows)
	}
	if st.Inserted != 3 || st.CastNull != 0 || !reflect.DeepEqual(st.Columns, wantCols) {
		t.Fatalf("stats=%+v", st)
	}
}

func TestLoad_HintsWinAndCountCastNull(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	l := &Loader{
		Repo: repo,
		Hints: schema.NewHints(map[string]map[string]schema.ColumnType{
			"bids": {"winning_bid": schema.Real, "auction_date": schema.Text},
		}),
	}

	res := normalize.Result{
		Headers: []string{"winning_bid", "auction_date"},
		Rows: [][]any{
			{"n/a", "20240101"},
			{"1500.25", "20240102"},
		},
	}
	st, err := l.Load(context.Background(), "bids", res)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if repo.spec.Columns[0].Type != schema.Real || repo.spec.Columns[1].Type != schema.Text {
		t.Fatalf("columns=%+v, want hinted REAL/TEXT", repo.spec.Columns)
	}
	want := [][]any{{nil, "20240101"}, {1500.25, "20240102"}}
	if !reflect.DeepEqual(repo.rows, want) {
		t.Fatalf("rows=%#v", repo.rows)
	}
	if st.CastNull != 1 {
		t.Fatalf("CastNull=%d, want 1", st.CastNull)
	}
}

func TestLoad_AllNullColumnIsInteger(t *testing.T) {
	t.Parallel()

	spec, rows, lost := Prepare(schema.Hints{}, "lots", normalize.Result{
		Headers: []string{"case_number", "note"},
		Rows:    [][]any{{"1", nil}, {"2", nil}},
	})
	if spec.Columns[1].Type != schema.Integer || spec.Columns[0].Type != schema.Integer {
		t.Fatalf("columns=%+v", spec.Columns)
	}
	if rows[0][0] != int64(1) || rows[1][1] != nil || lost != 0 {
		t.Fatalf("rows=%#v lost=%d", rows, lost)
	}
}

func TestLoad_RepoErrorIsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	l := &Loader{Repo: &fakeRepo{err: boom}}
	_, err := l.Load(context.Background(), "pluto", normalize.Result{Headers: []string{"BBL"}})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "load table pluto") {
		t.Fatalf("err=%v", err)
	}

	if _, err := (&Loader{}).Load(context.Background(), "x", normalize.Result{}); err == nil {
		t.Fatalf("expected error without repo")
	}
}
