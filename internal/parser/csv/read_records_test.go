package csv

import (
	"bytes"
	"context"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/ivoytov/forqloz/internal/config"
	"github.com/ivoytov/forqloz/internal/normalize"
)

func readString(t *testing.T, s string, opt config.Options) ([]normalize.Record, []int) {
	t.Helper()
	var errLines []int
	recs, err := ReadRecords(context.Background(), io.NopCloser(strings.NewReader(s)), opt, func(line int, err error) {
		errLines = append(errLines, line)
	})
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	return recs, errLines
}

func TestReadRecords_NumbersRecordsAndKeepsRaggedRows(t *testing.T) {
	t.Parallel()

	in := "case_number,SALE PRICE,note\n" +
		"A1,100,\"quoted, comma\"\n" +
		"A2,,\n" +
		"A3,1,2,3,4,5,6\n"
	recs, errLines := readString(t, in, nil)

	want := []normalize.Record{
		{Line: 1, Fields: []string{"case_number", "SALE PRICE", "note"}},
		{Line: 2, Fields: []string{"A1", "100", "quoted, comma"}},
		{Line: 3, Fields: []string{"A2", "", ""}},
		{Line: 4, Fields: []string{"A3", "1", "2", "3", "4", "5", "6"}},
	}
	if !reflect.DeepEqual(recs, want) {
		t.Fatalf("records=%#v\nwant %#v", recs, want)
	}
	if len(errLines) != 0 {
		t.Fatalf("unexpected errors on lines %v", errLines)
	}
}

func TestReadRecords_StripsUTF8BOM(t *testing.T) {
	t.Parallel()

	recs, _ := readString(t, "\uFEFFBLOCK,LOT\n1,2\n", nil)
	if recs[0].Fields[0] != "BLOCK" {
		t.Fatalf("header[0]=%q, want BOM stripped", recs[0].Fields[0])
	}
}

func TestReadRecords_DecodesUTF16LE(t *testing.T) {
	t.Parallel()

	// "a,b\n1,2\n" as UTF-16LE with BOM.
	src := []byte{0xFF, 0xFE}
	for _, r := range "a,b\n1,2\n" {
		src = append(src, byte(r), 0)
	}
	recs, _ := readString(t, string(src), nil)
	if len(recs) != 2 || !reflect.DeepEqual(recs[1].Fields, []string{"1", "2"}) {
		t.Fatalf("records=%#v", recs)
	}
}

func TestReadRecords_Options(t *testing.T) {
	t.Parallel()

	opt := config.Options{"comma": ";", "trim_space": true}
	recs, _ := readString(t, "a;b\n 1 ; x \n", opt)
	if !reflect.DeepEqual(recs[1].Fields, []string{"1", "x"}) {
		t.Fatalf("fields=%q", recs[1].Fields)
	}

	// Default keeps whitespace verbatim.
	recs, _ = readString(t, "a,b\n 1 , x \n", nil)
	if !reflect.DeepEqual(recs[1].Fields, []string{" 1 ", " x "}) {
		t.Fatalf("fields=%q", recs[1].Fields)
	}
}

func TestReadRecords_StrictQuotesReportAndSkip(t *testing.T) {
	t.Parallel()

	in := "a,b\nx\"y,1\nok,2\n"

	// Lazy quotes (default) accept the stray quote.
	recs, errLines := readString(t, in, nil)
	if len(recs) != 3 || len(errLines) != 0 {
		t.Fatalf("lazy: records=%d errors=%v", len(recs), errLines)
	}

	recs, errLines = readString(t, in, config.Options{"lazy_quotes": false})
	if !reflect.DeepEqual(errLines, []int{2}) {
		t.Fatalf("strict: error lines=%v, want [2]", errLines)
	}
	if len(recs) != 2 || recs[1].Line != 3 {
		t.Fatalf("strict: records=%#v", recs)
	}
}

func TestReadRecords_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadRecords(ctx, io.NopCloser(strings.NewReader("a\n1\n")), nil, nil)
	if err == nil {
		t.Fatalf("expected context error")
	}
}

func TestReadRecords_BlankLinesTakeRecordNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []normalize.Record
	}{
		{
			name: "interior_blank",
			in:   "a,b\n\n1,2\n",
			want: []normalize.Record{
				{Line: 1, Fields: []string{"a", "b"}},
				{Line: 2},
				{Line: 3, Fields: []string{"1", "2"}},
			},
		},
		{
			name: "crlf_blanks_and_trailing_blank",
			in:   "a,b\r\n\r\n\r\n1,2\r\n\r\n",
			want: []normalize.Record{
				{Line: 1, Fields: []string{"a", "b"}},
				{Line: 2},
				{Line: 3},
				{Line: 4, Fields: []string{"1", "2"}},
				{Line: 5},
			},
		},
		{
			name: "multiline_field_is_one_record",
			in:   "a,b\n\"x\ny\",1\n\n2,3",
			want: []normalize.Record{
				{Line: 1, Fields: []string{"a", "b"}},
				{Line: 2, Fields: []string{"x\ny", "1"}},
				{Line: 3},
				{Line: 4, Fields: []string{"2", "3"}},
			},
		},
		{
			name: "leading_blanks_before_header_ignored",
			in:   "\n\na,b\n1,2\n",
			want: []normalize.Record{
				{Line: 1, Fields: []string{"a", "b"}},
				{Line: 2, Fields: []string{"1", "2"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			recs, _ := readString(t, tt.in, nil)
			if !reflect.DeepEqual(recs, tt.want) {
				t.Fatalf("records=%#v\nwant %#v", recs, tt.want)
			}
		})
	}
}

func TestReadRecords_BlankLineWarningsKeepNumbering(t *testing.T) {
	t.Parallel()

	recs, _ := readString(t, "a,b\n\n1,2,3\n", nil)

	var buf bytes.Buffer
	n := &normalize.Normalizer{Logger: log.New(&buf, "", 0)}
	res := n.Normalize("t.csv", recs)

	want := []normalize.Skipped{
		{Line: 2, Found: 0, Expected: 2},
		{Line: 3, Found: 3, Expected: 2},
	}
	if !reflect.DeepEqual(res.Skipped, want) {
		t.Fatalf("skipped=%+v, want %+v", res.Skipped, want)
	}
	out := buf.String()
	for _, w := range []string{
		"skipping malformed row 2 in t.csv: has 0 cols, expected 2",
		"skipping malformed row 3 in t.csv: has 3 cols, expected 2",
	} {
		if !strings.Contains(out, w) {
			t.Fatalf("warnings missing %q:\n%s", w, out)
		}
	}
}
