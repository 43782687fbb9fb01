// Package normalize aligns parsed records to their header row.
//
// Every accepted row has exactly one cell per header; empty fields become nil.
// Records of the wrong width are recovered according to the table's Policy or
// dropped with a warning. Normalization never fails.
package normalize

import (
	"fmt"
	"io"
	"log"
	"regexp"
)

// Logger is the minimal logging interface used for row warnings.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Recovery is the strategy for records whose width differs from the header.
type Recovery int

const (
	// RecoverNone drops every mismatched record.
	RecoverNone Recovery = iota
	// SplitOnMultiple splits records whose width is an exact multiple (>1)
	// of the header width into consecutive rows. Anything else is dropped.
	SplitOnMultiple
	// TruncateToHeaderCount keeps the leading header-width fields of any
	// record at least that wide, counting from the front even when dropped
	// headers were not trailing. Shorter records are dropped.
	TruncateToHeaderCount
)

func (r Recovery) String() string {
	switch r {
	case RecoverNone:
		return "none"
	case SplitOnMultiple:
		return "split"
	case TruncateToHeaderCount:
		return "truncate"
	default:
		return "unknown"
	}
}

// Policy is the per-table normalization policy.
type Policy struct {
	Recovery Recovery
	// DropHeaders, when set, removes matching header names (and the
	// corresponding fields of full-width records) before alignment.
	DropHeaders *regexp.Regexp
}

// Record is one parsed record with its 1-based record number.
type Record struct {
	Line   int
	Fields []string
}

// Skipped describes a dropped record.
type Skipped struct {
	Line     int
	Found    int
	Expected int
}

// Result is the normalized form of one source.
type Result struct {
	Headers []string
	Rows    [][]any

	Accepted  int // records accepted as-is
	Split     int // records split into several rows
	Truncated int // records shortened to the header width
	Skipped   []Skipped
}

// Normalizer applies a Policy to the records of one source.
type Normalizer struct {
	Policy Policy
	Logger Logger
}

// Normalize treats records[0] as the header row and aligns every following
// record to it. source is used only in warnings.
func (n *Normalizer) Normalize(source string, records []Record) Result {
	logf := n.logger()

	var res Result
	if len(records) == 0 {
		return res
	}

	rawHeaders := records[0].Fields
	headers := dropHeaders(rawHeaders, n.Policy.DropHeaders)
	res.Headers = headers
	width := len(headers)
	if width == 0 {
		for _, rec := range records[1:] {
			res.Skipped = append(res.Skipped, Skipped{Line: rec.Line, Found: len(rec.Fields), Expected: 0})
		}
		if len(records) > 1 {
			logf("warn: source=%s has no usable headers; skipped %d records", source, len(records)-1)
		}
		return res
	}

	res.Rows = make([][]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		f := rec.Fields

		if len(f) == width {
			res.Rows = append(res.Rows, toRow(f))
			res.Accepted++
			continue
		}

		if n.Policy.Recovery == TruncateToHeaderCount {
			if len(f) >= width {
				res.Rows = append(res.Rows, toRow(f[:width]))
				res.Truncated++
				continue
			}
		}

		if n.Policy.Recovery != RecoverNone && len(f) > width && len(f)%width == 0 {
			for i := 0; i < len(f); i += width {
				res.Rows = append(res.Rows, toRow(f[i:i+width]))
			}
			res.Split++
			continue
		}

		res.Skipped = append(res.Skipped, Skipped{Line: rec.Line, Found: len(f), Expected: width})
		logf("warn: skipping malformed row %d in %s: has %d cols, expected %d", rec.Line, source, len(f), width)
	}

	return res
}

func (n *Normalizer) logger() func(format string, v ...any) {
	if n.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return n.Logger.Printf
}

// dropHeaders returns the headers not matching re, in order. With a nil re
// all headers are kept.
func dropHeaders(headers []string, re *regexp.Regexp) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if re != nil && re.MatchString(h) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// toRow copies fields into a fresh row, mapping "" to nil.
func toRow(fields []string) []any {
	row := make([]any, len(fields))
	for i, v := range fields {
		if v == "" {
			continue
		}
		row[i] = v
	}
	return row
}

// NewPolicy builds a Policy from its config spelling. kind is "none", "split"
// or "truncate"; an empty kind means "split". dropHeaders is an optional
// regular expression.
func NewPolicy(kind, dropHeaders string) (Policy, error) {
	var p Policy
	switch kind {
	case "", "split":
		p.Recovery = SplitOnMultiple
	case "none":
		p.Recovery = RecoverNone
	case "truncate":
		p.Recovery = TruncateToHeaderCount
	default:
		return Policy{}, fmt.Errorf("normalize: unknown recovery kind %q", kind)
	}
	if dropHeaders != "" {
		re, err := regexp.Compile(dropHeaders)
		if err != nil {
			return Policy{}, fmt.Errorf("normalize: drop_headers: %w", err)
		}
		p.DropHeaders = re
	}
	return p, nil
}
