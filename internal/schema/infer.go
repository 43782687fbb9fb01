package schema

import (
	"errors"
	"strconv"
	"strings"
)

// ParseInteger parses s as a base-10 signed 64-bit integer, ignoring
// surrounding whitespace.
func ParseInteger(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseReal parses s as a 64-bit decimal float, ignoring surrounding
// whitespace. Hexadecimal floats ("0x1p3") are rejected. Values beyond
// float64 range parse as ±Inf rather than failing.
func ParseReal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if hasHexPrefix(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return f, true
		}
		return 0, false
	}
	return f, true
}

func hasHexPrefix(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Classify returns the narrowest type that can store s.
func Classify(s string) ColumnType {
	if _, ok := ParseInteger(s); ok {
		return Integer
	}
	if _, ok := ParseReal(s); ok {
		return Real
	}
	return Text
}

// InferColumn infers the type of column col from rows, in row order.
//
// nil cells are skipped; a column with no values infers to Integer. Scanning
// stops at the first value that forces Text.
func InferColumn(rows [][]any, col int) ColumnType {
	t := Integer
	for _, r := range rows {
		if col >= len(r) {
			continue
		}
		s, ok := r[col].(string)
		if !ok {
			continue
		}
		t = Widen(t, Classify(s))
		if t == Text {
			return Text
		}
	}
	return t
}

// Resolve returns one type per header: the hint when one exists for
// (table, header), otherwise the inferred type.
func Resolve(h Hints, table string, headers []string, rows [][]any) []ColumnType {
	out := make([]ColumnType, len(headers))
	for i, name := range headers {
		if t, ok := h.Lookup(table, name); ok {
			out[i] = t
			continue
		}
		out[i] = InferColumn(rows, i)
	}
	return out
}
