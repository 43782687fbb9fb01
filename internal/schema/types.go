// Package schema resolves per-column storage types for loaded tables and
// casts raw text values to them.
//
// Column types form a small lattice, Integer < Real < Text. Inference only
// ever widens: once a column is Real an integer-looking value does not narrow
// it back, and Text absorbs everything.
package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the storage class of a column.
type ColumnType int

const (
	Integer ColumnType = iota
	Real
	Text
)

// String returns the SQL spelling used in DDL and config files.
func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Valid reports whether t is one of the three defined types.
func (t ColumnType) Valid() bool { return t >= Integer && t <= Text }

// Widen returns the narrowest type able to hold values of both a and b.
// It is commutative, idempotent and monotone.
func Widen(a, b ColumnType) ColumnType {
	if b > a {
		return b
	}
	return a
}

// ParseColumnType accepts INTEGER, REAL or TEXT in any case.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTEGER":
		return Integer, nil
	case "REAL":
		return Real, nil
	case "TEXT":
		return Text, nil
	default:
		return 0, fmt.Errorf("schema: unknown column type %q", s)
	}
}

func (t ColumnType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("schema: invalid column type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *ColumnType) UnmarshalText(b []byte) error {
	v, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
