// The spec types live here so the loader and every backend can share them
// without import cycles.
package storage

import (
	"fmt"
	"strings"

	"github.com/ivoytov/forqloz/internal/schema"
)

// TableSpec is the resolved shape of one destination table.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// ColumnSpec is a column name, kept verbatim (case and spaces included),
// and its storage type.
type ColumnSpec struct {
	Name string
	Type schema.ColumnType
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate rejects specs no backend can create.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s has an empty column name", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s has duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if !c.Type.Valid() {
			return fmt.Errorf("table %s column %q has invalid type %d", t.Name, c.Name, int(c.Type))
		}
	}
	return nil
}

// IndexSpec is a secondary index over existing columns of Table.
type IndexSpec struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
}

// BatchRows returns the number of rows per multi-row INSERT so that
// rows*columns stays within maxParams and rows within maxRows.
func BatchRows(columns, maxParams, maxRows int) int {
	if columns <= 0 {
		return 1
	}
	n := maxParams / columns
	if maxRows > 0 && n > maxRows {
		n = maxRows
	}
	if n < 1 {
		n = 1
	}
	return n
}
