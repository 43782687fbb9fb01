package schema

// Hints is an immutable table -> column -> type lookup used to override
// inference for columns known to mis-infer (money, dates stored as text).
//
// The zero value has no hints. Build one with NewHints; it copies its input,
// so later changes to the source map are not observed.
type Hints struct {
	m map[string]map[string]ColumnType
}

// NewHints builds a Hints from a nested map.
func NewHints(src map[string]map[string]ColumnType) Hints {
	m := make(map[string]map[string]ColumnType, len(src))
	for table, cols := range src {
		if len(cols) == 0 {
			continue
		}
		cp := make(map[string]ColumnType, len(cols))
		for col, t := range cols {
			cp[col] = t
		}
		m[table] = cp
	}
	return Hints{m: m}
}

// Lookup returns the hinted type for (table, column). Column names match
// exactly; headers are never case-folded.
func (h Hints) Lookup(table, column string) (ColumnType, bool) {
	t, ok := h.m[table][column]
	return t, ok
}

// Len returns the number of hinted columns across all tables.
func (h Hints) Len() int {
	n := 0
	for _, cols := range h.m {
		n += len(cols)
	}
	return n
}
