package schema

// Cast converts a raw cell to t's Go representation.
//
//	nil               -> nil
//	Integer           -> int64, or nil if the text is not an integer
//	Real              -> float64, or nil if the text is not a number
//	Text              -> the original string, unchanged
//
// Cast never fails; unparseable values become nil. ok is false only when a
// non-nil input was downgraded, so callers can count lossy casts.
func Cast(v any, t ColumnType) (out any, ok bool) {
	if v == nil {
		return nil, true
	}
	s, isStr := v.(string)
	if !isStr {
		return nil, false
	}
	switch t {
	case Integer:
		if n, ok := ParseInteger(s); ok {
			return n, true
		}
		return nil, false
	case Real:
		if f, ok := ParseReal(s); ok {
			return f, true
		}
		return nil, false
	default:
		return s, true
	}
}

// CastRow casts each cell of row to the type at the same position and returns
// a new slice plus the number of downgraded cells.
func CastRow(row []any, types []ColumnType) ([]any, int) {
	out := make([]any, len(types))
	lost := 0
	for i, t := range types {
		var v any
		if i < len(row) {
			v = row[i]
		}
		c, ok := Cast(v, t)
		if !ok {
			lost++
		}
		out[i] = c
	}
	return out, lost
}
