// Package rowset defines the tabular result type shared by the primary
// router and the mirror, avoiding an import cycle between them.
package rowset

// RowSet is a fully materialized query result. Column order matches the
// statement's select list; every row has len(Columns) values.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the result contains no rows.
func (r *RowSet) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// Len returns the number of rows.
func (r *RowSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (r *RowSet) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
