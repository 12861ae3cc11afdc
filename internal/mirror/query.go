package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/koopa0/pgmirror/internal/rowset"
)

// pgPlaceholderRe matches PostgreSQL positional parameters ($1, $2, ...).
var pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)

// QueryRows replays a read-only query against the mirror. The query uses
// the primary's $N parameter style; it is rewritten for the embedded engine
// before execution.
func (m *Mirror) QueryRows(ctx context.Context, query string, args ...any) (*rowset.RowSet, error) {
	if !m.Available() {
		return nil, ErrUnavailable
	}

	db, err := m.openReadOnly()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, rewritePlaceholders(query), args...)
	if err != nil {
		return nil, fmt.Errorf("mirror query: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

// rewritePlaceholders converts $N parameters to SQLite's ?N form. The
// numbered form is used so each parameter binds by index regardless of the
// order it appears in the statement, matching PostgreSQL semantics.
func rewritePlaceholders(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?$1")
}

// collectRows materializes a sql.Rows cursor into a RowSet.
func collectRows(rows *sql.Rows) (*rowset.RowSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading result columns: %w", err)
	}

	result := &rowset.RowSet{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		for i, v := range values {
			// Normalize byte slices so results compare as plain strings.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return result, nil
}
