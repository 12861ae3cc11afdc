package mirror

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/koopa0/pgmirror/internal/dump"
)

// copyNullMarker is the pg_dump text-format representation of NULL.
const copyNullMarker = `\N`

// loadCopyBlock bulk-inserts a spooled COPY block into the mirror. When the
// block header carried no column list, columns are resolved from the target
// table's catalog in declared order. Rows whose field count does not match
// the column count are counted and skipped rather than padded or truncated.
// Returns (rows loaded, rows skipped, error); a non-nil error means the
// whole block was abandoned and nothing was inserted.
func loadCopyBlock(ctx context.Context, db *sql.DB, block *dump.CopyBlock) (int64, int64, error) {
	table := dump.NormalizeTableName(block.Table)

	columns := block.Columns
	if len(columns) == 0 {
		var err error
		columns, err = tableColumns(ctx, db, table)
		if err != nil {
			return 0, 0, err
		}
	}
	if len(columns) == 0 {
		return 0, 0, fmt.Errorf("no columns resolved for table %s", table)
	}

	spool, err := os.Open(block.SpoolPath)
	if err != nil {
		return 0, 0, fmt.Errorf("opening COPY spool: %w", err)
	}
	defer spool.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertStatement(table, columns))
	if err != nil {
		return 0, 0, fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	var loaded, skipped int64
	scanner := bufio.NewScanner(spool)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		fields := decodeCopyLine(scanner.Text())
		if len(fields) != len(columns) {
			skipped++
			continue
		}
		if _, err := stmt.ExecContext(ctx, fields...); err != nil {
			return 0, skipped, fmt.Errorf("inserting row into %s: %w", table, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return 0, skipped, fmt.Errorf("reading COPY spool for %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, skipped, fmt.Errorf("committing load for %s: %w", table, err)
	}
	return loaded, skipped, nil
}

// tableColumns resolves a table's column names in declared order from the
// mirror catalog.
func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("resolving columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolving columns for %s: %w", table, err)
	}
	return columns, nil
}

// insertStatement builds the prepared insert for a block's target table.
func insertStatement(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = `"` + c + `"`
		placeholders[i] = "?"
	}
	return fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}

// decodeCopyLine splits one COPY text-format line into driver values:
// tab-delimited fields, \N for NULL, backslash escapes decoded.
func decodeCopyLine(line string) []any {
	parts := strings.Split(line, "\t")
	fields := make([]any, len(parts))
	for i, p := range parts {
		if p == copyNullMarker {
			fields[i] = nil
			continue
		}
		fields[i] = unescapeCopyText(p)
	}
	return fields
}

// unescapeCopyText decodes the escape sequences pg_dump emits in text
// format COPY data.
func unescapeCopyText(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '\\':
			b.WriteByte('\\')
		default:
			// Unknown escape: keep the escaped character as-is.
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
