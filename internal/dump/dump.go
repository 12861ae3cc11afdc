// Package dump parses PostgreSQL pg_dump text output into a stream of
// entries: ordinary SQL statements and COPY ... FROM stdin bulk-load
// blocks. It also hosts the DDL compatibility rewriter that adapts
// primary-only constructs for the SQLite mirror.
package dump

import (
	"fmt"
	"os"
	"strings"
)

// EntryKind discriminates the two entry shapes a dump stream produces.
type EntryKind int

const (
	// StatementEntry is a standalone SQL statement terminated by ';'.
	StatementEntry EntryKind = iota

	// CopyEntry is a COPY ... FROM stdin block with spooled row data.
	CopyEntry
)

// Entry is one parsed unit of a dump. Exactly one of Statement or Copy is
// populated, according to Kind. Entries are consumed once, not retained.
type Entry struct {
	Kind      EntryKind
	Statement string
	Copy      *CopyBlock
}

// CopyBlock describes a bulk-load block. Row data is spooled to a temporary
// file so dump size does not bound working memory; the consumer must call
// Cleanup when done with the block.
type CopyBlock struct {
	// Table is the target table as written in the header, for example
	// public.vip_products.
	Table string

	// Columns holds the explicit column list from the header, nil when the
	// header had none (columns are then resolved from the target catalog).
	Columns []string

	// SpoolPath is the temporary file holding the raw tab-separated rows,
	// one dump data line per file line.
	SpoolPath string

	// Rows is the number of spooled data lines.
	Rows int
}

// Cleanup removes the spooled row data. Safe to call more than once.
func (b *CopyBlock) Cleanup() {
	if b == nil || b.SpoolPath == "" {
		return
	}
	if err := os.Remove(b.SpoolPath); err != nil && !os.IsNotExist(err) {
		// Nothing the caller can do; the OS temp dir reaper will get it.
		_ = err
	}
	b.SpoolPath = ""
}

// NormalizeTableName strips the dump's schema qualifier so the name matches
// the mirror's single logical schema. Quoting around the bare name is
// removed as well.
func NormalizeTableName(identifier string) string {
	name := strings.TrimSpace(identifier)
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, `"public".`):
		name = name[len(`"public".`):]
	case strings.HasPrefix(lower, "public."):
		name = name[len("public."):]
	}
	return strings.Trim(name, `"`)
}

// SplitColumns splits a header column list on commas, trimming whitespace
// and surrounding quotes.
func SplitColumns(columns string) []string {
	parts := strings.Split(columns, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (k EntryKind) String() string {
	switch k {
	case StatementEntry:
		return "statement"
	case CopyEntry:
		return "copy"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}
