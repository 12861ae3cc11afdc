package dump

import (
	"regexp"
	"strings"
)

// vectorTypeRe matches pgvector column declarations such as vector(768).
var vectorTypeRe = regexp.MustCompile(`(?i)vector\s*\(\s*\d+\s*\)`)

// nextvalDefaultRe matches sequence-backed default expressions. The mirror
// does not share the primary's sequence namespace, so the default is dropped
// entirely.
var nextvalDefaultRe = regexp.MustCompile(`(?i)\s+DEFAULT\s+nextval\('[^']+'::regclass\)`)

// skipPrefixes lists normalized statement prefixes the mirror must not
// execute: session settings, privileges, comments, extension and index
// management, and pg_dump bookkeeping.
var skipPrefixes = []string{
	"SET ",
	"SELECT PG_CATALOG",
	"SELECT CURRENT_SCHEMA",
	"ALTER TABLE",
	"GRANT ",
	"REVOKE ",
	"COMMENT ",
	"CREATE EXTENSION",
	"DROP EXTENSION",
	"CREATE SEQUENCE",
	"CREATE UNIQUE INDEX",
	"CREATE INDEX",
}

// SkipStatement reports whether a dump statement should be dropped rather
// than executed against the mirror.
func SkipStatement(statement string) bool {
	stmt := strings.TrimSuffix(strings.TrimSpace(statement), ";")
	if stmt == "" {
		return true
	}
	upper := strings.ToUpper(stmt)
	if upper == "BEGIN" || upper == "COMMIT" {
		return true
	}
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	if strings.HasPrefix(upper, "SELECT ") && strings.Contains(upper, "PG_CATALOG") {
		return true
	}
	return false
}

// schemaQualifierRe matches the dump's public schema qualifier on
// identifiers. The mirror keeps everything in its single default schema.
var schemaQualifierRe = regexp.MustCompile(`(?i)"?public"?\.`)

// RewriteStatement adapts a statement from the primary's dialect to one the
// mirror can execute. The public schema qualifier is dropped on every
// statement; in CREATE TABLE, vector column types become wide text and
// sequence-backed defaults are stripped.
func RewriteStatement(statement string) string {
	stmt := strings.TrimSuffix(strings.TrimSpace(statement), ";")
	stmt = schemaQualifierRe.ReplaceAllString(stmt, "")
	if !strings.HasPrefix(strings.ToUpper(stmt), "CREATE TABLE") {
		return stmt
	}
	stmt = vectorTypeRe.ReplaceAllString(stmt, "TEXT")
	stmt = nextvalDefaultRe.ReplaceAllString(stmt, "")
	return stmt
}
