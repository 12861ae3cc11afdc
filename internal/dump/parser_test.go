package dump

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/pgmirror/internal/log"
)

// drain consumes the parser to EOF, returning all entries and cleaning up
// spool files as it goes.
func drain(t *testing.T, p *Parser) []*Entry {
	t.Helper()
	var entries []*Entry
	for {
		entry, err := p.Next()
		if err == io.EOF {
			return entries
		}
		require.NoError(t, err)
		if entry.Copy != nil {
			t.Cleanup(entry.Copy.Cleanup)
		}
		entries = append(entries, entry)
	}
}

func spooledLines(t *testing.T, block *CopyBlock) []string {
	t.Helper()
	data, err := os.ReadFile(block.SpoolPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestParserStatements(t *testing.T) {
	in := strings.NewReader(`-- PostgreSQL database dump
--

SET statement_timeout = 0;
CREATE TABLE public.vip_brands (
    vip_brand_id integer NOT NULL,
    brand_name text
);
`)

	entries := drain(t, NewParser(in, log.NewNop()))
	require.Len(t, entries, 2)

	assert.Equal(t, StatementEntry, entries[0].Kind)
	assert.Equal(t, "SET statement_timeout = 0;", entries[0].Statement)

	assert.Equal(t, StatementEntry, entries[1].Kind)
	assert.Contains(t, entries[1].Statement, "CREATE TABLE public.vip_brands")
	assert.Contains(t, entries[1].Statement, "brand_name text")
}

func TestParserCopyBlock(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`COPY public.app_inventory (store, product_name, quantity) FROM stdin;`,
		"A\tWidget\t3",
		"B\t\\N\t0",
		`\.`,
		``,
		`SELECT 1;`,
	}, "\n"))

	entries := drain(t, NewParser(in, log.NewNop()))
	require.Len(t, entries, 2)

	require.Equal(t, CopyEntry, entries[0].Kind)
	block := entries[0].Copy
	assert.Equal(t, "public.app_inventory", block.Table)
	assert.Equal(t, []string{"store", "product_name", "quantity"}, block.Columns)
	assert.Equal(t, 2, block.Rows)
	assert.Equal(t, []string{"A\tWidget\t3", "B\t\\N\t0"}, spooledLines(t, block))

	assert.Equal(t, StatementEntry, entries[1].Kind)
	assert.Equal(t, "SELECT 1;", entries[1].Statement)
}

func TestParserCopyWithoutColumns(t *testing.T) {
	in := strings.NewReader("COPY vip_brands FROM stdin;\n1\tAcme\n\\.\n")

	entries := drain(t, NewParser(in, log.NewNop()))
	require.Len(t, entries, 1)
	require.Equal(t, CopyEntry, entries[0].Kind)
	assert.Equal(t, "vip_brands", entries[0].Copy.Table)
	assert.Nil(t, entries[0].Copy.Columns)
	assert.Equal(t, 1, entries[0].Copy.Rows)
}

func TestParserMalformedCopyHeaderDiscardsRows(t *testing.T) {
	// Header that matches the COPY prefix check but not the full shape.
	in := strings.NewReader(strings.Join([]string{
		`COPY FROM stdin;`,
		"orphan\trow",
		`\.`,
		`CREATE TABLE t (a text);`,
	}, "\n"))

	entries := drain(t, NewParser(in, log.NewNop()))
	require.Len(t, entries, 1)
	assert.Equal(t, StatementEntry, entries[0].Kind)
	assert.Contains(t, entries[0].Statement, "CREATE TABLE t")
}

func TestParserUnterminatedCopyBlock(t *testing.T) {
	in := strings.NewReader("COPY t (a) FROM stdin;\nrow1\nrow2\n")

	p := NewParser(in, log.NewNop())
	_, err := p.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestParserSpoolCleanedUp(t *testing.T) {
	in := strings.NewReader("COPY t (a) FROM stdin;\nx\n\\.\n")

	p := NewParser(in, log.NewNop())
	entry, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, entry.Copy)

	path := entry.Copy.SpoolPath
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	entry.Copy.Cleanup()
	_, statErr = os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Second cleanup must be a no-op.
	entry.Copy.Cleanup()
}

func TestOpenGzipDump(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("SELECT 1;\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "dump.sql.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	rc, err := Open(path)
	require.NoError(t, err)
	defer rc.Close()

	entries := drain(t, NewParser(rc, log.NewNop()))
	require.Len(t, entries, 1)
	assert.Equal(t, "SELECT 1;", entries[0].Statement)
}

func TestNormalizeTableName(t *testing.T) {
	assert.Equal(t, "vip_products", NormalizeTableName("public.vip_products"))
	assert.Equal(t, "vip_products", NormalizeTableName(`"public".vip_products`))
	assert.Equal(t, "vip_products", NormalizeTableName(`"vip_products"`))
	assert.Equal(t, "vip_products", NormalizeTableName(" vip_products "))
}
