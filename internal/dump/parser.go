package dump

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// copyHeaderRe matches an accumulated COPY statement. Group 1 is the table
// identifier, group 2 the optional parenthesised column list.
var copyHeaderRe = regexp.MustCompile(`(?is)^COPY\s+(.+?)\s*(?:\((.*?)\))?\s+FROM\s+stdin;?$`)

// copyTerminator ends the data section of a COPY block.
const copyTerminator = `\.`

// Open opens a dump source for parsing, transparently decompressing
// gzip-suffixed files. The caller owns the returned ReadCloser.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dump: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("opening gzip dump: %w", err)
	}
	return &gzipReadCloser{gz: gz, file: f}, nil
}

type gzipReadCloser struct {
	gz   *gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return gzErr
}

// Parser streams dump entries from a line-oriented reader. It is not safe
// for concurrent use, and is restartable only by re-opening the source.
type Parser struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	done    bool
}

// NewParser creates a Parser reading from r.
func NewParser(r io.Reader, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	// Bulk rows with wide text columns can exceed the default token size.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Parser{scanner: scanner, logger: logger}
}

// Next returns the next entry, or io.EOF when the dump is exhausted.
// Malformed COPY headers are logged and their row data discarded; parsing
// continues with the following entry.
func (p *Parser) Next() (*Entry, error) {
	if p.done {
		return nil, io.EOF
	}

	var statementLines []string
	for p.scanner.Scan() {
		raw := p.scanner.Text()

		// Comment-only lines before a statement begins carry no content.
		if len(statementLines) == 0 && strings.HasPrefix(strings.TrimSpace(raw), "--") {
			continue
		}

		statementLines = append(statementLines, raw)
		if !strings.HasSuffix(strings.TrimRight(raw, " \t\r"), ";") {
			continue
		}

		statement := strings.TrimSpace(strings.Join(statementLines, "\n"))
		statementLines = nil
		if statement == "" {
			continue
		}

		if isCopyHeader(statement) {
			entry, err := p.consumeCopy(statement)
			if err != nil {
				return nil, err
			}
			if entry == nil {
				// Unparseable header, rows already discarded.
				continue
			}
			return entry, nil
		}

		return &Entry{Kind: StatementEntry, Statement: statement}, nil
	}

	p.done = true
	if err := p.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dump: %w", err)
	}
	if len(statementLines) > 0 {
		p.logger.Debug("dropping unterminated trailing statement",
			"first_line", statementLines[0])
	}
	return nil, io.EOF
}

// isCopyHeader reports whether an accumulated statement opens a bulk-load
// block.
func isCopyHeader(statement string) bool {
	return strings.HasPrefix(strings.ToUpper(statement), "COPY ") &&
		strings.Contains(strings.ToLower(statement), "from stdin")
}

// consumeCopy reads the data section following a COPY header. On a
// malformed header the rows are spooled nowhere and (nil, nil) is returned.
func (p *Parser) consumeCopy(header string) (*Entry, error) {
	block := parseCopyHeader(header)
	if block == nil {
		firstLine, _, _ := strings.Cut(header, "\n")
		p.logger.Debug("skipping unrecognised COPY command", "statement", firstLine)
		p.discardCopyData()
		return nil, nil
	}

	spool, err := os.CreateTemp("", "pgmirror-copy-*.dat")
	if err != nil {
		// Without a spool the block cannot be materialized; drain and move on.
		p.logger.Debug("failed to create COPY spool file", "table", block.Table, "error", err)
		p.discardCopyData()
		return nil, nil
	}

	writer := bufio.NewWriter(spool)
	terminated := false
	for p.scanner.Scan() {
		line := strings.TrimRight(p.scanner.Text(), "\r\n")
		if line == copyTerminator {
			terminated = true
			break
		}
		if _, err := writer.WriteString(line + "\n"); err != nil {
			p.closeAndRemove(spool)
			return nil, fmt.Errorf("spooling COPY data for %s: %w", block.Table, err)
		}
		block.Rows++
	}

	if err := p.scanner.Err(); err != nil {
		p.closeAndRemove(spool)
		return nil, fmt.Errorf("reading COPY data for %s: %w", block.Table, err)
	}

	if err := writer.Flush(); err != nil {
		p.closeAndRemove(spool)
		return nil, fmt.Errorf("flushing COPY spool for %s: %w", block.Table, err)
	}
	if err := spool.Close(); err != nil {
		_ = os.Remove(spool.Name())
		return nil, fmt.Errorf("closing COPY spool for %s: %w", block.Table, err)
	}

	if !terminated {
		// Truncated dump: the block never saw its terminator. Treat the
		// partial data as unusable.
		p.logger.Debug("unterminated COPY block at end of dump", "table", block.Table)
		_ = os.Remove(spool.Name())
		p.done = true
		return nil, io.EOF
	}

	block.SpoolPath = spool.Name()
	return &Entry{Kind: CopyEntry, Copy: block}, nil
}

// discardCopyData consumes data lines up to the block terminator without
// retaining them.
func (p *Parser) discardCopyData() {
	for p.scanner.Scan() {
		if strings.TrimRight(p.scanner.Text(), "\r\n") == copyTerminator {
			return
		}
	}
}

func (p *Parser) closeAndRemove(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}

// parseCopyHeader extracts the table and optional column list from a COPY
// statement. Returns nil when the header does not match the expected shape.
func parseCopyHeader(header string) *CopyBlock {
	m := copyHeaderRe.FindStringSubmatch(header)
	if m == nil {
		return nil
	}
	block := &CopyBlock{Table: strings.TrimSpace(m[1])}
	if m[2] != "" {
		block.Columns = SplitColumns(m[2])
	}
	return block
}
