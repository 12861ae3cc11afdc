// Package mirror maintains a read-only SQLite copy of selected PostgreSQL
// tables, rebuilt wholesale from a pg_dump text dump. The mirror serves
// queries while the primary is unreachable; it never accepts application
// writes.
//
// Lifecycle: a Mirror is Unconfigured when the embedded engine is
// unavailable, Stale while the mirror file is missing or lacks required
// tables, and Ready once every mirrored table is present. Rebuilds replace
// the live file atomically, so concurrent readers observe either the old
// or the new mirror, never a partial one.
package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/koopa0/pgmirror/internal/dump"
)

// ErrUnavailable is returned when the embedded engine could not be probed
// at construction; every mirror operation is then a no-op.
var ErrUnavailable = errors.New("mirror is not available")

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// Config describes a Mirror. Immutable after construction.
type Config struct {
	// Path is the SQLite mirror file.
	Path string

	// DumpPath is the pg_dump text file (optionally gzip-compressed) the
	// mirror is rebuilt from.
	DumpPath string

	// Tables lists the table names that must exist for the mirror to be
	// considered ready.
	Tables []string

	// AutoSync enables opportunistic syncing after successful primary
	// operations.
	AutoSync bool

	// SyncInterval is the minimum time between autosync attempts.
	SyncInterval time.Duration
}

// Mirror owns the secondary store's lifecycle. Rebuilds are serialized by
// an internal mutex; reads are safe during a rebuild because the live file
// is replaced atomically.
type Mirror struct {
	cfg       Config
	logger    *slog.Logger
	available bool

	mu              sync.Mutex
	lastSync        time.Time
	lastDumpModTime time.Time
	lastReport      *RebuildReport

	// Warn-once latches. Atomic rather than mu-guarded: IsReady runs both
	// with and without the rebuild mutex held.
	warnedMissing     atomic.Bool
	warnedMissingDump atomic.Bool
}

// New creates a Mirror. Availability of the embedded engine is probed once
// here; a failed probe permanently downgrades the mirror to unconfigured.
func New(cfg Config, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path != "" {
		if abs, err := filepath.Abs(cfg.Path); err == nil {
			cfg.Path = abs
		}
	}
	if cfg.DumpPath != "" {
		if abs, err := filepath.Abs(cfg.DumpPath); err == nil {
			cfg.DumpPath = abs
		}
	}
	if cfg.SyncInterval < 0 {
		cfg.SyncInterval = 0
	}

	m := &Mirror{cfg: cfg, logger: logger}
	m.available = m.probeEngine()
	return m
}

// probeEngine verifies the embedded SQLite engine works in this build.
func (m *Mirror) probeEngine() bool {
	db, err := sql.Open(driverName, ":memory:")
	if err == nil {
		err = db.Ping()
		_ = db.Close()
	}
	if err != nil {
		m.logger.Warn("mirror disabled: embedded sqlite engine unavailable", "error", err)
		return false
	}
	return true
}

// Available reports whether the embedded engine is usable.
func (m *Mirror) Available() bool {
	return m != nil && m.available
}

// IsReady reports whether the mirror file exists and every required table
// is present.
func (m *Mirror) IsReady(ctx context.Context) bool {
	if !m.Available() {
		return false
	}
	if _, err := os.Stat(m.cfg.Path); err != nil {
		if m.warnedMissing.CompareAndSwap(false, true) {
			m.logger.Warn("mirror database missing; sync when the dump is available", "path", m.cfg.Path)
		}
		return false
	}

	db, err := m.openReadOnly()
	if err != nil {
		m.logger.Debug("mirror readiness check failed", "error", err)
		return false
	}
	defer db.Close()

	for _, table := range m.cfg.Tables {
		if table == "" {
			continue
		}
		ok, err := tableExists(ctx, db, table)
		if err != nil {
			m.logger.Debug("mirror readiness check failed", "table", table, "error", err)
			return false
		}
		if !ok {
			m.logger.Debug("mirror table not present", "table", table)
			return false
		}
	}
	return true
}

// tableExists checks the mirror catalog for a table.
func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SyncFromDump rebuilds the mirror from the dump. Without force, the
// rebuild is skipped when the dump's modification time has not advanced
// past the last synced one and the mirror file still exists; the current
// readiness is returned instead. Returns false on any rebuild failure,
// leaving the previous mirror file untouched.
func (m *Mirror) SyncFromDump(ctx context.Context, force bool) bool {
	if !m.Available() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncLocked(ctx, force)
}

func (m *Mirror) syncLocked(ctx context.Context, force bool) bool {
	if m.cfg.DumpPath == "" {
		if m.warnedMissingDump.CompareAndSwap(false, true) {
			m.logger.Warn("mirror dump path not configured")
		}
		return false
	}

	info, err := os.Stat(m.cfg.DumpPath)
	if err != nil {
		if m.warnedMissingDump.CompareAndSwap(false, true) {
			m.logger.Warn("mirror dump not found", "path", m.cfg.DumpPath)
		}
		return false
	}
	m.warnedMissingDump.Store(false)

	dumpModTime := info.ModTime()
	if !force && !m.lastDumpModTime.IsZero() && !dumpModTime.After(m.lastDumpModTime) {
		if _, err := os.Stat(m.cfg.Path); err == nil {
			return m.IsReady(ctx)
		}
	}

	report, err := m.rebuild(ctx)
	if err != nil {
		m.logger.Error("mirror sync failed", "dump", m.cfg.DumpPath, "error", err)
		return false
	}

	m.lastSync = time.Now()
	m.lastDumpModTime = dumpModTime
	m.lastReport = report
	m.warnedMissing.Store(false)
	m.logger.Info("mirror refreshed from dump",
		"dump", m.cfg.DumpPath,
		"statements", report.StatementsExecuted,
		"statements_skipped", report.StatementsSkipped,
		"blocks", report.BlocksLoaded,
		"blocks_skipped", report.BlocksSkipped,
		"rows", report.RowsLoaded)
	return true
}

// MaybeSync attempts a sync when autosync is enabled and the sync interval
// has elapsed since the last successful sync.
func (m *Mirror) MaybeSync(ctx context.Context) {
	if !m.Available() || !m.cfg.AutoSync {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.SyncInterval > 0 && !m.lastSync.IsZero() && time.Since(m.lastSync) < m.cfg.SyncInterval {
		return
	}
	m.syncLocked(ctx, false)
}

// EnsureFromDump is the blocking variant used on the fallback path. It
// returns true immediately when the mirror is already ready, otherwise it
// forces a synchronous rebuild.
func (m *Mirror) EnsureFromDump(ctx context.Context) bool {
	if !m.Available() {
		return false
	}
	if m.IsReady(ctx) {
		return true
	}
	return m.SyncFromDump(ctx, true)
}

// LastReport returns the report from the most recent successful rebuild,
// or nil when no rebuild has completed.
func (m *Mirror) LastReport() *RebuildReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReport
}

// rebuild runs parser, rewriter and materializer into a fresh temporary
// file next to the live mirror, then renames it into place. Any error
// leaves the previous file untouched.
func (m *Mirror) rebuild(ctx context.Context) (*RebuildReport, error) {
	dir := filepath.Dir(m.cfg.Path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating mirror directory: %w", err)
	}

	// Sibling temp file so the final rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, ".mirror-*.sqlite")
	if err != nil {
		return nil, fmt.Errorf("creating mirror temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("closing mirror temp file: %w", err)
	}

	report, err := m.loadDumpInto(ctx, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, m.cfg.Path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("replacing mirror file: %w", err)
	}
	return report, nil
}

// loadDumpInto replays the whole dump into the database at path.
func (m *Mirror) loadDumpInto(ctx context.Context, path string) (*RebuildReport, error) {
	source, err := dump.Open(m.cfg.DumpPath)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening mirror temp database: %w", err)
	}
	defer db.Close()

	report := &RebuildReport{}
	parser := dump.NewParser(source, m.logger)
	for {
		entry, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch entry.Kind {
		case dump.StatementEntry:
			m.applyStatement(ctx, db, entry.Statement, report)
		case dump.CopyEntry:
			m.applyCopy(ctx, db, entry.Copy, report)
		}
	}
	return report, nil
}

// applyStatement rewrites and executes one dump statement. A statement
// that still fails after rewriting is logged and skipped; one bad
// statement must not abort the rebuild.
func (m *Mirror) applyStatement(ctx context.Context, db *sql.DB, statement string, report *RebuildReport) {
	if dump.SkipStatement(statement) {
		report.StatementsSkipped++
		return
	}
	rewritten := dump.RewriteStatement(statement)
	if _, err := db.ExecContext(ctx, rewritten); err != nil {
		firstLine, _, _ := strings.Cut(rewritten, "\n")
		m.logger.Debug("skipping statement during mirror load", "error", err, "statement", firstLine)
		report.StatementsSkipped++
		return
	}
	report.StatementsExecuted++
}

// applyCopy materializes one bulk-load block. Failures skip the block and
// the rebuild continues; the spool file is removed on every path.
func (m *Mirror) applyCopy(ctx context.Context, db *sql.DB, block *dump.CopyBlock, report *RebuildReport) {
	defer block.Cleanup()

	loaded, skipped, err := loadCopyBlock(ctx, db, block)
	report.RowsLoaded += loaded
	report.RowsSkipped += skipped
	if err != nil {
		m.logger.Debug("skipping COPY block during mirror load", "table", block.Table, "error", err)
		report.BlocksSkipped++
		return
	}
	report.BlocksLoaded++
	report.TablesLoaded = append(report.TablesLoaded, dump.NormalizeTableName(block.Table))
}

// openReadOnly opens the live mirror file for querying.
func (m *Mirror) openReadOnly() (*sql.DB, error) {
	db, err := sql.Open(driverName, "file:"+m.cfg.Path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening mirror database: %w", err)
	}
	return db, nil
}
