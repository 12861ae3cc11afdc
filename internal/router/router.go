// Package router provides the public data-access façade: queries and
// statements run against the PostgreSQL primary with bounded retries, and
// reads fall back to the SQLite mirror when the primary stays unreachable.
//
// A Router is constructed explicitly at startup and injected into callers;
// there is no package-level instance. It is safe for concurrent use.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/pgmirror/internal/rowset"
)

// Primary is the slice of the pgx pool API the router consumes.
// *pgxpool.Pool satisfies it.
type Primary interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// MirrorStore is the mirror surface the router consumes. *mirror.Mirror
// satisfies it. A nil MirrorStore disables fallback entirely.
type MirrorStore interface {
	Available() bool
	IsReady(ctx context.Context) bool
	MaybeSync(ctx context.Context)
	EnsureFromDump(ctx context.Context) bool
	SyncFromDump(ctx context.Context, force bool) bool
	QueryRows(ctx context.Context, query string, args ...any) (*rowset.RowSet, error)
	VectorSimilarity(ctx context.Context, query []float32, limit int) (*rowset.RowSet, error)
}

// Config holds the router retry policy. Immutable after construction.
type Config struct {
	// MaxRetries is the total number of attempts per primary operation.
	// Clamped to a minimum of 1.
	MaxRetries int

	// RetryInterval is the sleep between attempts on a transient failure.
	RetryInterval time.Duration
}

// Router executes queries and statements against the primary, retrying
// transient connectivity failures and falling back to the mirror when the
// primary stays unreachable.
type Router struct {
	primary Primary
	mirror  MirrorStore
	cfg     Config
	logger  *slog.Logger
}

// New creates a Router. mirror may be nil to disable fallback.
func New(primary Primary, mirror MirrorStore, cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryInterval < 0 {
		cfg.RetryInterval = 0
	}
	return &Router{primary: primary, mirror: mirror, cfg: cfg, logger: logger}
}

// Connect opens a pgx connection pool for the primary.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating primary pool: %w", err)
	}
	return pool, nil
}

// vectorSearchSQL is the primary's native nearest-neighbor query. <-> is
// pgvector's Euclidean distance operator.
const vectorSearchSQL = `
SELECT
    COALESCE(NULLIF(TRIM(p.consumer_product_name), ''), TRIM(p.product_name)) AS product_name,
    COALESCE(NULLIF(TRIM(b.consumer_brand_name), ''), TRIM(b.brand_name)) AS brand_name
FROM vip_products AS p
LEFT JOIN vip_brands AS b ON p.vip_brand_id = b.vip_brand_id
ORDER BY p.embedding <-> $1
LIMIT $2
`

// runWithRetries invokes fn until it succeeds, retrying transient failures
// up to r.cfg.MaxRetries total attempts with r.cfg.RetryInterval between
// them. Non-transient errors and retry exhaustion surface immediately.
// Once started, a call runs to success or exhaustion; it is not cancelable.
func runWithRetries[T any](r *Router, op string, fn func() (T, error)) (T, error) {
	attempts := 0
	for {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		attempts++
		if attempts >= r.cfg.MaxRetries || !IsTransient(err) {
			r.logger.Error("database operation failed",
				"op", op, "attempts", attempts, "error", err)
			var zero T
			return zero, err
		}
		r.logger.Warn("database operation failed, retrying",
			"op", op,
			"attempt", attempts,
			"max_attempts", r.cfg.MaxRetries,
			"retry_in", r.cfg.RetryInterval,
			"error", err)
		if r.cfg.RetryInterval > 0 {
			time.Sleep(r.cfg.RetryInterval)
		}
	}
}

// QueryRows executes a SELECT against the primary. On persistent transient
// failure the query is replayed against the mirror and its result returned
// in place of the error.
func (r *Router) QueryRows(ctx context.Context, sql string, args ...any) (*rowset.RowSet, error) {
	r.logger.Debug("running query", "sql", sql)

	result, err := runWithRetries(r, "query", func() (*rowset.RowSet, error) {
		rows, err := r.primary.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectPgxRows(rows)
	})
	if err != nil {
		if fallback, ok := r.tryMirror(ctx, err, func() (*rowset.RowSet, error) {
			return r.mirror.QueryRows(ctx, sql, args...)
		}); ok {
			return fallback, nil
		}
		return nil, err
	}

	r.maybeSyncMirror(ctx)
	return result, nil
}

// VectorSimilarity executes a nearest-neighbor search, natively on the
// primary or manually on the mirror when the primary is unreachable.
func (r *Router) VectorSimilarity(ctx context.Context, query []float32, limit int) (*rowset.RowSet, error) {
	if limit < 1 {
		limit = 1
	}
	vec := pgvector.NewVector(query)

	result, err := runWithRetries(r, "vector search", func() (*rowset.RowSet, error) {
		rows, err := r.primary.Query(ctx, vectorSearchSQL, vec, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectPgxRows(rows)
	})
	if err != nil {
		if fallback, ok := r.tryMirror(ctx, err, func() (*rowset.RowSet, error) {
			return r.mirror.VectorSimilarity(ctx, query, limit)
		}); ok {
			return fallback, nil
		}
		return nil, err
	}

	r.maybeSyncMirror(ctx)
	return result, nil
}

// Execute runs a non-returning statement (INSERT/UPDATE/DDL) against the
// primary. Writes never fall back to the read-only mirror.
func (r *Router) Execute(ctx context.Context, sql string, args ...any) error {
	r.logger.Debug("executing statement", "sql", sql)

	_, err := runWithRetries(r, "statement", func() (struct{}, error) {
		_, err := r.primary.Exec(ctx, sql, args...)
		return struct{}{}, err
	})
	if err != nil {
		return err
	}

	r.maybeSyncMirror(ctx)
	return nil
}

// Ping probes primary connectivity with the configured retry policy.
func (r *Router) Ping(ctx context.Context) error {
	_, err := runWithRetries(r, "ping", func() (struct{}, error) {
		return struct{}{}, r.primary.Ping(ctx)
	})
	return err
}

// SyncMirror forces a synchronous mirror rebuild. Returns false when no
// mirror is configured or the rebuild fails.
func (r *Router) SyncMirror(ctx context.Context) bool {
	if r.mirror == nil {
		r.logger.Debug("mirror not configured; sync skipped")
		return false
	}
	return r.mirror.SyncFromDump(ctx, true)
}

// Close disposes the primary pool.
func (r *Router) Close() {
	r.primary.Close()
	r.logger.Debug("primary pool closed")
}

// tryMirror attempts the mirror fallback for a failed primary operation.
// The fallback only applies to transient errors with a usable mirror; the
// original primary error is surfaced in every other case.
func (r *Router) tryMirror(ctx context.Context, primaryErr error, fn func() (*rowset.RowSet, error)) (*rowset.RowSet, bool) {
	if r.mirror == nil || !IsTransient(primaryErr) || !r.mirror.Available() {
		return nil, false
	}
	if !r.mirror.EnsureFromDump(ctx) {
		return nil, false
	}
	r.logger.Warn("primary operation failed; using mirror fallback", "error", primaryErr)

	result, err := fn()
	if err != nil {
		r.logger.Error("mirror fallback failed", "error", err)
		return nil, false
	}
	return result, true
}

// maybeSyncMirror lets the mirror trail the primary during normal
// operation, not only during outages.
func (r *Router) maybeSyncMirror(ctx context.Context) {
	if r.mirror != nil {
		r.mirror.MaybeSync(ctx)
	}
}

// collectPgxRows materializes a pgx cursor into a RowSet.
func collectPgxRows(rows pgx.Rows) (*rowset.RowSet, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &rowset.RowSet{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading result row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return result, nil
}
