// Package termsql runs the deferred `from_db_select` term queries.
package termsql

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"dounotify/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the part of *pgxpool.Pool used by the runner.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// opener creates one pool for a configured connection.
type opener func(ctx context.Context, cfg config.DatabaseConfig) (querier, error)

// Runner resolves search terms with SQL against named connections.
// Pools are opened on first use of a connection id and reused until Close.
type Runner struct {
	databases map[string]config.DatabaseConfig
	open      opener

	mu    sync.Mutex
	pools map[string]querier
}

// NewRunner builds a runner over `[database.<conn_id>]` sections.
// Params: database sections keyed by connection id.
// Returns: runner with no open pools.
func NewRunner(databases map[string]config.DatabaseConfig) *Runner {
	return &Runner{
		databases: databases,
		open:      openPool,
		pools:     make(map[string]querier),
	}
}

// RunQuery executes sql on connID and returns the first column of every row.
// Params: context, SQL text, and connection id.
// Returns: non-empty trimmed terms in row order, or query error.
func (r *Runner) RunQuery(ctx context.Context, sql, connID string) ([]string, error) {
	pool, err := r.pool(ctx, connID)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query terms on %q: %w", connID, err)
	}
	defer rows.Close()

	terms := make([]string, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan terms on %q: %w", connID, err)
		}
		if len(values) == 0 {
			continue
		}
		if term := termValue(values[0]); term != "" {
			terms = append(terms, term)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read terms on %q: %w", connID, err)
	}
	return terms, nil
}

// Close closes every opened pool.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID, pool := range r.pools {
		pool.Close()
		delete(r.pools, connID)
	}
}

func (r *Runner) pool(ctx context.Context, connID string) (querier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[connID]; ok {
		return pool, nil
	}
	database, ok := r.databases[connID]
	if !ok {
		return nil, fmt.Errorf("connection %q is not configured (known: %s)", connID, knownConnections(r.databases))
	}
	pool, err := r.open(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("open connection %q: %w", connID, err)
	}
	r.pools[connID] = pool
	return pool, nil
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (querier, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// termValue converts one result cell into a term.
func termValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case []byte:
		return strings.TrimSpace(string(typed))
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func knownConnections(databases map[string]config.DatabaseConfig) string {
	if len(databases) == 0 {
		return "none"
	}
	names := make([]string, 0, len(databases))
	for name := range databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
