// Package db owns the Postgres connection pool, its lazy initialisation and
// the schema migrations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/singleflight"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PoolConfig mirrors the database/sql pool knobs.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// OpenFunc establishes a ready-to-use pool.
type OpenFunc func(ctx context.Context) (*sql.DB, error)

// Handle is a lazily opened connection pool. A successful open is kept for the
// life of the handle; a failed one is not, so the next Get tries again.
// Concurrent callers share one open attempt, and each stops waiting when its
// own context ends.
type Handle struct {
	mu          sync.Mutex
	open        OpenFunc
	openTimeout time.Duration
	database    *sql.DB
	closed      bool
	opening     singleflight.Group
}

const defaultOpenTimeout = time.Minute

var ErrHandleClosed = errors.New("database handle closed")

func NewHandle(open OpenFunc) *Handle {
	return &Handle{open: open, openTimeout: defaultOpenTimeout}
}

// FromDB wraps an already open pool.
func FromDB(database *sql.DB) *Handle {
	return &Handle{database: database}
}

// WithOpenTimeout bounds a single open attempt, migrations included.
func (h *Handle) WithOpenTimeout(timeout time.Duration) *Handle {
	if timeout > 0 {
		h.openTimeout = timeout
	}
	return h
}

func (h *Handle) Get(ctx context.Context) (*sql.DB, error) {
	if database, done, err := h.current(); done {
		return database, err
	}

	result := h.opening.DoChan("open", func() (any, error) {
		return h.openPool(ctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sql.DB), nil
	}
}

// current reports the settled state, if any: an open pool, a closed handle or
// a handle that can never open.
func (h *Handle) current() (*sql.DB, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return nil, true, ErrHandleClosed
	case h.database != nil:
		return h.database, true, nil
	case h.open == nil:
		return nil, true, fmt.Errorf("database handle has no opener")
	}
	return nil, false, nil
}

// openPool runs outside the mutex. The attempt outlives the caller that
// started it, so it gets its own deadline instead of the caller's.
func (h *Handle) openPool(ctx context.Context) (*sql.DB, error) {
	if database, done, err := h.current(); done {
		return database, err
	}

	timeout := h.openTimeout
	if timeout <= 0 {
		timeout = defaultOpenTimeout
	}
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	database, err := h.open(openCtx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		_ = database.Close()
		return nil, ErrHandleClosed
	}
	h.database = database
	return database, nil
}

// Ping opens the pool if needed and checks it is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	database, err := h.Get(ctx)
	if err != nil {
		return err
	}
	return database.PingContext(ctx)
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.database == nil {
		return nil
	}
	err := h.database.Close()
	h.database = nil
	return err
}

// Opener returns an OpenFunc that connects to databaseURL through pgx, applies
// the pool settings, pings, and optionally runs the migrations.
func Opener(databaseURL string, pool PoolConfig, runMigrations bool) OpenFunc {
	return func(ctx context.Context) (*sql.DB, error) {
		database, err := sql.Open("pgx", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		if pool.MaxOpenConns > 0 {
			database.SetMaxOpenConns(pool.MaxOpenConns)
		}
		if pool.MaxIdleConns > 0 {
			database.SetMaxIdleConns(pool.MaxIdleConns)
		}
		database.SetConnMaxLifetime(pool.ConnMaxLifetime)
		database.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

		if err := database.PingContext(ctx); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		if runMigrations {
			if err := RunMigrations(ctx, database); err != nil {
				_ = database.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}

		return database, nil
	}
}
