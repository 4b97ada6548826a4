package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts pgx query methods so callers can work with both
// pool connections and transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// MillSetting is the Postgres session variable the RLS policies read.
const MillSetting = "app.current_mill_id"

// WithMillConnection acquires a dedicated connection, scopes it to millID
// for row-level security and calls fn. The setting is cleared before the
// connection goes back to the pool so the next borrower never inherits it.
func WithMillConnection(ctx context.Context, pool *pgxpool.Pool, millID string, fn func(ctx context.Context, q Querier) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() {
		// The request context may already be canceled here.
		_, _ = conn.Exec(context.Background(), "SELECT set_config($1, '', false)", MillSetting)
		conn.Release()
	}()

	if _, err = conn.Exec(ctx, "SELECT set_config($1, $2, false)", MillSetting, millID); err != nil {
		return fmt.Errorf("setting mill context: %w", err)
	}

	return fn(ctx, conn)
}
